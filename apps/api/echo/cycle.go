package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/grading"
	"github.com/trezcool/escolar/core/student"
)

type cycleApi struct {
	svc        *cycle.Service
	studentSvc *student.Service
	gradingSvc *grading.Service
	validate   *validator.Validate
}

func registerCycleAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc *cycle.Service,
	studentSvc *student.Service,
	gradingSvc *grading.Service,
	opts Options,
) {
	api := cycleApi{
		svc:        svc,
		studentSvc: studentSvc,
		gradingSvc: gradingSvc,
		validate:   opts.Validate,
	}
	cycleObj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetCycle(ctx, id)
	})
	partialObj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetPartial(ctx, id)
	})
	fieldObj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetFormativeField(ctx, id)
	})

	cg := g.Group("/cycles", authed...)
	cg.POST("", api.create)
	cg.GET("", api.query)
	cg.GET("/mine", api.queryMine)

	dg := cg.Group("/:id", cycleObj)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/students", api.queryStudents)
	dg.GET("/partials", api.queryPartials)
	dg.POST("/partials", api.createPartials)
	dg.GET("/formative-fields", api.queryFields)
	dg.GET("/formative-fields/summary", api.summary)

	pg := g.Group("/partials", authed...)
	pg.GET("/:id", api.retrievePartial, partialObj)
	pg.PUT("/:id", api.updatePartial, partialObj)
	pg.DELETE("/:id", api.destroyPartial, partialObj)

	fg := g.Group("/formative-fields", authed...)
	fg.POST("", api.createField)
	fg.POST("/bulk", api.setupField)
	fg.GET("/:id", api.retrieveField, fieldObj)
	fg.PUT("/:id", api.updateField, fieldObj)
	fg.DELETE("/:id", api.destroyField, fieldObj)
}

// Cycles

func (api *cycleApi) create(ctx echo.Context) error {
	var data cycle.NewCycle
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cyc, err := api.svc.CreateCycle(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating cycle")
	}
	return ctx.JSON(http.StatusCreated, cyc)
}

func (api *cycleApi) query(ctx echo.Context) error {
	var filter cycle.QueryFilter
	page, ordering, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}

	cycles, err := api.svc.FilterCycles(ctx.Request().Context(), filter, ordering, page)
	if err != nil {
		return errors.Wrap(err, "querying cycles")
	}
	return ctx.JSON(http.StatusOK, cycles)
}

func (api *cycleApi) queryMine(ctx echo.Context) error {
	var filter cycle.QueryFilter
	page, ordering, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter.TeacherID = ctxUsr.ID

	cycles, err := api.svc.FilterCycles(ctx.Request().Context(), filter, ordering, page)
	if err != nil {
		return errors.Wrap(err, "querying cycles")
	}
	return ctx.JSON(http.StatusOK, cycles)
}

func (api *cycleApi) retrieve(ctx echo.Context) error {
	cyc, err := getContextObject[cycle.SchoolCycle](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cyc)
}

func (api *cycleApi) update(ctx echo.Context) error {
	cyc, err := getContextObject[cycle.SchoolCycle](ctx)
	if err != nil {
		return err
	}

	var data cycle.UpdateCycle
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cyc, err = api.svc.UpdateCycle(ctx.Request().Context(), ctxUsr, cyc, data)
	if err != nil {
		return errors.Wrap(err, "updating cycle")
	}
	return ctx.JSON(http.StatusOK, cyc)
}

func (api *cycleApi) destroy(ctx echo.Context) error {
	cyc, err := getContextObject[cycle.SchoolCycle](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteCycle(ctx.Request().Context(), ctxUsr, cyc); err != nil {
		return errors.Wrap(err, "deleting cycle")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *cycleApi) queryStudents(ctx echo.Context) error {
	cyc, err := getContextObject[cycle.SchoolCycle](ctx)
	if err != nil {
		return err
	}
	var filter student.QueryFilter
	page, ordering, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}
	filter.SchoolCycleID = cyc.ID

	students, err := api.studentSvc.Filter(ctx.Request().Context(), filter, ordering, page)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

// Partials

func (api *cycleApi) queryPartials(ctx echo.Context) error {
	cyc, err := getContextObject[cycle.SchoolCycle](ctx)
	if err != nil {
		return err
	}
	partials, err := api.svc.ListPartials(ctx.Request().Context(), cyc.ID)
	if err != nil {
		return errors.Wrap(err, "listing partials")
	}
	return ctx.JSON(http.StatusOK, partials)
}

func (api *cycleApi) createPartials(ctx echo.Context) error {
	cyc, err := getContextObject[cycle.SchoolCycle](ctx)
	if err != nil {
		return err
	}

	var data cycle.BulkPartials
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	partials, err := api.svc.CreatePartials(ctx.Request().Context(), ctxUsr, cyc.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating partials")
	}
	return ctx.JSON(http.StatusCreated, partials)
}

func (api *cycleApi) retrievePartial(ctx echo.Context) error {
	p, err := getContextObject[cycle.Partial](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *cycleApi) updatePartial(ctx echo.Context) error {
	p, err := getContextObject[cycle.Partial](ctx)
	if err != nil {
		return err
	}

	var data cycle.UpdatePartial
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	p, err = api.svc.UpdatePartial(ctx.Request().Context(), ctxUsr, p, data)
	if err != nil {
		return errors.Wrap(err, "updating partial")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *cycleApi) destroyPartial(ctx echo.Context) error {
	p, err := getContextObject[cycle.Partial](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeletePartial(ctx.Request().Context(), ctxUsr, p); err != nil {
		return errors.Wrap(err, "deleting partial")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Formative fields

func (api *cycleApi) queryFields(ctx echo.Context) error {
	cyc, err := getContextObject[cycle.SchoolCycle](ctx)
	if err != nil {
		return err
	}
	fields, err := api.svc.ListFormativeFields(ctx.Request().Context(), cyc.ID)
	if err != nil {
		return errors.Wrap(err, "listing formative fields")
	}
	return ctx.JSON(http.StatusOK, fields)
}

func (api *cycleApi) summary(ctx echo.Context) error {
	cyc, err := getContextObject[cycle.SchoolCycle](ctx)
	if err != nil {
		return err
	}
	summary, err := api.gradingSvc.Summary(ctx.Request().Context(), cyc.ID)
	if err != nil {
		return errors.Wrap(err, "summarizing formative fields")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *cycleApi) createField(ctx echo.Context) error {
	var data cycle.NewFormativeField
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ff, err := api.svc.CreateFormativeField(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating formative field")
	}
	return ctx.JSON(http.StatusCreated, ff)
}

func (api *cycleApi) setupField(ctx echo.Context) error {
	var data grading.FieldSetup
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	fs, err := api.gradingSvc.SetupFormativeField(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "setting up formative field")
	}
	return ctx.JSON(http.StatusCreated, fs)
}

func (api *cycleApi) retrieveField(ctx echo.Context) error {
	ff, err := getContextObject[cycle.FormativeField](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ff)
}

func (api *cycleApi) updateField(ctx echo.Context) error {
	ff, err := getContextObject[cycle.FormativeField](ctx)
	if err != nil {
		return err
	}

	var data cycle.UpdateFormativeField
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ff, err = api.svc.UpdateFormativeField(ctx.Request().Context(), ctxUsr, ff, data)
	if err != nil {
		return errors.Wrap(err, "updating formative field")
	}
	return ctx.JSON(http.StatusOK, ff)
}

func (api *cycleApi) destroyField(ctx echo.Context) error {
	ff, err := getContextObject[cycle.FormativeField](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteFormativeField(ctx.Request().Context(), ctxUsr, ff); err != nil {
		return errors.Wrap(err, "deleting formative field")
	}
	return ctx.NoContent(http.StatusNoContent)
}
