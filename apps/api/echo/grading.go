package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/grading"
)

type gradingApi struct {
	svc      *grading.Service
	validate *validator.Validate
}

func registerGradingAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *grading.Service, opts Options) {
	api := gradingApi{
		svc:      svc,
		validate: opts.Validate,
	}
	workTypeObj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetWorkType(ctx, id)
	})
	evaluationObj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetEvaluation(ctx, id)
	})
	workObj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetStudentWork(ctx, id)
	})

	wg := g.Group("/work-types", authed...)
	wg.POST("", api.createWorkType)
	wg.GET("", api.queryWorkTypes)
	wg.GET("/:id", api.retrieveWorkType, workTypeObj)
	wg.PUT("/:id", api.updateWorkType, workTypeObj)
	wg.DELETE("/:id", api.destroyWorkType, workTypeObj)

	eg := g.Group("/work-type-evaluations", authed...)
	eg.POST("", api.createEvaluation)
	eg.GET("", api.queryEvaluations)
	eg.GET("/:id", api.retrieveEvaluation, evaluationObj)
	eg.PUT("/:id", api.updateEvaluation, evaluationObj)
	eg.DELETE("/:id", api.destroyEvaluation, evaluationObj)

	sg := g.Group("/student-works", authed...)
	sg.POST("", api.createWork)
	sg.POST("/bulk", api.gradeAll)
	sg.GET("", api.queryWorks)
	sg.GET("/:id", api.retrieveWork, workObj)
	sg.PUT("/:id", api.updateWork, workObj)
	sg.DELETE("/:id", api.destroyWork, workObj)
}

// Work types

func (api *gradingApi) createWorkType(ctx echo.Context) error {
	var data grading.NewWorkType
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

	wt, err := api.svc.CreateWorkType(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating work type")
	}
	return ctx.JSON(http.StatusCreated, wt)
}

func (api *gradingApi) queryWorkTypes(ctx echo.Context) error {
	var filter grading.WorkTypeFilter
	page, _, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	workTypes, err := api.svc.FilterWorkTypes(ctx.Request().Context(), ctxUsr, filter, page)
	if err != nil {
		return errors.Wrap(err, "querying work types")
	}
	return ctx.JSON(http.StatusOK, workTypes)
}

func (api *gradingApi) retrieveWorkType(ctx echo.Context) error {
	wt, err := getContextObject[grading.WorkType](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !grading.CanManageWorkType(ctxUsr, wt) {
		return core.ErrPermissionDenied
	}
	return ctx.JSON(http.StatusOK, wt)
}

func (api *gradingApi) updateWorkType(ctx echo.Context) error {
	wt, err := getContextObject[grading.WorkType](ctx)
	if err != nil {
		return err
	}

	var data grading.UpdateWorkType
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

	wt, err = api.svc.UpdateWorkType(ctx.Request().Context(), ctxUsr, wt, data)
	if err != nil {
		return errors.Wrap(err, "updating work type")
	}
	return ctx.JSON(http.StatusOK, wt)
}

func (api *gradingApi) destroyWorkType(ctx echo.Context) error {
	wt, err := getContextObject[grading.WorkType](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteWorkType(ctx.Request().Context(), ctxUsr, wt); err != nil {
		return errors.Wrap(err, "deleting work type")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Evaluations

func (api *gradingApi) createEvaluation(ctx echo.Context) error {
	var data grading.NewEvaluation
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

	ev, err := api.svc.CreateEvaluation(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating evaluation")
	}
	return ctx.JSON(http.StatusCreated, ev)
}

func (api *gradingApi) queryEvaluations(ctx echo.Context) error {
	var filter grading.EvaluationFilter
	page, _, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}

	evaluations, err := api.svc.FilterEvaluations(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying evaluations")
	}
	return ctx.JSON(http.StatusOK, evaluations)
}

func (api *gradingApi) retrieveEvaluation(ctx echo.Context) error {
	ev, err := getContextObject[grading.Evaluation](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *gradingApi) updateEvaluation(ctx echo.Context) error {
	ev, err := getContextObject[grading.Evaluation](ctx)
	if err != nil {
		return err
	}

	var data grading.UpdateEvaluation
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

	ev, err = api.svc.UpdateEvaluation(ctx.Request().Context(), ctxUsr, ev, data)
	if err != nil {
		return errors.Wrap(err, "updating evaluation")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *gradingApi) destroyEvaluation(ctx echo.Context) error {
	ev, err := getContextObject[grading.Evaluation](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteEvaluation(ctx.Request().Context(), ctxUsr, ev); err != nil {
		return errors.Wrap(err, "deleting evaluation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Student works

func (api *gradingApi) createWork(ctx echo.Context) error {
	var data grading.NewStudentWork
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

	sw, err := api.svc.CreateStudentWork(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating student work")
	}
	return ctx.JSON(http.StatusCreated, sw)
}

func (api *gradingApi) gradeAll(ctx echo.Context) error {
	var data grading.BulkGrades
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

	res, err := api.svc.GradeAll(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "grading students")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *gradingApi) queryWorks(ctx echo.Context) error {
	var filter grading.StudentWorkFilter
	page, _, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() {
		filter.TeacherID = ctxUsr.ID
	}

	works, err := api.svc.FilterStudentWorks(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying student works")
	}
	return ctx.JSON(http.StatusOK, works)
}

func (api *gradingApi) retrieveWork(ctx echo.Context) error {
	sw, err := getContextObject[grading.StudentWork](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !(ctxUsr.IsAdmin() || sw.TeacherID == ctxUsr.ID) {
		return core.ErrPermissionDenied
	}
	return ctx.JSON(http.StatusOK, sw)
}

func (api *gradingApi) updateWork(ctx echo.Context) error {
	sw, err := getContextObject[grading.StudentWork](ctx)
	if err != nil {
		return err
	}

	var data grading.UpdateStudentWork
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

	sw, err = api.svc.UpdateStudentWork(ctx.Request().Context(), ctxUsr, sw, data)
	if err != nil {
		return errors.Wrap(err, "updating student work")
	}
	return ctx.JSON(http.StatusOK, sw)
}

func (api *gradingApi) destroyWork(ctx echo.Context) error {
	sw, err := getContextObject[grading.StudentWork](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteStudentWork(ctx.Request().Context(), ctxUsr, sw); err != nil {
		return errors.Wrap(err, "deleting student work")
	}
	return ctx.NoContent(http.StatusNoContent)
}
