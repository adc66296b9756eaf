package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core/student"
)

type studentApi struct {
	svc      *student.Service
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *student.Service, opts Options) {
	api := studentApi{
		svc:      svc,
		validate: opts.Validate,
	}
	studentObj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetByID(ctx, id)
	})
	attendanceObj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetAttendance(ctx, id)
	})

	sg := g.Group("/students", authed...)
	sg.POST("", api.create)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve, studentObj)
	sg.PUT("/:id", api.update, studentObj)
	sg.DELETE("/:id", api.destroy, studentObj)

	ag := g.Group("/attendances", authed...)
	ag.POST("", api.createAttendance)
	ag.GET("", api.queryAttendances)
	ag.GET("/:id", api.retrieveAttendance, attendanceObj)
	ag.PUT("/:id", api.updateAttendance, attendanceObj)
	ag.DELETE("/:id", api.destroyAttendance, attendanceObj)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
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

	st, err := api.svc.Create(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *studentApi) query(ctx echo.Context) error {
	var filter student.QueryFilter
	page, ordering, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}

	students, err := api.svc.Filter(ctx.Request().Context(), filter, ordering, page)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	st, err := getContextObject[student.Student](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) update(ctx echo.Context) error {
	st, err := getContextObject[student.Student](ctx)
	if err != nil {
		return err
	}

	var data student.UpdateStudent
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

	st, err = api.svc.Update(ctx.Request().Context(), ctxUsr, st, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	st, err := getContextObject[student.Student](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Delete(ctx.Request().Context(), ctxUsr, st); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Attendances

func (api *studentApi) createAttendance(ctx echo.Context) error {
	var data student.NewAttendance
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

	att, err := api.svc.CreateAttendance(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating attendance")
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (api *studentApi) queryAttendances(ctx echo.Context) error {
	var filter student.AttendanceFilter
	page, _, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}

	attendances, err := api.svc.FilterAttendances(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying attendances")
	}
	return ctx.JSON(http.StatusOK, attendances)
}

func (api *studentApi) retrieveAttendance(ctx echo.Context) error {
	att, err := getContextObject[student.Attendance](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *studentApi) updateAttendance(ctx echo.Context) error {
	att, err := getContextObject[student.Attendance](ctx)
	if err != nil {
		return err
	}

	var data student.UpdateAttendance
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

	att, err = api.svc.UpdateAttendance(ctx.Request().Context(), ctxUsr, att, data)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *studentApi) destroyAttendance(ctx echo.Context) error {
	att, err := getContextObject[student.Attendance](ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteAttendance(ctx.Request().Context(), ctxUsr, att); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return ctx.NoContent(http.StatusNoContent)
}
