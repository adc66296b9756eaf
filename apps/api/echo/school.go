package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core/school"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *school.Service, opts Options) {
	api := schoolApi{
		svc:      svc,
		validate: opts.Validate,
	}
	obj := objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetByID(ctx, id)
	})

	sg := g.Group("/schools", authed...)
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("/:id", api.retrieve, obj)
	sg.PUT("/:id", api.update, adminMiddleware(), obj)
	sg.DELETE("/:id", api.destroy, adminMiddleware(), obj)
}

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sch, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) query(ctx echo.Context) error {
	var filter school.QueryFilter
	page, ordering, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}

	schools, err := api.svc.Filter(ctx.Request().Context(), filter, ordering, page)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	sch, err := getContextObject[school.School](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	sch, err := getContextObject[school.School](ctx)
	if err != nil {
		return err
	}

	var data school.UpdateSchool
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sch, err = api.svc.Update(ctx.Request().Context(), sch, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) destroy(ctx echo.Context) error {
	sch, err := getContextObject[school.School](ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), sch.ID); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return ctx.NoContent(http.StatusNoContent)
}
