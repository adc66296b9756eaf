package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core/catalog"
)

type catalogApi struct {
	svc      *catalog.Service
	validate *validator.Validate
}

func registerCatalogAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *catalog.Service, opts Options) {
	api := catalogApi{
		svc:      svc,
		validate: opts.Validate,
	}

	cg := g.Group("/catalogs/:kind", authed...)
	cg.GET("", api.list)
	cg.GET("/:id", api.retrieve)
	cg.POST("", api.create, adminMiddleware())
	cg.DELETE("/:id", api.destroy, adminMiddleware())
}

func kindParam(ctx echo.Context) (catalog.Kind, error) {
	kind, ok := catalog.KindFromSlug(ctx.Param("kind"))
	if !ok {
		return "", errHttpNotFound
	}
	return kind, nil
}

func idParam(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

func (api *catalogApi) list(ctx echo.Context) error {
	kind, err := kindParam(ctx)
	if err != nil {
		return err
	}
	items, err := api.svc.List(ctx.Request().Context(), kind)
	if err != nil {
		return errors.Wrapf(err, "listing %s", kind)
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *catalogApi) retrieve(ctx echo.Context) error {
	kind, err := kindParam(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	item, err := api.svc.Get(ctx.Request().Context(), kind, id)
	if err != nil {
		return errors.Wrapf(err, "finding %s", kind.Label())
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *catalogApi) create(ctx echo.Context) error {
	kind, err := kindParam(ctx)
	if err != nil {
		return err
	}

	var data catalog.NewItem
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	item, err := api.svc.Create(ctx.Request().Context(), kind, data)
	if err != nil {
		return errors.Wrapf(err, "creating %s", kind.Label())
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *catalogApi) destroy(ctx echo.Context) error {
	kind, err := kindParam(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), kind, id); err != nil {
		return errors.Wrapf(err, "deleting %s", kind.Label())
	}
	return ctx.NoContent(http.StatusNoContent)
}
