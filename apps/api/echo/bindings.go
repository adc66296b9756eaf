package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bind binds the request into dst. Malformed payloads are validation errors.
func bind(ctx echo.Context, dst interface{}) error {
	if err := ctx.Bind(dst); err != nil {
		msg := "malformed request"
		if he, ok := err.(*echo.HTTPError); ok {
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}
		return core.NewValidationError(errors.New(msg))
	}
	return nil
}

// bindQuery binds the query filter, the pagination and the ordering of list endpoints.
func bindQuery(ctx echo.Context, filter interface{}) (core.Pagination, []core.DBOrdering, error) {
	var page core.Pagination
	if filter != nil {
		if err := bind(ctx, filter); err != nil {
			return page, nil, err
		}
	}
	if err := bind(ctx, &page); err != nil {
		return page, nil, err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	return page, ordering.Orderings, nil
}
