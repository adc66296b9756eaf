package catalog

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
)

var errUnknownKind = core.NewNotFoundError("catalog")

type (
	Repository interface {
		ListItems(ctx context.Context, kind Kind, exec ...core.DBExecutor) ([]Item, error)
		GetItem(ctx context.Context, kind Kind, id int64, exec ...core.DBExecutor) (Item, error)
		GetItemByName(ctx context.Context, kind Kind, name string, exec ...core.DBExecutor) (Item, error)
		CreateItem(ctx context.Context, kind Kind, item Item, exec ...core.DBExecutor) (Item, error)
		DeleteItem(ctx context.Context, kind Kind, id int64, exec ...core.DBExecutor) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) List(ctx context.Context, kind Kind) ([]Item, error) {
	if !kind.Valid() {
		return nil, errUnknownKind
	}
	return svc.repo.ListItems(ctx, kind)
}

func (svc *Service) Get(ctx context.Context, kind Kind, id int64) (Item, error) {
	if !kind.Valid() {
		return Item{}, errUnknownKind
	}
	return svc.repo.GetItem(ctx, kind, id)
}

func (svc *Service) AccessLevelByName(ctx context.Context, name string) (Item, error) {
	return svc.repo.GetItemByName(ctx, AccessLevels, core.CleanString(name, true /* lower */))
}

func (svc *Service) Create(ctx context.Context, kind Kind, ni NewItem) (Item, error) {
	if !kind.Valid() {
		return Item{}, errUnknownKind
	}
	return svc.repo.CreateItem(ctx, kind, Item{Name: ni.Name, CreatedAt: time.Now().UTC()})
}

// Delete removes a catalog item. Items still referenced by other rows cannot be deleted (core.ConflictError).
func (svc *Service) Delete(ctx context.Context, kind Kind, id int64) error {
	if !kind.Valid() {
		return errUnknownKind
	}
	return svc.repo.DeleteItem(ctx, kind, id)
}

// CheckReference returns a core.ValidationError on `field` when the referenced item does not exist.
// A zero id is not checked.
func (svc *Service) CheckReference(ctx context.Context, kind Kind, id int64, field string) error {
	if id == 0 {
		return nil
	}
	if _, err := svc.repo.GetItem(ctx, kind, id); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError(field, "does not exist")
		}
		return errors.Wrapf(err, "checking %s", kind.Label())
	}
	return nil
}
