package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
)

type catalogRepository struct {
	base
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(exec core.DBExecutor) *catalogRepository {
	return &catalogRepository{base{exec: exec}}
}

// table guards the interpolated table name.
func (repo catalogRepository) table(kind catalog.Kind) (string, error) {
	if !kind.Valid() {
		return "", errors.Errorf("unknown catalog %q", kind)
	}
	return kind.Table(), nil
}

func (repo catalogRepository) ListItems(ctx context.Context, kind catalog.Kind, exec ...core.DBExecutor) ([]catalog.Item, error) {
	tbl, err := repo.table(kind)
	if err != nil {
		return nil, err
	}
	items := make([]catalog.Item, 0)
	q := "SELECT id, name, created_at FROM " + tbl + " ORDER BY id"
	if err = repo.getExec(exec).SelectContext(ctx, &items, q); err != nil {
		return nil, errors.Wrapf(err, "querying %s", tbl)
	}
	return items, nil
}

func (repo catalogRepository) GetItem(ctx context.Context, kind catalog.Kind, id int64, exec ...core.DBExecutor) (catalog.Item, error) {
	tbl, err := repo.table(kind)
	if err != nil {
		return catalog.Item{}, err
	}
	exe := repo.getExec(exec)
	var item catalog.Item
	q := exe.Rebind("SELECT id, name, created_at FROM " + tbl + " WHERE id = ?")
	if err = exe.GetContext(ctx, &item, q, id); err != nil {
		return catalog.Item{}, trapNoRowsErr(err, kind.ErrNotFound(), "finding "+kind.Label())
	}
	return item, nil
}

func (repo catalogRepository) GetItemByName(ctx context.Context, kind catalog.Kind, name string, exec ...core.DBExecutor) (catalog.Item, error) {
	tbl, err := repo.table(kind)
	if err != nil {
		return catalog.Item{}, err
	}
	exe := repo.getExec(exec)
	var item catalog.Item
	q := exe.Rebind("SELECT id, name, created_at FROM " + tbl + " WHERE LOWER(name) = LOWER(?)")
	if err = exe.GetContext(ctx, &item, q, name); err != nil {
		return catalog.Item{}, trapNoRowsErr(err, kind.ErrNotFound(), "finding "+kind.Label())
	}
	return item, nil
}

func (repo catalogRepository) CreateItem(ctx context.Context, kind catalog.Kind, item catalog.Item, exec ...core.DBExecutor) (catalog.Item, error) {
	tbl, err := repo.table(kind)
	if err != nil {
		return catalog.Item{}, err
	}
	exe := repo.getExec(exec)
	q := exe.Rebind("INSERT INTO " + tbl + " (name, created_at) VALUES (?, ?) RETURNING id")
	if err = exe.QueryRowxContext(ctx, q, item.Name, item.CreatedAt).Scan(&item.ID); err != nil {
		return catalog.Item{}, trapWriteErr(err, kind.Label(), "inserting "+kind.Label())
	}
	return item, nil
}

func (repo catalogRepository) DeleteItem(ctx context.Context, kind catalog.Kind, id int64, exec ...core.DBExecutor) error {
	tbl, err := repo.table(kind)
	if err != nil {
		return err
	}
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM "+tbl+" WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, kind.Label(), "deleting "+kind.Label())
	}
	return checkAffected(res, kind.ErrNotFound())
}
