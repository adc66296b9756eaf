// Package school manages the schools cycles are held in. A School is identified by its CCT (Clave de Centro de Trabajo).
package school

import (
	"context"
	"time"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
)

var ErrNotFound = core.NewNotFoundError("school")

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		GetSchoolByID(ctx context.Context, id int64, exec ...core.DBExecutor) (School, error)
		// FilterSchools does a case-insensitive match of QueryFilter.Search on School.Name or School.CCT.
		FilterSchools(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]School, error)
		UpdateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		DeleteSchool(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	ReferenceChecker interface {
		CheckReference(ctx context.Context, kind catalog.Kind, id int64, field string) error
	}

	Service struct {
		repo Repository
		refs ReferenceChecker
	}
)

func NewService(repo Repository, refs ReferenceChecker) *Service {
	return &Service{repo: repo, refs: refs}
}

func (svc *Service) checkReferences(ctx context.Context, sch School) error {
	if err := svc.refs.CheckReference(ctx, catalog.SchoolTypes, sch.SchoolTypeID, "school_type_id"); err != nil {
		return err
	}
	if err := svc.refs.CheckReference(ctx, catalog.Shifts, sch.ShiftID.Int64, "shift_id"); err != nil {
		return err
	}
	return svc.refs.CheckReference(ctx, catalog.PeriodCatalogs, sch.PeriodCatalogID.Int64, "period_catalog_id")
}

func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	sch := School{
		CCT:             ns.CCT,
		Name:            ns.Name,
		SchoolTypeID:    ns.SchoolTypeID,
		ShiftID:         ns.ShiftID,
		PeriodCatalogID: ns.PeriodCatalogID,
		PostalCode:      ns.PostalCode,
		Latitude:        ns.Latitude,
		Longitude:       ns.Longitude,
		CreatedAt:       time.Now().UTC(),
	}
	if err := svc.checkReferences(ctx, sch); err != nil {
		return School{}, err
	}
	return svc.repo.CreateSchool(ctx, sch)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (School, error) {
	return svc.repo.GetSchoolByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]School, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.FilterSchools(ctx, filter, ordering, page)
}

func (svc *Service) Update(ctx context.Context, sch School, us UpdateSchool) (School, error) {
	if us.CCT != "" {
		sch.CCT = us.CCT
	}
	if us.Name != "" {
		sch.Name = us.Name
	}
	if us.SchoolTypeID != 0 {
		sch.SchoolTypeID = us.SchoolTypeID
	}
	if us.ShiftID.Valid {
		sch.ShiftID = us.ShiftID
	}
	if us.PeriodCatalogID.Valid {
		sch.PeriodCatalogID = us.PeriodCatalogID
	}
	if us.PostalCode.Valid {
		sch.PostalCode = us.PostalCode
	}
	if us.Latitude.Valid {
		sch.Latitude = us.Latitude
	}
	if us.Longitude.Valid {
		sch.Longitude = us.Longitude
	}
	if err := svc.checkReferences(ctx, sch); err != nil {
		return School{}, err
	}
	return svc.repo.UpdateSchool(ctx, sch)
}

// Delete removes a school. Schools still holding cycles cannot be deleted (core.ConflictError).
func (svc *Service) Delete(ctx context.Context, id int64) error {
	return svc.repo.DeleteSchool(ctx, id)
}
