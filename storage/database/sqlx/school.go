package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/school"
)

const schoolSelect = `SELECT id, cct, name, school_type_id, shift_id, period_catalog_id, postal_code, latitude, longitude,
	created_at FROM schools`

var schoolOrderings = []string{"id", "cct", "name", "created_at"}

type schoolRepository struct {
	base
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{base{exec: exec}}
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO schools
		(cct, name, school_type_id, shift_id, period_catalog_id, postal_code, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		sch.CCT, sch.Name, sch.SchoolTypeID, sch.ShiftID, sch.PeriodCatalogID, sch.PostalCode, sch.Latitude,
		sch.Longitude, sch.CreatedAt,
	).Scan(&sch.ID)
	if err != nil {
		return school.School{}, trapWriteErr(err, "school", "inserting school")
	}
	return sch, nil
}

func (repo schoolRepository) GetSchoolByID(ctx context.Context, id int64, exec ...core.DBExecutor) (school.School, error) {
	exe := repo.getExec(exec)
	var sch school.School
	if err := exe.GetContext(ctx, &sch, exe.Rebind(schoolSelect+" WHERE id = ?"), id); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "finding school")
	}
	return sch, nil
}

func (repo schoolRepository) FilterSchools(ctx context.Context, filter school.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]school.School, error) {
	var w where
	w.search(filter.Search, "name", "cct")
	if filter.SchoolTypeID != 0 {
		w.add("school_type_id = ?", filter.SchoolTypeID)
	}
	if filter.ShiftID != 0 {
		w.add("shift_id = ?", filter.ShiftID)
	}
	if filter.PeriodCatalogID != 0 {
		w.add("period_catalog_id = ?", filter.PeriodCatalogID)
	}

	q, args := paginate(schoolSelect+w.String()+orderBy(ordering, "", schoolOrderings, "id"), w.args, page)
	schools := make([]school.School, 0)
	if err := repo.exec.SelectContext(ctx, &schools, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	return schools, nil
}

func (repo schoolRepository) UpdateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`UPDATE schools SET
		cct = ?, name = ?, school_type_id = ?, shift_id = ?, period_catalog_id = ?, postal_code = ?, latitude = ?,
		longitude = ?
		WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		sch.CCT, sch.Name, sch.SchoolTypeID, sch.ShiftID, sch.PeriodCatalogID, sch.PostalCode, sch.Latitude,
		sch.Longitude, sch.ID,
	)
	if err != nil {
		return school.School{}, trapWriteErr(err, "school", "updating school")
	}
	if err = checkAffected(res, school.ErrNotFound); err != nil {
		return school.School{}, err
	}
	return sch, nil
}

// DeleteSchool fails with a conflict while school cycles are held in the school.
func (repo schoolRepository) DeleteSchool(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM schools WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "school", "deleting school")
	}
	return checkAffected(res, school.ErrNotFound)
}
