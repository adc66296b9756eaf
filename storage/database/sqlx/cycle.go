package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/cycle"
)

const (
	cycleSelect = `SELECT id, school_id, teacher_id, name, year, cycle_label, grade, group_name, period_catalog_id,
		is_active, created_at FROM school_cycles`
	partialSelect        = "SELECT id, school_cycle_id, name, start_date, end_date, created_at FROM partials"
	formativeFieldSelect = "SELECT id, school_cycle_id, name, code, created_at FROM formative_fields"
)

var cycleOrderings = []string{"id", "name", "year", "created_at"}

type cycleRepository struct {
	base
}

var _ cycle.Repository = (*cycleRepository)(nil) // interface compliance check

func NewCycleRepository(exec core.DBExecutor) *cycleRepository {
	return &cycleRepository{base{exec: exec}}
}

func (repo cycleRepository) CreateCycle(ctx context.Context, cyc cycle.SchoolCycle, exec ...core.DBExecutor) (cycle.SchoolCycle, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO school_cycles
		(school_id, teacher_id, name, year, cycle_label, grade, group_name, period_catalog_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		cyc.SchoolID, cyc.TeacherID, cyc.Name, cyc.Year, cyc.CycleLabel, cyc.Grade, cyc.GroupName, cyc.PeriodCatalogID,
		cyc.IsActive, cyc.CreatedAt,
	).Scan(&cyc.ID)
	if err != nil {
		return cycle.SchoolCycle{}, trapWriteErr(err, "school cycle", "inserting school cycle")
	}
	return cyc, nil
}

func (repo cycleRepository) GetCycleByID(ctx context.Context, id int64, exec ...core.DBExecutor) (cycle.SchoolCycle, error) {
	exe := repo.getExec(exec)
	var cyc cycle.SchoolCycle
	if err := exe.GetContext(ctx, &cyc, exe.Rebind(cycleSelect+" WHERE id = ?"), id); err != nil {
		return cycle.SchoolCycle{}, trapNoRowsErr(err, cycle.ErrNotFound, "finding school cycle")
	}
	return cyc, nil
}

func (repo cycleRepository) FilterCycles(ctx context.Context, filter cycle.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]cycle.SchoolCycle, error) {
	var w where
	w.search(filter.Search, "name", "cycle_label", "group_name")
	if filter.TeacherID != 0 {
		w.add("teacher_id = ?", filter.TeacherID)
	}
	if filter.SchoolID != 0 {
		w.add("school_id = ?", filter.SchoolID)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	q, args := paginate(cycleSelect+w.String()+orderBy(ordering, "", cycleOrderings, "id"), w.args, page)
	cycles := make([]cycle.SchoolCycle, 0)
	if err := repo.exec.SelectContext(ctx, &cycles, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying school cycles")
	}
	return cycles, nil
}

func (repo cycleRepository) UpdateCycle(ctx context.Context, cyc cycle.SchoolCycle, exec ...core.DBExecutor) (cycle.SchoolCycle, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`UPDATE school_cycles SET
		school_id = ?, teacher_id = ?, name = ?, year = ?, cycle_label = ?, grade = ?, group_name = ?,
		period_catalog_id = ?, is_active = ?
		WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		cyc.SchoolID, cyc.TeacherID, cyc.Name, cyc.Year, cyc.CycleLabel, cyc.Grade, cyc.GroupName, cyc.PeriodCatalogID,
		cyc.IsActive, cyc.ID,
	)
	if err != nil {
		return cycle.SchoolCycle{}, trapWriteErr(err, "school cycle", "updating school cycle")
	}
	if err = checkAffected(res, cycle.ErrNotFound); err != nil {
		return cycle.SchoolCycle{}, err
	}
	return cyc, nil
}

// DeleteCycle cascades to the students, partials and formative fields of the cycle.
func (repo cycleRepository) DeleteCycle(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM school_cycles WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "school cycle", "deleting school cycle")
	}
	return checkAffected(res, cycle.ErrNotFound)
}

// Partials

func (repo cycleRepository) CreatePartial(ctx context.Context, p cycle.Partial, exec ...core.DBExecutor) (cycle.Partial, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO partials (school_cycle_id, name, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err := exe.QueryRowxContext(ctx, q, p.SchoolCycleID, p.Name, p.StartDate, p.EndDate, p.CreatedAt).Scan(&p.ID); err != nil {
		return cycle.Partial{}, trapWriteErr(err, "partial", "inserting partial")
	}
	return p, nil
}

func (repo cycleRepository) GetPartialByID(ctx context.Context, id int64, exec ...core.DBExecutor) (cycle.Partial, error) {
	exe := repo.getExec(exec)
	var p cycle.Partial
	if err := exe.GetContext(ctx, &p, exe.Rebind(partialSelect+" WHERE id = ?"), id); err != nil {
		return cycle.Partial{}, trapNoRowsErr(err, cycle.ErrPartialNotFound, "finding partial")
	}
	return p, nil
}

func (repo cycleRepository) QueryPartials(ctx context.Context, cycleID int64, exec ...core.DBExecutor) ([]cycle.Partial, error) {
	exe := repo.getExec(exec)
	partials := make([]cycle.Partial, 0)
	q := exe.Rebind(partialSelect + " WHERE school_cycle_id = ? ORDER BY start_date, id")
	if err := exe.SelectContext(ctx, &partials, q, cycleID); err != nil {
		return nil, errors.Wrap(err, "querying partials")
	}
	return partials, nil
}

func (repo cycleRepository) UpdatePartial(ctx context.Context, p cycle.Partial, exec ...core.DBExecutor) (cycle.Partial, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE partials SET name = ?, start_date = ?, end_date = ? WHERE id = ?")
	res, err := exe.ExecContext(ctx, q, p.Name, p.StartDate, p.EndDate, p.ID)
	if err != nil {
		return cycle.Partial{}, trapWriteErr(err, "partial", "updating partial")
	}
	if err = checkAffected(res, cycle.ErrPartialNotFound); err != nil {
		return cycle.Partial{}, err
	}
	return p, nil
}

func (repo cycleRepository) DeletePartial(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM partials WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "partial", "deleting partial")
	}
	return checkAffected(res, cycle.ErrPartialNotFound)
}

// Formative fields

func (repo cycleRepository) CreateFormativeField(ctx context.Context, ff cycle.FormativeField, exec ...core.DBExecutor) (cycle.FormativeField, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO formative_fields (school_cycle_id, name, code, created_at)
		VALUES (?, ?, ?, ?) RETURNING id`)
	if err := exe.QueryRowxContext(ctx, q, ff.SchoolCycleID, ff.Name, ff.Code, ff.CreatedAt).Scan(&ff.ID); err != nil {
		return cycle.FormativeField{}, trapWriteErr(err, "formative field", "inserting formative field")
	}
	return ff, nil
}

func (repo cycleRepository) GetFormativeFieldByID(ctx context.Context, id int64, exec ...core.DBExecutor) (cycle.FormativeField, error) {
	exe := repo.getExec(exec)
	var ff cycle.FormativeField
	if err := exe.GetContext(ctx, &ff, exe.Rebind(formativeFieldSelect+" WHERE id = ?"), id); err != nil {
		return cycle.FormativeField{}, trapNoRowsErr(err, cycle.ErrFormativeFieldNotFound, "finding formative field")
	}
	return ff, nil
}

func (repo cycleRepository) QueryFormativeFields(ctx context.Context, cycleID int64, exec ...core.DBExecutor) ([]cycle.FormativeField, error) {
	exe := repo.getExec(exec)
	fields := make([]cycle.FormativeField, 0)
	q := exe.Rebind(formativeFieldSelect + " WHERE school_cycle_id = ? ORDER BY id")
	if err := exe.SelectContext(ctx, &fields, q, cycleID); err != nil {
		return nil, errors.Wrap(err, "querying formative fields")
	}
	return fields, nil
}

func (repo cycleRepository) UpdateFormativeField(ctx context.Context, ff cycle.FormativeField, exec ...core.DBExecutor) (cycle.FormativeField, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE formative_fields SET name = ?, code = ? WHERE id = ?"), ff.Name, ff.Code, ff.ID)
	if err != nil {
		return cycle.FormativeField{}, trapWriteErr(err, "formative field", "updating formative field")
	}
	if err = checkAffected(res, cycle.ErrFormativeFieldNotFound); err != nil {
		return cycle.FormativeField{}, err
	}
	return ff, nil
}

func (repo cycleRepository) DeleteFormativeField(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM formative_fields WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "formative field", "deleting formative field")
	}
	return checkAffected(res, cycle.ErrFormativeFieldNotFound)
}
