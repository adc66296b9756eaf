package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/grading"
)

const (
	workTypeSelect   = "SELECT id, teacher_id, name, evaluation_weight, created_at FROM work_types"
	evaluationSelect = `SELECT e.id, e.formative_field_id, e.partial_id, e.work_type_id, wt.name AS work_type_name,
		ff.school_cycle_id, e.evaluation_weight, e.created_at
		FROM work_type_evaluations e
		JOIN work_types wt ON wt.id = e.work_type_id
		JOIN formative_fields ff ON ff.id = e.formative_field_id`
	studentWorkSelect = `SELECT sw.id, sw.student_id, sw.formative_field_id, sw.partial_id, sw.work_type_id, sw.teacher_id,
		ff.school_cycle_id, sw.name, sw.grade, sw.work_date, sw.created_at, sw.updated_at
		FROM student_works sw
		JOIN formative_fields ff ON ff.id = sw.formative_field_id`
)

type gradingRepository struct {
	base
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(exec core.DBExecutor) *gradingRepository {
	return &gradingRepository{base{exec: exec}}
}

// Work types

func (repo gradingRepository) CreateWorkType(ctx context.Context, wt grading.WorkType, exec ...core.DBExecutor) (grading.WorkType, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("INSERT INTO work_types (teacher_id, name, evaluation_weight, created_at) VALUES (?, ?, ?, ?) RETURNING id")
	if err := exe.QueryRowxContext(ctx, q, wt.TeacherID, wt.Name, wt.EvaluationWeight, wt.CreatedAt).Scan(&wt.ID); err != nil {
		return grading.WorkType{}, trapWriteErr(err, "work type", "inserting work type")
	}
	return wt, nil
}

func (repo gradingRepository) GetWorkTypeByID(ctx context.Context, id int64, exec ...core.DBExecutor) (grading.WorkType, error) {
	exe := repo.getExec(exec)
	var wt grading.WorkType
	if err := exe.GetContext(ctx, &wt, exe.Rebind(workTypeSelect+" WHERE id = ?"), id); err != nil {
		return grading.WorkType{}, trapNoRowsErr(err, grading.ErrWorkTypeNotFound, "finding work type")
	}
	return wt, nil
}

func (repo gradingRepository) FilterWorkTypes(ctx context.Context, filter grading.WorkTypeFilter, page core.Pagination) ([]grading.WorkType, error) {
	var w where
	w.search(filter.Search, "name")
	if filter.TeacherID != 0 {
		w.add("teacher_id = ?", filter.TeacherID)
	}

	q, args := paginate(workTypeSelect+w.String()+" ORDER BY name", w.args, page)
	workTypes := make([]grading.WorkType, 0)
	if err := repo.exec.SelectContext(ctx, &workTypes, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying work types")
	}
	return workTypes, nil
}

func (repo gradingRepository) UpdateWorkType(ctx context.Context, wt grading.WorkType, exec ...core.DBExecutor) (grading.WorkType, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE work_types SET name = ?, evaluation_weight = ? WHERE id = ?")
	res, err := exe.ExecContext(ctx, q, wt.Name, wt.EvaluationWeight, wt.ID)
	if err != nil {
		return grading.WorkType{}, trapWriteErr(err, "work type", "updating work type")
	}
	if err = checkAffected(res, grading.ErrWorkTypeNotFound); err != nil {
		return grading.WorkType{}, err
	}
	return wt, nil
}

// DeleteWorkType cascades to the evaluations of the work type, but fails while student works use it.
func (repo gradingRepository) DeleteWorkType(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM work_types WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "work type", "deleting work type")
	}
	return checkAffected(res, grading.ErrWorkTypeNotFound)
}

// Evaluations

func (repo gradingRepository) getEvaluation(ctx context.Context, exe core.DBExecutor, id int64) (grading.Evaluation, error) {
	var ev grading.Evaluation
	if err := exe.GetContext(ctx, &ev, exe.Rebind(evaluationSelect+" WHERE e.id = ?"), id); err != nil {
		return grading.Evaluation{}, trapNoRowsErr(err, grading.ErrEvaluationNotFound, "finding work type evaluation")
	}
	return ev, nil
}

func (repo gradingRepository) CreateEvaluation(ctx context.Context, ev grading.Evaluation, exec ...core.DBExecutor) (grading.Evaluation, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO work_type_evaluations (formative_field_id, partial_id, work_type_id, evaluation_weight, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		ev.FormativeFieldID, ev.PartialID, ev.WorkTypeID, ev.EvaluationWeight, ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return grading.Evaluation{}, trapWriteErr(err, "work type evaluation", "inserting work type evaluation")
	}
	return repo.getEvaluation(ctx, exe, ev.ID)
}

func (repo gradingRepository) GetEvaluationByID(ctx context.Context, id int64, exec ...core.DBExecutor) (grading.Evaluation, error) {
	return repo.getEvaluation(ctx, repo.getExec(exec), id)
}

func (repo gradingRepository) FilterEvaluations(ctx context.Context, filter grading.EvaluationFilter, page core.Pagination) ([]grading.Evaluation, error) {
	var w where
	if filter.SchoolCycleID != 0 {
		w.add("ff.school_cycle_id = ?", filter.SchoolCycleID)
	}
	if filter.FormativeFieldID != 0 {
		w.add("e.formative_field_id = ?", filter.FormativeFieldID)
	}
	if filter.PartialID != 0 {
		w.add("e.partial_id = ?", filter.PartialID)
	}
	if filter.WorkTypeID != 0 {
		w.add("e.work_type_id = ?", filter.WorkTypeID)
	}

	q, args := paginate(evaluationSelect+w.String()+" ORDER BY e.formative_field_id, e.partial_id, wt.name", w.args, page)
	evals := make([]grading.Evaluation, 0)
	if err := repo.exec.SelectContext(ctx, &evals, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying work type evaluations")
	}
	return evals, nil
}

func (repo gradingRepository) UpdateEvaluation(ctx context.Context, ev grading.Evaluation, exec ...core.DBExecutor) (grading.Evaluation, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE work_type_evaluations SET partial_id = ?, evaluation_weight = ? WHERE id = ?")
	res, err := exe.ExecContext(ctx, q, ev.PartialID, ev.EvaluationWeight, ev.ID)
	if err != nil {
		return grading.Evaluation{}, trapWriteErr(err, "work type evaluation", "updating work type evaluation")
	}
	if err = checkAffected(res, grading.ErrEvaluationNotFound); err != nil {
		return grading.Evaluation{}, err
	}
	return ev, nil
}

func (repo gradingRepository) DeleteEvaluation(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM work_type_evaluations WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "work type evaluation", "deleting work type evaluation")
	}
	return checkAffected(res, grading.ErrEvaluationNotFound)
}

// Student works

func (repo gradingRepository) CreateStudentWork(ctx context.Context, sw grading.StudentWork, exec ...core.DBExecutor) (grading.StudentWork, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO student_works
		(student_id, formative_field_id, partial_id, work_type_id, teacher_id, name, grade, work_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		sw.StudentID, sw.FormativeFieldID, sw.PartialID, sw.WorkTypeID, sw.TeacherID, sw.Name, sw.Grade, sw.WorkDate,
		sw.CreatedAt, sw.UpdatedAt,
	).Scan(&sw.ID)
	if err != nil {
		return grading.StudentWork{}, trapWriteErr(err, "student work", "inserting student work")
	}
	return sw, nil
}

func (repo gradingRepository) GetStudentWorkByID(ctx context.Context, id int64, exec ...core.DBExecutor) (grading.StudentWork, error) {
	exe := repo.getExec(exec)
	var sw grading.StudentWork
	if err := exe.GetContext(ctx, &sw, exe.Rebind(studentWorkSelect+" WHERE sw.id = ?"), id); err != nil {
		return grading.StudentWork{}, trapNoRowsErr(err, grading.ErrStudentWorkNotFound, "finding student work")
	}
	return sw, nil
}

func (repo gradingRepository) FilterStudentWorks(ctx context.Context, filter grading.StudentWorkFilter, page core.Pagination) ([]grading.StudentWork, error) {
	var w where
	if filter.SchoolCycleID != 0 {
		w.add("ff.school_cycle_id = ?", filter.SchoolCycleID)
	}
	if filter.StudentID != 0 {
		w.add("sw.student_id = ?", filter.StudentID)
	}
	if filter.FormativeFieldID != 0 {
		w.add("sw.formative_field_id = ?", filter.FormativeFieldID)
	}
	if filter.PartialID != 0 {
		w.add("sw.partial_id = ?", filter.PartialID)
	}
	if filter.WorkTypeID != 0 {
		w.add("sw.work_type_id = ?", filter.WorkTypeID)
	}
	if filter.TeacherID != 0 {
		w.add("sw.teacher_id = ?", filter.TeacherID)
	}
	w.search(filter.Name, "sw.name")

	q, args := paginate(studentWorkSelect+w.String()+" ORDER BY sw.work_date DESC, sw.id DESC", w.args, page)
	works := make([]grading.StudentWork, 0)
	if err := repo.exec.SelectContext(ctx, &works, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying student works")
	}
	return works, nil
}

func (repo gradingRepository) QueryNamedWorks(ctx context.Context, fieldID, partialID, workTypeID int64, name string, exec ...core.DBExecutor) ([]grading.StudentWork, error) {
	exe := repo.getExec(exec)
	works := make([]grading.StudentWork, 0)
	q := exe.Rebind(studentWorkSelect + ` WHERE sw.formative_field_id = ? AND sw.partial_id = ? AND sw.work_type_id = ?
		AND sw.name = ?`)
	if err := exe.SelectContext(ctx, &works, q, fieldID, partialID, workTypeID, name); err != nil {
		return nil, errors.Wrap(err, "querying named student works")
	}
	return works, nil
}

func (repo gradingRepository) UpdateStudentWork(ctx context.Context, sw grading.StudentWork, exec ...core.DBExecutor) (grading.StudentWork, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE student_works SET name = ?, grade = ?, work_date = ?, updated_at = ? WHERE id = ?")
	res, err := exe.ExecContext(ctx, q, sw.Name, sw.Grade, sw.WorkDate, sw.UpdatedAt, sw.ID)
	if err != nil {
		return grading.StudentWork{}, trapWriteErr(err, "student work", "updating student work")
	}
	if err = checkAffected(res, grading.ErrStudentWorkNotFound); err != nil {
		return grading.StudentWork{}, err
	}
	return sw, nil
}

func (repo gradingRepository) DeleteStudentWork(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM student_works WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "student work", "deleting student work")
	}
	return checkAffected(res, grading.ErrStudentWorkNotFound)
}
