// Package grading holds what teachers grade students on: work types, the weight each work type carries in a
// formative field during a partial, and the graded works themselves.
package grading

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/student"
	"github.com/trezcool/escolar/core/user"
)

var (
	// errors
	ErrWorkTypeNotFound    = core.NewNotFoundError("work type")
	ErrEvaluationNotFound  = core.NewNotFoundError("work type evaluation")
	ErrStudentWorkNotFound = core.NewNotFoundError("student work")
	errNoActiveStudents    = errors.New("the school cycle has no active students")
)

type (
	Repository interface {
		CreateWorkType(ctx context.Context, wt WorkType, exec ...core.DBExecutor) (WorkType, error)
		GetWorkTypeByID(ctx context.Context, id int64, exec ...core.DBExecutor) (WorkType, error)
		FilterWorkTypes(ctx context.Context, filter WorkTypeFilter, page core.Pagination) ([]WorkType, error)
		UpdateWorkType(ctx context.Context, wt WorkType, exec ...core.DBExecutor) (WorkType, error)
		DeleteWorkType(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreateEvaluation(ctx context.Context, ev Evaluation, exec ...core.DBExecutor) (Evaluation, error)
		GetEvaluationByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Evaluation, error)
		FilterEvaluations(ctx context.Context, filter EvaluationFilter, page core.Pagination) ([]Evaluation, error)
		UpdateEvaluation(ctx context.Context, ev Evaluation, exec ...core.DBExecutor) (Evaluation, error)
		DeleteEvaluation(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreateStudentWork(ctx context.Context, sw StudentWork, exec ...core.DBExecutor) (StudentWork, error)
		GetStudentWorkByID(ctx context.Context, id int64, exec ...core.DBExecutor) (StudentWork, error)
		FilterStudentWorks(ctx context.Context, filter StudentWorkFilter, page core.Pagination) ([]StudentWork, error)
		// QueryNamedWorks returns the works named `name` of a formative field, partial and work type.
		QueryNamedWorks(ctx context.Context, fieldID, partialID, workTypeID int64, name string, exec ...core.DBExecutor) ([]StudentWork, error)
		UpdateStudentWork(ctx context.Context, sw StudentWork, exec ...core.DBExecutor) (StudentWork, error)
		DeleteStudentWork(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	CycleService interface {
		GetCycle(ctx context.Context, id int64) (cycle.SchoolCycle, error)
		ManageableCycle(ctx context.Context, actor user.User, cycleID int64) (cycle.SchoolCycle, error)
		GetPartial(ctx context.Context, id int64) (cycle.Partial, error)
		GetFormativeField(ctx context.Context, id int64) (cycle.FormativeField, error)
		ListFormativeFields(ctx context.Context, cycleID int64) ([]cycle.FormativeField, error)
		CreateFormativeField(ctx context.Context, actor user.User, nf cycle.NewFormativeField, exec ...core.DBExecutor) (cycle.FormativeField, error)
	}

	StudentService interface {
		GetByID(ctx context.Context, id int64) (student.Student, error)
		ActiveStudents(ctx context.Context, cycleID int64, exec ...core.DBExecutor) ([]student.Student, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		cycles   CycleService
		students StudentService
	}
)

func NewService(db core.DB, repo Repository, cycles CycleService, students StudentService) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		cycles:   cycles,
		students: students,
	}
}

// CanManageWorkType reports whether actor may modify wt.
func CanManageWorkType(actor user.User, wt WorkType) bool {
	return actor.IsAdmin() || (actor.ID != 0 && wt.TeacherID == actor.ID)
}

// scope returns the managed cycle that both the formative field and the partial belong to.
func (svc *Service) scope(ctx context.Context, actor user.User, fieldID, partialID int64) (cycle.SchoolCycle, error) {
	ff, err := svc.cycles.GetFormativeField(ctx, fieldID)
	if err != nil {
		if core.IsNotFound(err) {
			return cycle.SchoolCycle{}, core.NewFieldError("formative_field_id", "does not exist")
		}
		return cycle.SchoolCycle{}, errors.Wrap(err, "finding formative field")
	}
	if err = svc.checkPartial(ctx, partialID, ff.SchoolCycleID); err != nil {
		return cycle.SchoolCycle{}, err
	}
	return svc.cycles.ManageableCycle(ctx, actor, ff.SchoolCycleID)
}

func (svc *Service) checkPartial(ctx context.Context, partialID, cycleID int64) error {
	p, err := svc.cycles.GetPartial(ctx, partialID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("partial_id", "does not exist")
		}
		return errors.Wrap(err, "finding partial")
	}
	if p.SchoolCycleID != cycleID {
		return core.NewFieldError("partial_id", "partial does not belong to the formative field's school cycle")
	}
	return nil
}

// checkWorkType ensures the work type exists and belongs to the cycle's teacher.
func (svc *Service) checkWorkType(ctx context.Context, id int64, cyc cycle.SchoolCycle, exec ...core.DBExecutor) (WorkType, error) {
	wt, err := svc.repo.GetWorkTypeByID(ctx, id, exec...)
	if err != nil {
		if core.IsNotFound(err) {
			return WorkType{}, core.NewFieldError("work_type_id", "does not exist")
		}
		return WorkType{}, errors.Wrap(err, "finding work type")
	}
	if wt.TeacherID != cyc.TeacherID {
		return WorkType{}, core.NewFieldError("work_type_id", "work type does not belong to the cycle's teacher")
	}
	return wt, nil
}

// Work types

// CreateWorkType creates a work type owned by actor. Admins may create it for another teacher.
func (svc *Service) CreateWorkType(ctx context.Context, actor user.User, nw NewWorkType) (WorkType, error) {
	if !(actor.IsAdmin() || actor.IsTeacher()) {
		return WorkType{}, core.ErrPermissionDenied
	}
	teacherID := actor.ID
	if actor.IsAdmin() && nw.TeacherID != 0 {
		teacherID = nw.TeacherID
	}
	return svc.repo.CreateWorkType(ctx, WorkType{
		TeacherID:        teacherID,
		Name:             nw.Name,
		EvaluationWeight: nw.EvaluationWeight,
		CreatedAt:        time.Now().UTC(),
	})
}

func (svc *Service) GetWorkType(ctx context.Context, id int64) (WorkType, error) {
	return svc.repo.GetWorkTypeByID(ctx, id)
}

// FilterWorkTypes lists work types. Only admins see other teachers' work types.
func (svc *Service) FilterWorkTypes(ctx context.Context, actor user.User, filter WorkTypeFilter, page core.Pagination) ([]WorkType, error) {
	if !actor.IsAdmin() {
		filter.TeacherID = actor.ID
	}
	filter.Clean()
	page.Clean()
	return svc.repo.FilterWorkTypes(ctx, filter, page)
}

func (svc *Service) UpdateWorkType(ctx context.Context, actor user.User, wt WorkType, uw UpdateWorkType) (WorkType, error) {
	if !CanManageWorkType(actor, wt) {
		return WorkType{}, core.ErrPermissionDenied
	}
	if uw.Name != "" {
		wt.Name = uw.Name
	}
	if uw.EvaluationWeight != nil {
		wt.EvaluationWeight = *uw.EvaluationWeight
	}
	return svc.repo.UpdateWorkType(ctx, wt)
}

// DeleteWorkType fails with a conflict while graded works still use the work type.
func (svc *Service) DeleteWorkType(ctx context.Context, actor user.User, wt WorkType) error {
	if !CanManageWorkType(actor, wt) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteWorkType(ctx, wt.ID)
}

// Evaluations

func (svc *Service) CreateEvaluation(ctx context.Context, actor user.User, ne NewEvaluation) (Evaluation, error) {
	cyc, err := svc.scope(ctx, actor, ne.FormativeFieldID, ne.PartialID)
	if err != nil {
		return Evaluation{}, err
	}
	if _, err = svc.checkWorkType(ctx, ne.WorkTypeID, cyc); err != nil {
		return Evaluation{}, err
	}
	return svc.repo.CreateEvaluation(ctx, Evaluation{
		FormativeFieldID: ne.FormativeFieldID,
		PartialID:        ne.PartialID,
		WorkTypeID:       ne.WorkTypeID,
		EvaluationWeight: ne.EvaluationWeight,
		CreatedAt:        time.Now().UTC(),
	})
}

func (svc *Service) GetEvaluation(ctx context.Context, id int64) (Evaluation, error) {
	return svc.repo.GetEvaluationByID(ctx, id)
}

func (svc *Service) FilterEvaluations(ctx context.Context, filter EvaluationFilter, page core.Pagination) ([]Evaluation, error) {
	page.Clean()
	return svc.repo.FilterEvaluations(ctx, filter, page)
}

func (svc *Service) UpdateEvaluation(ctx context.Context, actor user.User, ev Evaluation, ue UpdateEvaluation) (Evaluation, error) {
	if _, err := svc.cycles.ManageableCycle(ctx, actor, ev.SchoolCycleID); err != nil {
		return Evaluation{}, err
	}
	if ue.PartialID != 0 && ue.PartialID != ev.PartialID {
		if err := svc.checkPartial(ctx, ue.PartialID, ev.SchoolCycleID); err != nil {
			return Evaluation{}, err
		}
		ev.PartialID = ue.PartialID
	}
	if ue.EvaluationWeight != nil {
		ev.EvaluationWeight = *ue.EvaluationWeight
	}
	return svc.repo.UpdateEvaluation(ctx, ev)
}

func (svc *Service) DeleteEvaluation(ctx context.Context, actor user.User, ev Evaluation) error {
	if _, err := svc.cycles.ManageableCycle(ctx, actor, ev.SchoolCycleID); err != nil {
		return err
	}
	return svc.repo.DeleteEvaluation(ctx, ev.ID)
}

// Student works

func (svc *Service) CreateStudentWork(ctx context.Context, actor user.User, nw NewStudentWork) (StudentWork, error) {
	cyc, err := svc.scope(ctx, actor, nw.FormativeFieldID, nw.PartialID)
	if err != nil {
		return StudentWork{}, err
	}
	if _, err = svc.checkWorkType(ctx, nw.WorkTypeID, cyc); err != nil {
		return StudentWork{}, err
	}

	st, err := svc.students.GetByID(ctx, nw.StudentID)
	if err != nil {
		if core.IsNotFound(err) {
			return StudentWork{}, core.NewFieldError("student_id", "does not exist")
		}
		return StudentWork{}, errors.Wrap(err, "finding student")
	}
	if st.SchoolCycleID != cyc.ID {
		return StudentWork{}, core.NewFieldError("student_id", "student does not belong to the formative field's school cycle")
	}

	now := time.Now().UTC()
	return svc.repo.CreateStudentWork(ctx, StudentWork{
		StudentID:        st.ID,
		FormativeFieldID: nw.FormativeFieldID,
		PartialID:        nw.PartialID,
		WorkTypeID:       nw.WorkTypeID,
		TeacherID:        cyc.TeacherID,
		SchoolCycleID:    cyc.ID,
		Name:             nw.Name,
		Grade:            nw.Grade,
		WorkDate:         nw.WorkDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (svc *Service) GetStudentWork(ctx context.Context, id int64) (StudentWork, error) {
	return svc.repo.GetStudentWorkByID(ctx, id)
}

func (svc *Service) FilterStudentWorks(ctx context.Context, filter StudentWorkFilter, page core.Pagination) ([]StudentWork, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.FilterStudentWorks(ctx, filter, page)
}

func (svc *Service) UpdateStudentWork(ctx context.Context, actor user.User, sw StudentWork, uw UpdateStudentWork) (StudentWork, error) {
	if _, err := svc.cycles.ManageableCycle(ctx, actor, sw.SchoolCycleID); err != nil {
		return StudentWork{}, err
	}
	if uw.Name != "" {
		sw.Name = uw.Name
	}
	if uw.Grade.Valid {
		sw.Grade = uw.Grade
	}
	if uw.WorkDate.Valid {
		sw.WorkDate = uw.WorkDate
	}
	sw.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudentWork(ctx, sw)
}

func (svc *Service) DeleteStudentWork(ctx context.Context, actor user.User, sw StudentWork) error {
	if _, err := svc.cycles.ManageableCycle(ctx, actor, sw.SchoolCycleID); err != nil {
		return err
	}
	return svc.repo.DeleteStudentWork(ctx, sw.ID)
}

// GradeAll sets the grade of the work `bg.Name` for every active student of the cycle, in one transaction.
// Works that already exist under that name are updated, the others are created.
func (svc *Service) GradeAll(ctx context.Context, actor user.User, bg BulkGrades) (BulkGradesResult, error) {
	res := BulkGradesResult{Created: []StudentWork{}, Updated: []StudentWork{}}

	cyc, err := svc.scope(ctx, actor, bg.FormativeFieldID, bg.PartialID)
	if err != nil {
		return res, err
	}
	if _, err = svc.checkWorkType(ctx, bg.WorkTypeID, cyc); err != nil {
		return res, err
	}

	grades := make(map[int64]StudentGrade, len(bg.Grades))
	for _, g := range bg.Grades {
		grades[g.StudentID] = g
	}

	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		students, err := svc.students.ActiveStudents(ctx, cyc.ID, tx)
		if err != nil {
			return errors.Wrap(err, "querying active students")
		}
		if len(students) == 0 {
			return core.NewValidationError(errNoActiveStudents)
		}

		active := make(map[int64]bool, len(students))
		for _, st := range students {
			active[st.ID] = true
		}
		for id := range grades {
			if !active[id] {
				return core.NewFieldError("grades", fmt.Sprintf("student %d is not an active student of the school cycle", id))
			}
		}

		existing, err := svc.repo.QueryNamedWorks(ctx, bg.FormativeFieldID, bg.PartialID, bg.WorkTypeID, bg.Name, tx)
		if err != nil {
			return errors.Wrap(err, "querying existing works")
		}
		byStudent := make(map[int64]StudentWork, len(existing))
		for _, sw := range existing {
			byStudent[sw.StudentID] = sw
		}

		now := time.Now().UTC()
		for _, st := range students {
			grade := grades[st.ID].Grade

			if sw, ok := byStudent[st.ID]; ok {
				sw.Grade = grade
				if bg.WorkDate.Valid {
					sw.WorkDate = bg.WorkDate
				}
				sw.UpdatedAt = now
				if sw, err = svc.repo.UpdateStudentWork(ctx, sw, tx); err != nil {
					return err
				}
				res.Updated = append(res.Updated, sw)
			} else {
				sw, err := svc.repo.CreateStudentWork(ctx, StudentWork{
					StudentID:        st.ID,
					FormativeFieldID: bg.FormativeFieldID,
					PartialID:        bg.PartialID,
					WorkTypeID:       bg.WorkTypeID,
					TeacherID:        cyc.TeacherID,
					SchoolCycleID:    cyc.ID,
					Name:             bg.Name,
					Grade:            grade,
					WorkDate:         bg.WorkDate,
					CreatedAt:        now,
					UpdatedAt:        now,
				}, tx)
				if err != nil {
					return err
				}
				res.Created = append(res.Created, sw)
			}

			if grade.Valid {
				res.TotalWithGrade++
			} else {
				res.TotalWithoutGrade++
			}
		}
		return nil
	})
	if err != nil {
		return BulkGradesResult{}, err
	}
	return res, nil
}

// SetupFormativeField creates a formative field, the new work types it uses and their evaluation weights,
// in one transaction. Existing work types must belong to the cycle's teacher.
func (svc *Service) SetupFormativeField(ctx context.Context, actor user.User, fs FieldSetup) (FieldSummary, error) {
	var summary FieldSummary

	cyc, err := svc.cycles.ManageableCycle(ctx, actor, fs.SchoolCycleID)
	if err != nil {
		if core.IsNotFound(err) {
			return summary, core.NewFieldError("school_cycle_id", "does not exist")
		}
		return summary, err
	}

	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		ff, err := svc.cycles.CreateFormativeField(ctx, actor, cycle.NewFormativeField{
			SchoolCycleID: cyc.ID,
			Name:          fs.Name,
			Code:          fs.Code,
		}, tx)
		if err != nil {
			return err
		}

		byID := make(map[int64]WorkType, len(fs.WorkTypes))
		byName := make(map[string]WorkType, len(fs.WorkTypes))
		now := time.Now().UTC()
		for _, ref := range fs.WorkTypes {
			var wt WorkType
			if ref.ID != 0 {
				if wt, err = svc.checkWorkType(ctx, ref.ID, cyc, tx); err != nil {
					var vErr *core.ValidationError
					if errors.As(err, &vErr) && len(vErr.Fields) > 0 {
						return core.NewFieldError("work_types", fmt.Sprintf("work type %d: %s", ref.ID, vErr.Fields[0].Error))
					}
					return errors.Wrap(err, "checking work type")
				}
			} else {
				wt, err = svc.repo.CreateWorkType(ctx, WorkType{
					TeacherID:        cyc.TeacherID,
					Name:             ref.Name,
					EvaluationWeight: ref.EvaluationWeight,
					CreatedAt:        now,
				}, tx)
				if err != nil {
					return err
				}
			}
			byID[wt.ID] = wt
			byName[wt.Name] = wt
		}

		partials := make(map[int64]bool)
		summary = FieldSummary{FormativeFieldID: ff.ID, Name: ff.Name, Code: ff.Code, WorkTypes: []WorkTypeWeight{}}
		for _, item := range fs.Evaluations {
			wt, ok := byID[item.WorkTypeID]
			if item.WorkTypeID == 0 {
				wt, ok = byName[item.WorkTypeName]
			}
			if !ok {
				return core.NewFieldError("evaluations", "evaluations may only use the work types of the setup")
			}

			if !partials[item.PartialID] {
				if err = svc.checkPartial(ctx, item.PartialID, cyc.ID); err != nil {
					return err
				}
				partials[item.PartialID] = true
			}

			ev, err := svc.repo.CreateEvaluation(ctx, Evaluation{
				FormativeFieldID: ff.ID,
				PartialID:        item.PartialID,
				WorkTypeID:       wt.ID,
				EvaluationWeight: item.EvaluationWeight,
				CreatedAt:        now,
			}, tx)
			if err != nil {
				return err
			}
			summary.WorkTypes = append(summary.WorkTypes, WorkTypeWeight{
				WorkTypeID:       wt.ID,
				WorkTypeName:     wt.Name,
				PartialID:        ev.PartialID,
				EvaluationWeight: ev.EvaluationWeight,
			})
		}
		return nil
	})
	if err != nil {
		return FieldSummary{}, err
	}
	return summary, nil
}

// Summary lists the formative fields of a cycle along with the weight of each of their work types.
func (svc *Service) Summary(ctx context.Context, cycleID int64) (CycleSummary, error) {
	if _, err := svc.cycles.GetCycle(ctx, cycleID); err != nil {
		return CycleSummary{}, err
	}

	fields, err := svc.cycles.ListFormativeFields(ctx, cycleID)
	if err != nil {
		return CycleSummary{}, errors.Wrap(err, "querying formative fields")
	}
	evals, err := svc.repo.FilterEvaluations(ctx, EvaluationFilter{SchoolCycleID: cycleID}, core.Pagination{Limit: core.MaxLimit})
	if err != nil {
		return CycleSummary{}, errors.Wrap(err, "querying evaluations")
	}

	weights := make(map[int64][]WorkTypeWeight, len(fields))
	for _, ev := range evals {
		weights[ev.FormativeFieldID] = append(weights[ev.FormativeFieldID], WorkTypeWeight{
			WorkTypeID:       ev.WorkTypeID,
			WorkTypeName:     ev.WorkTypeName,
			PartialID:        ev.PartialID,
			EvaluationWeight: ev.EvaluationWeight,
		})
	}

	summary := CycleSummary{SchoolCycleID: cycleID, FormativeFields: make([]FieldSummary, 0, len(fields))}
	for _, ff := range fields {
		wts := weights[ff.ID]
		if wts == nil {
			wts = []WorkTypeWeight{}
		}
		summary.FormativeFields = append(summary.FormativeFields, FieldSummary{
			FormativeFieldID: ff.ID,
			Name:             ff.Name,
			Code:             ff.Code,
			WorkTypes:        wts,
		})
	}
	return summary, nil
}
