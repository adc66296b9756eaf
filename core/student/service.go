// Package student manages the students enrolled in school cycles and their attendance.
package student

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("student")
	ErrAttendanceNotFound = core.NewNotFoundError("attendance")
	errPartialNotInCycle  = "partial does not belong to the student's school cycle"
	errStudentHasRecords  = "a student with attendances or works cannot change school cycle"
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
		GetStudentByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Student, error)
		// FilterStudents does a case-insensitive match of QueryFilter.Search on the names or the CURP.
		FilterStudents(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Student, error)
		QueryActiveStudents(ctx context.Context, cycleID int64, exec ...core.DBExecutor) ([]Student, error)
		UpdateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
		// CountRecords counts the attendances and works of a student.
		CountRecords(ctx context.Context, id int64, exec ...core.DBExecutor) (int64, error)
		DeleteStudent(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreateAttendance(ctx context.Context, att Attendance, exec ...core.DBExecutor) (Attendance, error)
		GetAttendanceByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Attendance, error)
		FilterAttendances(ctx context.Context, filter AttendanceFilter, page core.Pagination) ([]Attendance, error)
		UpdateAttendance(ctx context.Context, att Attendance, exec ...core.DBExecutor) (Attendance, error)
		DeleteAttendance(ctx context.Context, id int64, exec ...core.DBExecutor) error
	}

	CycleManager interface {
		ManageableCycle(ctx context.Context, actor user.User, cycleID int64) (cycle.SchoolCycle, error)
		GetPartial(ctx context.Context, id int64) (cycle.Partial, error)
	}

	Service struct {
		db     core.DB
		repo   Repository
		cycles CycleManager
	}
)

func NewService(db core.DB, repo Repository, cycles CycleManager) *Service {
	return &Service{db: db, repo: repo, cycles: cycles}
}

// manageableCycle is cycle.Service.ManageableCycle reporting missing cycles on the school_cycle_id field.
func (svc *Service) manageableCycle(ctx context.Context, actor user.User, cycleID int64) (cycle.SchoolCycle, error) {
	cyc, err := svc.cycles.ManageableCycle(ctx, actor, cycleID)
	if core.IsNotFound(err) {
		return cyc, core.NewFieldError("school_cycle_id", "does not exist")
	}
	return cyc, err
}

// Create enrolls a new student in a cycle the actor manages.
func (svc *Service) Create(ctx context.Context, actor user.User, ns NewStudent) (Student, error) {
	cyc, err := svc.manageableCycle(ctx, actor, ns.SchoolCycleID)
	if err != nil {
		return Student{}, err
	}
	return svc.repo.CreateStudent(ctx, Student{
		CURP:           ns.CURP,
		FirstName:      ns.FirstName,
		LastName:       ns.LastName,
		SecondLastName: ns.SecondLastName,
		BirthDate:      ns.BirthDate,
		Phone:          ns.Phone,
		TeacherID:      cyc.TeacherID,
		SchoolCycleID:  cyc.ID,
		IsActive:       ns.IsActive == nil || *ns.IsActive,
		CreatedAt:      time.Now().UTC(),
	})
}

func (svc *Service) GetByID(ctx context.Context, id int64) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Student, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.FilterStudents(ctx, filter, ordering, page)
}

// ActiveStudents lists the active students of a cycle.
func (svc *Service) ActiveStudents(ctx context.Context, cycleID int64, exec ...core.DBExecutor) ([]Student, error) {
	return svc.repo.QueryActiveStudents(ctx, cycleID, exec...)
}

// Update edits a student. Moving to another cycle requires managing both cycles, and is refused while the
// student has attendances or works tied to the partials and formative fields of the current one.
func (svc *Service) Update(ctx context.Context, actor user.User, st Student, us UpdateStudent) (Student, error) {
	if _, err := svc.cycles.ManageableCycle(ctx, actor, st.SchoolCycleID); err != nil {
		return Student{}, err
	}
	moving := us.SchoolCycleID != 0 && us.SchoolCycleID != st.SchoolCycleID
	if moving {
		cyc, err := svc.manageableCycle(ctx, actor, us.SchoolCycleID)
		if err != nil {
			return Student{}, err
		}
		st.SchoolCycleID = cyc.ID
		st.TeacherID = cyc.TeacherID
	}
	if us.CURP != "" {
		st.CURP = us.CURP
	}
	if us.FirstName != "" {
		st.FirstName = us.FirstName
	}
	if us.LastName != "" {
		st.LastName = us.LastName
	}
	if us.SecondLastName.Valid {
		st.SecondLastName = us.SecondLastName
	}
	if us.BirthDate.Valid {
		st.BirthDate = us.BirthDate
	}
	if us.Phone.Valid {
		st.Phone = us.Phone
	}
	if us.IsActive != nil {
		st.IsActive = *us.IsActive
	}

	var updated Student
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if moving {
			n, err := svc.repo.CountRecords(ctx, st.ID, tx)
			if err != nil {
				return errors.Wrap(err, "counting student records")
			}
			if n > 0 {
				return core.NewConflictError("school_cycle_id", errStudentHasRecords)
			}
		}
		var err error
		updated, err = svc.repo.UpdateStudent(ctx, st, tx)
		return err
	})
	if err != nil {
		return Student{}, err
	}
	return updated, nil
}

// Delete removes the student along with their attendances and graded works.
func (svc *Service) Delete(ctx context.Context, actor user.User, st Student) error {
	if _, err := svc.cycles.ManageableCycle(ctx, actor, st.SchoolCycleID); err != nil {
		return err
	}
	return svc.repo.DeleteStudent(ctx, st.ID)
}

// Attendances

func (svc *Service) CreateAttendance(ctx context.Context, actor user.User, na NewAttendance) (Attendance, error) {
	st, err := svc.repo.GetStudentByID(ctx, na.StudentID)
	if err != nil {
		if core.IsNotFound(err) {
			return Attendance{}, core.NewFieldError("student_id", "does not exist")
		}
		return Attendance{}, errors.Wrap(err, "finding student")
	}
	if _, err := svc.cycles.ManageableCycle(ctx, actor, st.SchoolCycleID); err != nil {
		return Attendance{}, err
	}

	p, err := svc.cycles.GetPartial(ctx, na.PartialID)
	if err != nil {
		if core.IsNotFound(err) {
			return Attendance{}, core.NewFieldError("partial_id", "does not exist")
		}
		return Attendance{}, errors.Wrap(err, "finding partial")
	}
	if p.SchoolCycleID != st.SchoolCycleID {
		return Attendance{}, core.NewFieldError("partial_id", errPartialNotInCycle)
	}

	return svc.repo.CreateAttendance(ctx, Attendance{
		StudentID:      st.ID,
		PartialID:      p.ID,
		SchoolCycleID:  st.SchoolCycleID,
		AttendanceDate: na.AttendanceDate,
		Status:         na.Status,
		Notes:          na.Notes,
		CreatedAt:      time.Now().UTC(),
	})
}

func (svc *Service) GetAttendance(ctx context.Context, id int64) (Attendance, error) {
	return svc.repo.GetAttendanceByID(ctx, id)
}

func (svc *Service) FilterAttendances(ctx context.Context, filter AttendanceFilter, page core.Pagination) ([]Attendance, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.FilterAttendances(ctx, filter, page)
}

func (svc *Service) UpdateAttendance(ctx context.Context, actor user.User, att Attendance, ua UpdateAttendance) (Attendance, error) {
	if _, err := svc.cycles.ManageableCycle(ctx, actor, att.SchoolCycleID); err != nil {
		return Attendance{}, err
	}
	if ua.Status != "" {
		att.Status = ua.Status
	}
	if ua.Notes.Valid {
		att.Notes = ua.Notes
	}
	return svc.repo.UpdateAttendance(ctx, att)
}

func (svc *Service) DeleteAttendance(ctx context.Context, actor user.User, att Attendance) error {
	if _, err := svc.cycles.ManageableCycle(ctx, actor, att.SchoolCycleID); err != nil {
		return err
	}
	return svc.repo.DeleteAttendance(ctx, att.ID)
}
