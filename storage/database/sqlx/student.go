package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/student"
)

const (
	studentSelect = `SELECT id, curp, first_name, last_name, second_last_name, birth_date, phone, teacher_id,
		school_cycle_id, is_active, created_at FROM students`
	attendanceSelect = `SELECT a.id, a.student_id, a.partial_id, s.school_cycle_id, a.attendance_date, a.status, a.notes,
		a.created_at
		FROM attendances a JOIN students s ON s.id = a.student_id`
)

var studentOrderings = []string{"id", "curp", "first_name", "last_name", "created_at"}

type studentRepository struct {
	base
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{base{exec: exec}}
}

func (repo studentRepository) CreateStudent(ctx context.Context, st student.Student, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO students
		(curp, first_name, last_name, second_last_name, birth_date, phone, teacher_id, school_cycle_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		st.CURP, st.FirstName, st.LastName, st.SecondLastName, st.BirthDate, st.Phone, st.TeacherID, st.SchoolCycleID,
		st.IsActive, st.CreatedAt,
	).Scan(&st.ID)
	if err != nil {
		return student.Student{}, trapWriteErr(err, "student", "inserting student")
	}
	return st, nil
}

func (repo studentRepository) GetStudentByID(ctx context.Context, id int64, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	var st student.Student
	if err := exe.GetContext(ctx, &st, exe.Rebind(studentSelect+" WHERE id = ?"), id); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student")
	}
	return st, nil
}

func (repo studentRepository) FilterStudents(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]student.Student, error) {
	var w where
	w.search(filter.Search, "first_name", "last_name", "second_last_name", "curp")
	if filter.SchoolCycleID != 0 {
		w.add("school_cycle_id = ?", filter.SchoolCycleID)
	}
	if filter.TeacherID != 0 {
		w.add("teacher_id = ?", filter.TeacherID)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	q, args := paginate(studentSelect+w.String()+orderBy(ordering, "", studentOrderings, "last_name, first_name"), w.args, page)
	students := make([]student.Student, 0)
	if err := repo.exec.SelectContext(ctx, &students, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo studentRepository) QueryActiveStudents(ctx context.Context, cycleID int64, exec ...core.DBExecutor) ([]student.Student, error) {
	exe := repo.getExec(exec)
	students := make([]student.Student, 0)
	q := exe.Rebind(studentSelect + " WHERE school_cycle_id = ? AND is_active = ? ORDER BY last_name, first_name")
	if err := exe.SelectContext(ctx, &students, q, cycleID, true); err != nil {
		return nil, errors.Wrap(err, "querying active students")
	}
	return students, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, st student.Student, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`UPDATE students SET
		curp = ?, first_name = ?, last_name = ?, second_last_name = ?, birth_date = ?, phone = ?, teacher_id = ?,
		school_cycle_id = ?, is_active = ?
		WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		st.CURP, st.FirstName, st.LastName, st.SecondLastName, st.BirthDate, st.Phone, st.TeacherID, st.SchoolCycleID,
		st.IsActive, st.ID,
	)
	if err != nil {
		return student.Student{}, trapWriteErr(err, "student", "updating student")
	}
	if err = checkAffected(res, student.ErrNotFound); err != nil {
		return student.Student{}, err
	}
	return st, nil
}

func (repo studentRepository) CountRecords(ctx context.Context, id int64, exec ...core.DBExecutor) (int64, error) {
	exe := repo.getExec(exec)
	var n int64
	q := exe.Rebind(`SELECT
		(SELECT COUNT(*) FROM attendances WHERE student_id = ?) + (SELECT COUNT(*) FROM student_works WHERE student_id = ?)`)
	if err := exe.GetContext(ctx, &n, q, id, id); err != nil {
		return 0, errors.Wrap(err, "counting student records")
	}
	return n, nil
}

// DeleteStudent cascades to the attendances and works of the student.
func (repo studentRepository) DeleteStudent(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM students WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "student", "deleting student")
	}
	return checkAffected(res, student.ErrNotFound)
}

// Attendances

func (repo studentRepository) getAttendance(ctx context.Context, exe core.DBExecutor, id int64) (student.Attendance, error) {
	var att student.Attendance
	if err := exe.GetContext(ctx, &att, exe.Rebind(attendanceSelect+" WHERE a.id = ?"), id); err != nil {
		return student.Attendance{}, trapNoRowsErr(err, student.ErrAttendanceNotFound, "finding attendance")
	}
	return att, nil
}

func (repo studentRepository) CreateAttendance(ctx context.Context, att student.Attendance, exec ...core.DBExecutor) (student.Attendance, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO attendances (student_id, partial_id, attendance_date, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		att.StudentID, att.PartialID, att.AttendanceDate, att.Status, att.Notes, att.CreatedAt,
	).Scan(&att.ID)
	if err != nil {
		return student.Attendance{}, trapWriteErr(err, "attendance", "inserting attendance")
	}
	return att, nil
}

func (repo studentRepository) GetAttendanceByID(ctx context.Context, id int64, exec ...core.DBExecutor) (student.Attendance, error) {
	return repo.getAttendance(ctx, repo.getExec(exec), id)
}

func (repo studentRepository) FilterAttendances(ctx context.Context, filter student.AttendanceFilter, page core.Pagination) ([]student.Attendance, error) {
	var w where
	if filter.StudentID != 0 {
		w.add("a.student_id = ?", filter.StudentID)
	}
	if filter.PartialID != 0 {
		w.add("a.partial_id = ?", filter.PartialID)
	}
	if filter.SchoolCycleID != 0 {
		w.add("s.school_cycle_id = ?", filter.SchoolCycleID)
	}
	if filter.Status != "" {
		w.add("a.status = ?", filter.Status)
	}
	if filter.DateFrom.Valid {
		w.add("a.attendance_date >= ?", filter.DateFrom)
	}
	if filter.DateTo.Valid {
		w.add("a.attendance_date <= ?", filter.DateTo)
	}

	q, args := paginate(attendanceSelect+w.String()+" ORDER BY a.attendance_date DESC, a.id DESC", w.args, page)
	attendances := make([]student.Attendance, 0)
	if err := repo.exec.SelectContext(ctx, &attendances, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying attendances")
	}
	return attendances, nil
}

func (repo studentRepository) UpdateAttendance(ctx context.Context, att student.Attendance, exec ...core.DBExecutor) (student.Attendance, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE attendances SET status = ?, notes = ? WHERE id = ?"), att.Status, att.Notes, att.ID)
	if err != nil {
		return student.Attendance{}, trapWriteErr(err, "attendance", "updating attendance")
	}
	if err = checkAffected(res, student.ErrAttendanceNotFound); err != nil {
		return student.Attendance{}, err
	}
	return att, nil
}

func (repo studentRepository) DeleteAttendance(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM attendances WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "attendance", "deleting attendance")
	}
	return checkAffected(res, student.ErrAttendanceNotFound)
}
