package student

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escolar/core"
)

type Student struct {
	ID             int64       `json:"id" db:"id"`
	CURP           string      `json:"curp" db:"curp"`
	FirstName      string      `json:"first_name" db:"first_name"`
	LastName       string      `json:"last_name" db:"last_name"`
	SecondLastName null.String `json:"second_last_name" db:"second_last_name"`
	BirthDate      core.Date   `json:"birth_date" db:"birth_date"`
	Phone          null.String `json:"phone" db:"phone"`
	TeacherID      int64       `json:"teacher_id" db:"teacher_id"`
	SchoolCycleID  int64       `json:"school_cycle_id" db:"school_cycle_id"`
	IsActive       bool        `json:"is_active" db:"is_active"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"` // UTC
}

// NewStudent enrolls a student in a cycle. The owning teacher is the cycle's.
type NewStudent struct {
	CURP           string      `json:"curp" validate:"required,len=18,curp"`
	FirstName      string      `json:"first_name" validate:"required,max=100"`
	LastName       string      `json:"last_name" validate:"required,max=100"`
	SecondLastName null.String `json:"second_last_name" validate:"omitempty,max=100"`
	BirthDate      core.Date   `json:"birth_date"`
	Phone          null.String `json:"phone" validate:"omitempty,max=20"`
	SchoolCycleID  int64       `json:"school_cycle_id" validate:"required,gt=0"`
	IsActive       *bool       `json:"is_active"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.CURP = strings.ToUpper(core.CleanString(ns.CURP))
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	return validate.Struct(ns)
}

type UpdateStudent struct {
	CURP           string      `json:"curp" validate:"omitempty,len=18,curp"`
	FirstName      string      `json:"first_name" validate:"omitempty,max=100"`
	LastName       string      `json:"last_name" validate:"omitempty,max=100"`
	SecondLastName null.String `json:"second_last_name" validate:"omitempty,max=100"`
	BirthDate      core.Date   `json:"birth_date"`
	Phone          null.String `json:"phone" validate:"omitempty,max=20"`
	SchoolCycleID  int64       `json:"school_cycle_id" validate:"omitempty,gt=0"`
	IsActive       *bool       `json:"is_active"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.CURP = strings.ToUpper(core.CleanString(us.CURP))
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search        string `query:"search"`
	SchoolCycleID int64  `query:"school_cycle_id"`
	TeacherID     int64  `query:"teacher_id"`
	IsActive      *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Attendance statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
)

type Attendance struct {
	ID             int64       `json:"id" db:"id"`
	StudentID      int64       `json:"student_id" db:"student_id"`
	PartialID      int64       `json:"partial_id" db:"partial_id"`
	SchoolCycleID  int64       `json:"school_cycle_id" db:"school_cycle_id"` // read only, from the student
	AttendanceDate core.Date   `json:"attendance_date" db:"attendance_date"`
	Status         string      `json:"status" db:"status"`
	Notes          null.String `json:"notes" db:"notes"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"` // UTC
}

type NewAttendance struct {
	StudentID      int64       `json:"student_id" validate:"required,gt=0"`
	PartialID      int64       `json:"partial_id" validate:"required,gt=0"`
	AttendanceDate core.Date   `json:"attendance_date" validate:"required"`
	Status         string      `json:"status" validate:"required,oneof=present absent late"`
	Notes          null.String `json:"notes" validate:"omitempty,max=255"`
}

func (na *NewAttendance) Validate(validate *validator.Validate) error {
	na.Status = core.CleanString(na.Status, true /* lower */)
	return validate.Struct(na)
}

type UpdateAttendance struct {
	Status string      `json:"status" validate:"omitempty,oneof=present absent late"`
	Notes  null.String `json:"notes" validate:"omitempty,max=255"`
}

func (ua *UpdateAttendance) Validate(validate *validator.Validate) error {
	ua.Status = core.CleanString(ua.Status, true /* lower */)
	return validate.Struct(ua)
}

type AttendanceFilter struct {
	StudentID     int64     `query:"student_id"`
	PartialID     int64     `query:"partial_id"`
	SchoolCycleID int64     `query:"school_cycle_id"`
	Status        string    `query:"status"`
	DateFrom      core.Date `query:"date_from"`
	DateTo        core.Date `query:"date_to"`
}

func (f *AttendanceFilter) Clean() {
	f.Status = core.CleanString(f.Status, true /* lower */)
}
