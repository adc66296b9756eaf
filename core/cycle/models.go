package cycle

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escolar/core"
)

var errDateRange = "end_date must be on or after start_date"

// SchoolCycle is a teacher's class for an academic year, held in a School.
type SchoolCycle struct {
	ID              int64       `json:"id" db:"id"`
	SchoolID        int64       `json:"school_id" db:"school_id"`
	TeacherID       int64       `json:"teacher_id" db:"teacher_id"`
	Name            string      `json:"name" db:"name"`
	Year            null.Int    `json:"year" db:"year"`
	CycleLabel      null.String `json:"cycle_label" db:"cycle_label"`
	Grade           null.String `json:"grade" db:"grade"`
	GroupName       null.String `json:"group_name" db:"group_name"`
	PeriodCatalogID null.Int64  `json:"period_catalog_id" db:"period_catalog_id"`
	IsActive        bool        `json:"is_active" db:"is_active"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"` // UTC
}

type NewCycle struct {
	SchoolID        int64       `json:"school_id" validate:"required,gt=0"`
	TeacherID       int64       `json:"teacher_id" validate:"omitempty,gt=0"` // admins only
	Name            string      `json:"name" validate:"required,max=120"`
	Year            null.Int    `json:"year" validate:"omitempty,gte=1900,lte=2200"`
	CycleLabel      null.String `json:"cycle_label" validate:"omitempty,max=50"`
	Grade           null.String `json:"grade" validate:"omitempty,max=20"`
	GroupName       null.String `json:"group_name" validate:"omitempty,max=20"`
	PeriodCatalogID null.Int64  `json:"period_catalog_id" validate:"omitempty,gt=0"`
	IsActive        *bool       `json:"is_active"`
}

func (nc *NewCycle) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

type UpdateCycle struct {
	SchoolID        int64       `json:"school_id" validate:"omitempty,gt=0"`
	Name            string      `json:"name" validate:"omitempty,max=120"`
	Year            null.Int    `json:"year" validate:"omitempty,gte=1900,lte=2200"`
	CycleLabel      null.String `json:"cycle_label" validate:"omitempty,max=50"`
	Grade           null.String `json:"grade" validate:"omitempty,max=20"`
	GroupName       null.String `json:"group_name" validate:"omitempty,max=20"`
	PeriodCatalogID null.Int64  `json:"period_catalog_id" validate:"omitempty,gt=0"`
	IsActive        *bool       `json:"is_active"`
}

func (uc *UpdateCycle) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	return validate.Struct(uc)
}

type QueryFilter struct {
	Search    string `query:"search"`
	TeacherID int64  `query:"teacher_id"`
	SchoolID  int64  `query:"school_id"`
	IsActive  *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Partial is a grading period of a SchoolCycle.
type Partial struct {
	ID            int64     `json:"id" db:"id"`
	SchoolCycleID int64     `json:"school_cycle_id" db:"school_cycle_id"`
	Name          string    `json:"name" db:"name"`
	StartDate     core.Date `json:"start_date" db:"start_date"`
	EndDate       core.Date `json:"end_date" db:"end_date"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"` // UTC
}

type NewPartial struct {
	Name      string    `json:"name" validate:"required,max=80"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
}

func (np *NewPartial) clean() {
	np.Name = core.CleanString(np.Name)
}

// BulkPartials creates every partial of a cycle at once.
type BulkPartials struct {
	Partials []NewPartial `json:"partials" validate:"required,min=1,max=20,dive"`
}

func (bp *BulkPartials) Validate(validate *validator.Validate) error {
	for i := range bp.Partials {
		bp.Partials[i].clean()
	}
	if err := validate.Struct(bp); err != nil {
		return err
	}
	for _, np := range bp.Partials {
		if err := checkDateRange(np.StartDate, np.EndDate); err != nil {
			return err
		}
	}
	return nil
}

type UpdatePartial struct {
	Name      string    `json:"name" validate:"omitempty,max=80"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
}

func (up *UpdatePartial) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	return validate.Struct(up)
}

func checkDateRange(start, end core.Date) error {
	if start.Valid && end.Valid && end.Before(start) {
		return core.NewFieldError("end_date", errDateRange)
	}
	return nil
}

// FormativeField is a subject (learning area) taught in a SchoolCycle.
type FormativeField struct {
	ID            int64       `json:"id" db:"id"`
	SchoolCycleID int64       `json:"school_cycle_id" db:"school_cycle_id"`
	Name          string      `json:"name" db:"name"`
	Code          null.String `json:"code" db:"code"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"` // UTC
}

type NewFormativeField struct {
	SchoolCycleID int64       `json:"school_cycle_id" validate:"required,gt=0"`
	Name          string      `json:"name" validate:"required,max=120"`
	Code          null.String `json:"code" validate:"omitempty,max=50"`
}

func (nf *NewFormativeField) Validate(validate *validator.Validate) error {
	nf.Name = core.CleanString(nf.Name)
	return validate.Struct(nf)
}

type UpdateFormativeField struct {
	Name string      `json:"name" validate:"omitempty,max=120"`
	Code null.String `json:"code" validate:"omitempty,max=50"`
}

func (uf *UpdateFormativeField) Validate(validate *validator.Validate) error {
	uf.Name = core.CleanString(uf.Name)
	return validate.Struct(uf)
}
