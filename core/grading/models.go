package grading

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escolar/core"
)

// WorkType is a kind of graded work (homework, exam, project...) owned by a teacher.
type WorkType struct {
	ID               int64     `json:"id" db:"id"`
	TeacherID        int64     `json:"teacher_id" db:"teacher_id"`
	Name             string    `json:"name" db:"name"`
	EvaluationWeight float64   `json:"evaluation_weight" db:"evaluation_weight"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"` // UTC
}

type NewWorkType struct {
	TeacherID        int64   `json:"teacher_id" validate:"omitempty,gt=0"` // admins only
	Name             string  `json:"name" validate:"required,max=120"`
	EvaluationWeight float64 `json:"evaluation_weight" validate:"gte=0,lte=100"`
}

func (nw *NewWorkType) Validate(validate *validator.Validate) error {
	nw.Name = core.CleanString(nw.Name)
	nw.EvaluationWeight = core.RoundDecimal(nw.EvaluationWeight)
	return validate.Struct(nw)
}

type UpdateWorkType struct {
	Name             string   `json:"name" validate:"omitempty,max=120"`
	EvaluationWeight *float64 `json:"evaluation_weight" validate:"omitempty,gte=0,lte=100"`
}

func (uw *UpdateWorkType) Validate(validate *validator.Validate) error {
	uw.Name = core.CleanString(uw.Name)
	if uw.EvaluationWeight != nil {
		w := core.RoundDecimal(*uw.EvaluationWeight)
		uw.EvaluationWeight = &w
	}
	return validate.Struct(uw)
}

type WorkTypeFilter struct {
	Search    string `query:"search"`
	TeacherID int64  `query:"teacher_id"`
}

func (wf *WorkTypeFilter) Clean() {
	wf.Search = core.CleanString(wf.Search)
}

// Evaluation is the weight a WorkType carries in a formative field during a partial.
type Evaluation struct {
	ID               int64     `json:"id" db:"id"`
	FormativeFieldID int64     `json:"formative_field_id" db:"formative_field_id"`
	PartialID        int64     `json:"partial_id" db:"partial_id"`
	WorkTypeID       int64     `json:"work_type_id" db:"work_type_id"`
	WorkTypeName     string    `json:"work_type_name" db:"work_type_name"`   // read only
	SchoolCycleID    int64     `json:"school_cycle_id" db:"school_cycle_id"` // read only
	EvaluationWeight float64   `json:"evaluation_weight" db:"evaluation_weight"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"` // UTC
}

type NewEvaluation struct {
	FormativeFieldID int64   `json:"formative_field_id" validate:"required,gt=0"`
	PartialID        int64   `json:"partial_id" validate:"required,gt=0"`
	WorkTypeID       int64   `json:"work_type_id" validate:"required,gt=0"`
	EvaluationWeight float64 `json:"evaluation_weight" validate:"gte=0,lte=100"`
}

func (ne *NewEvaluation) Validate(validate *validator.Validate) error {
	ne.EvaluationWeight = core.RoundDecimal(ne.EvaluationWeight)
	return validate.Struct(ne)
}

type UpdateEvaluation struct {
	PartialID        int64    `json:"partial_id" validate:"omitempty,gt=0"`
	EvaluationWeight *float64 `json:"evaluation_weight" validate:"omitempty,gte=0,lte=100"`
}

func (ue *UpdateEvaluation) Validate(validate *validator.Validate) error {
	if ue.EvaluationWeight != nil {
		w := core.RoundDecimal(*ue.EvaluationWeight)
		ue.EvaluationWeight = &w
	}
	return validate.Struct(ue)
}

type EvaluationFilter struct {
	SchoolCycleID    int64 `query:"school_cycle_id"`
	FormativeFieldID int64 `query:"formative_field_id"`
	PartialID        int64 `query:"partial_id"`
	WorkTypeID       int64 `query:"work_type_id"`
}

// StudentWork is a graded piece of work of a student. A nil grade means "not graded yet".
type StudentWork struct {
	ID               int64        `json:"id" db:"id"`
	StudentID        int64        `json:"student_id" db:"student_id"`
	FormativeFieldID int64        `json:"formative_field_id" db:"formative_field_id"`
	PartialID        int64        `json:"partial_id" db:"partial_id"`
	WorkTypeID       int64        `json:"work_type_id" db:"work_type_id"`
	TeacherID        int64        `json:"teacher_id" db:"teacher_id"`
	SchoolCycleID    int64        `json:"school_cycle_id" db:"school_cycle_id"` // read only
	Name             string       `json:"name" db:"name"`
	Grade            null.Float64 `json:"grade" db:"grade"`
	WorkDate         core.Date    `json:"work_date" db:"work_date"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"` // UTC
}

type NewStudentWork struct {
	StudentID        int64        `json:"student_id" validate:"required,gt=0"`
	FormativeFieldID int64        `json:"formative_field_id" validate:"required,gt=0"`
	PartialID        int64        `json:"partial_id" validate:"required,gt=0"`
	WorkTypeID       int64        `json:"work_type_id" validate:"required,gt=0"`
	Name             string       `json:"name" validate:"required,max=255"`
	Grade            null.Float64 `json:"grade" validate:"omitempty,gte=0,lte=100"`
	WorkDate         core.Date    `json:"work_date"`
}

func (nw *NewStudentWork) Validate(validate *validator.Validate) error {
	nw.Name = core.CleanString(nw.Name)
	roundGrade(&nw.Grade)
	return validate.Struct(nw)
}

type UpdateStudentWork struct {
	Name     string       `json:"name" validate:"omitempty,max=255"`
	Grade    null.Float64 `json:"grade" validate:"omitempty,gte=0,lte=100"`
	WorkDate core.Date    `json:"work_date"`
}

func (uw *UpdateStudentWork) Validate(validate *validator.Validate) error {
	uw.Name = core.CleanString(uw.Name)
	roundGrade(&uw.Grade)
	return validate.Struct(uw)
}

type StudentWorkFilter struct {
	SchoolCycleID    int64  `query:"school_cycle_id"`
	StudentID        int64  `query:"student_id"`
	FormativeFieldID int64  `query:"formative_field_id"`
	PartialID        int64  `query:"partial_id"`
	WorkTypeID       int64  `query:"work_type_id"`
	TeacherID        int64  `query:"teacher_id"`
	Name             string `query:"name"`
}

func (sf *StudentWorkFilter) Clean() {
	sf.Name = core.CleanString(sf.Name)
}

// StudentGrade is the grade of one student in a BulkGrades request.
type StudentGrade struct {
	StudentID int64        `json:"student_id" validate:"required,gt=0"`
	Grade     null.Float64 `json:"grade" validate:"omitempty,gte=0,lte=100"`
}

// BulkGrades grades one work for every active student of a cycle.
// Students missing from Grades get a work with no grade.
type BulkGrades struct {
	FormativeFieldID int64          `json:"formative_field_id" validate:"required,gt=0"`
	PartialID        int64          `json:"partial_id" validate:"required,gt=0"`
	WorkTypeID       int64          `json:"work_type_id" validate:"required,gt=0"`
	Name             string         `json:"name" validate:"required,max=255"`
	WorkDate         core.Date      `json:"work_date"`
	Grades           []StudentGrade `json:"grades" validate:"dive"`
}

func (bg *BulkGrades) Validate(validate *validator.Validate) error {
	bg.Name = core.CleanString(bg.Name)
	for i := range bg.Grades {
		roundGrade(&bg.Grades[i].Grade)
	}
	return validate.Struct(bg)
}

type BulkGradesResult struct {
	Created           []StudentWork `json:"created"`
	Updated           []StudentWork `json:"updated"`
	TotalWithGrade    int           `json:"total_with_grade"`
	TotalWithoutGrade int           `json:"total_without_grade"`
}

// WorkTypeRef points to an existing work type by ID, or names a new one.
type WorkTypeRef struct {
	ID               int64   `json:"id" validate:"omitempty,gt=0"`
	Name             string  `json:"name" validate:"required_without=ID,max=120"`
	EvaluationWeight float64 `json:"evaluation_weight" validate:"gte=0,lte=100"`
}

// WeightItem sets the weight of a work type (by ID or by name) during a partial.
type WeightItem struct {
	PartialID        int64   `json:"partial_id" validate:"required,gt=0"`
	WorkTypeID       int64   `json:"work_type_id" validate:"omitempty,gt=0"`
	WorkTypeName     string  `json:"work_type_name" validate:"required_without=WorkTypeID,max=120"`
	EvaluationWeight float64 `json:"evaluation_weight" validate:"gte=0,lte=100"`
}

// FieldSetup creates a formative field with its work types and evaluation weights at once.
type FieldSetup struct {
	SchoolCycleID int64         `json:"school_cycle_id" validate:"required,gt=0"`
	Name          string        `json:"name" validate:"required,max=120"`
	Code          null.String   `json:"code" validate:"omitempty,max=50"`
	WorkTypes     []WorkTypeRef `json:"work_types" validate:"dive"`
	Evaluations   []WeightItem  `json:"evaluations" validate:"dive"`
}

func (fs *FieldSetup) Validate(validate *validator.Validate) error {
	fs.Name = core.CleanString(fs.Name)
	for i := range fs.WorkTypes {
		fs.WorkTypes[i].Name = core.CleanString(fs.WorkTypes[i].Name)
		fs.WorkTypes[i].EvaluationWeight = core.RoundDecimal(fs.WorkTypes[i].EvaluationWeight)
	}
	for i := range fs.Evaluations {
		fs.Evaluations[i].WorkTypeName = core.CleanString(fs.Evaluations[i].WorkTypeName)
		fs.Evaluations[i].EvaluationWeight = core.RoundDecimal(fs.Evaluations[i].EvaluationWeight)
	}
	return validate.Struct(fs)
}

type WorkTypeWeight struct {
	WorkTypeID       int64   `json:"work_type_id"`
	WorkTypeName     string  `json:"work_type_name"`
	PartialID        int64   `json:"partial_id"`
	EvaluationWeight float64 `json:"evaluation_weight"`
}

type FieldSummary struct {
	FormativeFieldID int64            `json:"formative_field_id"`
	Name             string           `json:"name"`
	Code             null.String      `json:"code"`
	WorkTypes        []WorkTypeWeight `json:"work_types"`
}

type CycleSummary struct {
	SchoolCycleID   int64          `json:"school_cycle_id"`
	FormativeFields []FieldSummary `json:"formative_fields"`
}

func roundGrade(g *null.Float64) {
	if g.Valid {
		g.Float64 = core.RoundDecimal(g.Float64)
	}
}
