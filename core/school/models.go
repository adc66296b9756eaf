package school

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escolar/core"
)

type School struct {
	ID              int64        `json:"id" db:"id"`
	CCT             string       `json:"cct" db:"cct"`
	Name            string       `json:"name" db:"name"`
	SchoolTypeID    int64        `json:"school_type_id" db:"school_type_id"`
	ShiftID         null.Int64   `json:"shift_id" db:"shift_id"`
	PeriodCatalogID null.Int64   `json:"period_catalog_id" db:"period_catalog_id"`
	PostalCode      null.String  `json:"postal_code" db:"postal_code"`
	Latitude        null.Float64 `json:"latitude" db:"latitude"`
	Longitude       null.Float64 `json:"longitude" db:"longitude"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"` // UTC
}

// NewSchool contains information needed to create a new School.
type NewSchool struct {
	CCT             string       `json:"cct" validate:"required,max=20,alphanum"`
	Name            string       `json:"name" validate:"required,max=150"`
	SchoolTypeID    int64        `json:"school_type_id" validate:"required,gt=0"`
	ShiftID         null.Int64   `json:"shift_id" validate:"omitempty,gt=0"`
	PeriodCatalogID null.Int64   `json:"period_catalog_id" validate:"omitempty,gt=0"`
	PostalCode      null.String  `json:"postal_code" validate:"omitempty,postcode"`
	Latitude        null.Float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       null.Float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.CCT = strings.ToUpper(core.CleanString(ns.CCT))
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

// UpdateSchool defines what information may be provided to modify an existing School.
// Omitted fields are left untouched.
type UpdateSchool struct {
	CCT             string       `json:"cct" validate:"omitempty,max=20,alphanum"`
	Name            string       `json:"name" validate:"omitempty,max=150"`
	SchoolTypeID    int64        `json:"school_type_id" validate:"omitempty,gt=0"`
	ShiftID         null.Int64   `json:"shift_id" validate:"omitempty,gt=0"`
	PeriodCatalogID null.Int64   `json:"period_catalog_id" validate:"omitempty,gt=0"`
	PostalCode      null.String  `json:"postal_code" validate:"omitempty,postcode"`
	Latitude        null.Float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       null.Float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (us *UpdateSchool) Validate(validate *validator.Validate) error {
	us.CCT = strings.ToUpper(core.CleanString(us.CCT))
	us.Name = core.CleanString(us.Name)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search          string `query:"search"`
	SchoolTypeID    int64  `query:"school_type_id"`
	ShiftID         int64  `query:"shift_id"`
	PeriodCatalogID int64  `query:"period_catalog_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
