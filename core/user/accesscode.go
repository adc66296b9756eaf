package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escolar/core"
)

// AccessCode gates self registration: whoever registers with it gets its access level.
// A code can only be used once.
type AccessCode struct {
	ID            int64       `json:"id" db:"id"`
	Code          string      `json:"code" db:"code"`
	AccessLevelID int64       `json:"access_level_id" db:"access_level_id"`
	AccessLevel   string      `json:"access_level" db:"access_level"` // read only
	Description   null.String `json:"description" db:"description"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedBy     null.Int64  `json:"created_by" db:"created_by"`
	UsedBy        null.Int64  `json:"used_by" db:"used_by"` // read only
	CreatedAt     time.Time   `json:"created_at" db:"created_at"` // UTC
}

func (ac AccessCode) IsUsed() bool { return ac.UsedBy.Valid }

type NewAccessCode struct {
	Code          string      `json:"code" validate:"required,min=4,max=50,alphanum_"`
	AccessLevelID int64       `json:"access_level_id" validate:"required,gt=0"`
	Description   null.String `json:"description" validate:"omitempty,max=255"`
	IsActive      *bool       `json:"is_active"`
}

func (nc *NewAccessCode) Validate(validate *validator.Validate) error {
	nc.Code = core.CleanString(nc.Code)
	return validate.Struct(nc)
}

type UpdateAccessCode struct {
	AccessLevelID int64       `json:"access_level_id" validate:"omitempty,gt=0"`
	Description   null.String `json:"description" validate:"omitempty,max=255"`
	IsActive      *bool       `json:"is_active"`
}

func (uc *UpdateAccessCode) Validate(validate *validator.Validate) error {
	return validate.Struct(uc)
}

type AccessCodeFilter struct {
	Search        string `query:"search"`
	AccessLevelID int64  `query:"access_level_id"`
	IsActive      *bool  `query:"is_active"`
	IsUsed        *bool  `query:"is_used"`
}

func (f *AccessCodeFilter) Clean() {
	f.Search = core.CleanString(f.Search)
}
