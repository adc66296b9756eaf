// Package catalog manages the reference lookup tables: access levels, school types, shifts and period catalogs.
package catalog

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/escolar/core"
)

// Access levels seeded by the migrations.
const (
	LevelAdmin   = "admin"
	LevelTeacher = "teacher"
	LevelStudent = "student"
	LevelParent  = "parent"
)

type Kind string

const (
	AccessLevels   Kind = "access_levels"
	SchoolTypes    Kind = "school_types"
	Shifts         Kind = "shifts"
	PeriodCatalogs Kind = "period_catalogs"
)

var (
	Kinds = []Kind{AccessLevels, SchoolTypes, Shifts, PeriodCatalogs}

	kindSlugs = map[string]Kind{
		"access-levels":   AccessLevels,
		"school-types":    SchoolTypes,
		"shifts":          Shifts,
		"period-catalogs": PeriodCatalogs,
	}
	kindLabels = map[Kind]string{
		AccessLevels:   "access level",
		SchoolTypes:    "school type",
		Shifts:         "shift",
		PeriodCatalogs: "period catalog",
	}
)

// KindFromSlug maps URL slugs (eg: "school-types") to a Kind.
func KindFromSlug(slug string) (Kind, bool) {
	k, ok := kindSlugs[slug]
	return k, ok
}

// Table is the name of the table holding the Kind's items.
func (k Kind) Table() string { return string(k) }

func (k Kind) Label() string { return kindLabels[k] }

func (k Kind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// ErrNotFound returns the not found error of the Kind.
func (k Kind) ErrNotFound() error {
	return core.NewNotFoundError(k.Label())
}

type Item struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

type NewItem struct {
	Name string `json:"name" validate:"required,max=50"`
}

func (ni *NewItem) Validate(validate *validator.Validate) error {
	ni.Name = core.CleanString(ni.Name)
	return validate.Struct(ni)
}
