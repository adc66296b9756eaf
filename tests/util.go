package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/school"
	"github.com/trezcool/escolar/core/student"
	"github.com/trezcool/escolar/core/user"
	"github.com/trezcool/escolar/storage/database"
)

// Password passes the password policy.
const Password = "Cuaderno#2024x"

// NewConfig returns the configuration of the test environment, backed by the SQLite database at dbPath.
func NewConfig(dbPath string) *core.Config {
	return &core.Config{
		AppName:                   "Escolar",
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		SecretKey:                 "test-secret-key",
		DefaultFromEmail:          "Escolar <noreply@test.mx>",
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		CORSOrigins:               []string{"*"},
		Server: core.ServerConfig{
			Host:                      "localhost:8000",
			Address:                   ":8000",
			DebugAddress:              ":4000",
			JWTAlgorithm:              "HS256",
			JWTExpirationDelta:        20 * time.Minute,
			JWTRefreshExpirationDelta: 90 * 24 * time.Hour,
			ShutdownTimeout:           5 * time.Second,
			TokenCleanupSchedule:      "0 2 * * *",
		},
		Database: core.DatabaseConfig{
			Engine: "sqlite",
			Path:   dbPath,
		},
	}
}

// PrepareDB opens a fresh, migrated SQLite database that is closed when the test ends.
func PrepareDB(t *testing.T) (*sqlx.DB, *core.Config) {
	t.Helper()

	conf := NewConfig(filepath.Join(t.TempDir(), "escolar_test.db"))
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, database.Dialect(conf)); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db, conf
}

// NewValidator returns a validator with the app's custom validations and english translations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// CatalogID returns the ID of a seeded catalog item.
func CatalogID(t *testing.T, db *sqlx.DB, kind catalog.Kind, name string) int64 {
	t.Helper()

	var id int64
	q := db.Rebind(fmt.Sprintf("SELECT id FROM %s WHERE name = ?", kind.Table()))
	if err := db.Get(&id, q, name); err != nil {
		t.Fatalf("CatalogID(%s, %s) failed: %v", kind, name, err)
	}
	return id
}

// UserCreator is satisfied by user.Repository.
type UserCreator interface {
	CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error)
}

func CreateUser(t *testing.T, db *sqlx.DB, repo UserCreator, email, level string, isActive bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Email:         email,
		FirstName:     "Ana",
		LastName:      "Ruiz",
		AccessLevelID: CatalogID(t, db, catalog.AccessLevels, level),
		IsActive:      isActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateSchool(t *testing.T, db *sqlx.DB, repo school.Repository, cct string) school.School {
	t.Helper()

	sch, err := repo.CreateSchool(context.Background(), school.School{
		CCT:          cct,
		Name:         "Escuela " + cct,
		SchoolTypeID: CatalogID(t, db, catalog.SchoolTypes, "Primaria"),
		ShiftID:      null.Int64From(CatalogID(t, db, catalog.Shifts, "Matutino")),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return sch
}

func CreateCycle(t *testing.T, repo cycle.Repository, schoolID, teacherID int64, name string) cycle.SchoolCycle {
	t.Helper()

	cyc, err := repo.CreateCycle(context.Background(), cycle.SchoolCycle{
		SchoolID:  schoolID,
		TeacherID: teacherID,
		Name:      name,
		Year:      null.IntFrom(2024),
		Grade:     null.StringFrom("3"),
		GroupName: null.StringFrom("A"),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateCycle() failed: %v", err)
	}
	return cyc
}

func CreatePartial(t *testing.T, repo cycle.Repository, cycleID int64, name string) cycle.Partial {
	t.Helper()

	p, err := repo.CreatePartial(context.Background(), cycle.Partial{
		SchoolCycleID: cycleID,
		Name:          name,
		StartDate:     core.NewDate(2024, time.September, 1),
		EndDate:       core.NewDate(2024, time.November, 30),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreatePartial() failed: %v", err)
	}
	return p
}

func CreateFormativeField(t *testing.T, repo cycle.Repository, cycleID int64, name string) cycle.FormativeField {
	t.Helper()

	ff, err := repo.CreateFormativeField(context.Background(), cycle.FormativeField{
		SchoolCycleID: cycleID,
		Name:          name,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateFormativeField() failed: %v", err)
	}
	return ff
}

func CreateStudent(t *testing.T, repo student.Repository, cyc cycle.SchoolCycle, curp, firstName string, isActive bool) student.Student {
	t.Helper()

	st, err := repo.CreateStudent(context.Background(), student.Student{
		CURP:          curp,
		FirstName:     firstName,
		LastName:      "Godinez",
		BirthDate:     core.NewDate(2015, time.May, 20),
		TeacherID:     cyc.TeacherID,
		SchoolCycleID: cyc.ID,
		IsActive:      isActive,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}
