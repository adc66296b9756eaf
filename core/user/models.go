package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
)

type User struct {
	ID            int64       `json:"id" db:"id"`
	Email         string      `json:"email" db:"email"`
	FirstName     string      `json:"first_name" db:"first_name"`
	LastName      string      `json:"last_name" db:"last_name"`
	Phone         null.String `json:"phone" db:"phone"`
	AccessLevelID int64       `json:"access_level_id" db:"access_level_id"`
	AccessLevel   string      `json:"access_level" db:"access_level"` // name of the access level, read only
	AccessCodeID  null.Int64  `json:"access_code_id" db:"access_code_id"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	PasswordHash  []byte      `json:"-" db:"password_hash"`
	LastLogin     null.Time   `json:"last_login" db:"last_login"` // UTC
	CreatedAt     time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsAdmin() bool {
	return u.AccessLevel == catalog.LevelAdmin
}

func (u *User) IsTeacher() bool {
	return u.AccessLevel == catalog.LevelTeacher
}

// NewUser contains information needed by an admin to create a new User.
type NewUser struct {
	Email           string      `json:"email" validate:"required,email,max=150"`
	FirstName       string      `json:"first_name" validate:"required,max=100"`
	LastName        string      `json:"last_name" validate:"required,max=100"`
	Phone           null.String `json:"phone" validate:"omitempty,max=20"`
	AccessLevelID   int64       `json:"access_level_id" validate:"required,gt=0"`
	IsActive        *bool       `json:"is_active"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// Registration is the self sign-up payload. The access level is taken from the access code.
type Registration struct {
	Email           string      `json:"email" validate:"required,email,max=150"`
	FirstName       string      `json:"first_name" validate:"required,max=100"`
	LastName        string      `json:"last_name" validate:"required,max=100"`
	Phone           null.String `json:"phone" validate:"omitempty,max=20"`
	AccessCode      string      `json:"access_code" validate:"required,max=50"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (reg *Registration) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	reg.Email = core.CleanString(reg.Email, true /* lower */)
	reg.FirstName = core.CleanString(reg.FirstName)
	reg.LastName = core.CleanString(reg.LastName)
	reg.AccessCode = core.CleanString(reg.AccessCode)

	if err := validate.Struct(reg); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, reg.Email)
}

// UpdateUser defines what information an admin may provide to modify an existing User.
type UpdateUser struct {
	FirstName     string      `json:"first_name" validate:"omitempty,max=100"`
	LastName      string      `json:"last_name" validate:"omitempty,max=100"`
	Phone         null.String `json:"phone" validate:"omitempty,max=20"`
	AccessLevelID int64       `json:"access_level_id" validate:"omitempty,gt=0"`
	IsActive      *bool       `json:"is_active"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	uu.FirstName = core.CleanString(uu.FirstName)
	uu.LastName = core.CleanString(uu.LastName)
	return validate.Struct(uu)
}

// UpdateProfile is what users may change about themselves.
type UpdateProfile struct {
	FirstName       string      `json:"first_name" validate:"omitempty,max=100"`
	LastName        string      `json:"last_name" validate:"omitempty,max=100"`
	Phone           null.String `json:"phone" validate:"omitempty,max=20"`
	CurrentPassword string      `json:"current_password" validate:"required_with=Password"`
	Password        string      `json:"password" validate:"omitempty"`
	PasswordConfirm string      `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`

	email string // for password similarity checks
}

func (up *UpdateProfile) Validate(validate *validator.Validate, origUsr User) error {
	if name := core.CleanString(up.FirstName); name != "" {
		up.FirstName = name
	} else {
		up.FirstName = origUsr.FirstName
	}
	if name := core.CleanString(up.LastName); name != "" {
		up.LastName = name
	} else {
		up.LastName = origUsr.LastName
	}
	if !up.Phone.Valid {
		up.Phone = origUsr.Phone
	}
	up.email = origUsr.Email

	if err := validate.Struct(up); err != nil {
		return err
	}
	if up.Password != "" {
		if err := origUsr.CheckPassword(up.CurrentPassword); err != nil {
			return core.NewFieldError("current_password", "invalid password")
		}
	}
	return nil
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search        string `query:"search"`
	AccessLevelID int64  `query:"access_level_id"`
	IsActive      *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Credentials are used to log in. Device information is optional.
type Credentials struct {
	Email     string       `json:"email" validate:"required"`
	Password  string       `json:"password" validate:"required"`
	IMEI      string       `json:"imei" validate:"omitempty,max=500"`
	Latitude  null.Float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude null.Float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	c.IMEI = core.CleanString(c.IMEI)
	return validate.Struct(c)
}

type RefreshToken struct {
	ID        int64     `json:"-" db:"id"`
	UserID    int64     `json:"-" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	IsActive  bool      `json:"-" db:"is_active"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"` // UTC
	CreatedAt time.Time `json:"-" db:"created_at"`          // UTC
}

func (rt RefreshToken) IsValid(now time.Time) bool {
	return rt.IsActive && now.Before(rt.ExpiresAt)
}

type Device struct {
	ID          int64        `json:"id" db:"id"`
	UserID      int64        `json:"user_id" db:"user_id"`
	IMEI        string       `json:"imei" db:"imei"`
	Latitude    null.Float64 `json:"latitude" db:"latitude"`
	Longitude   null.Float64 `json:"longitude" db:"longitude"`
	IsActive    bool         `json:"is_active" db:"is_active"`
	LastLoginAt null.Time    `json:"last_login_at" db:"last_login_at"` // UTC
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`       // UTC
}

// Session is the result of a successful login or token refresh.
type Session struct {
	User         User
	RefreshToken RefreshToken
}
