package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user")
	ErrAccessCodeNotFound   = core.NewNotFoundError("access code")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	errAccessCodeInvalid    = "invalid access code"
	errAccessCodeInactive   = "access code is inactive"
	errAccessCodeAlreadyUse = "access code has already been used"
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id int64, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		EmailExists(ctx context.Context, email string, excludedIDs ...int64) (bool, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.FirstName, User.LastName or User.Email.
		FilterUsers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		SetLastLogin(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error

		CreateAccessCode(ctx context.Context, code AccessCode, exec ...core.DBExecutor) (AccessCode, error)
		GetAccessCodeByID(ctx context.Context, id int64, exec ...core.DBExecutor) (AccessCode, error)
		GetAccessCodeByCode(ctx context.Context, code string, exec ...core.DBExecutor) (AccessCode, error)
		FilterAccessCodes(ctx context.Context, filter AccessCodeFilter, page core.Pagination) ([]AccessCode, error)
		UpdateAccessCode(ctx context.Context, code AccessCode, exec ...core.DBExecutor) (AccessCode, error)
		DeleteAccessCode(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreateRefreshToken(ctx context.Context, token RefreshToken, exec ...core.DBExecutor) (RefreshToken, error)
		GetRefreshToken(ctx context.Context, token string, exec ...core.DBExecutor) (RefreshToken, error)
		RevokeRefreshToken(ctx context.Context, id int64, exec ...core.DBExecutor) error
		DeleteStaleRefreshTokens(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error)

		UpsertDevice(ctx context.Context, dev Device, exec ...core.DBExecutor) (Device, error)
		QueryDevices(ctx context.Context, userID int64) ([]Device, error)
	}

	// ReferenceChecker verifies that catalog rows exist before they get referenced.
	ReferenceChecker interface {
		CheckReference(ctx context.Context, kind catalog.Kind, id int64, field string) error
	}

	Service struct {
		db      core.DB
		repo    Repository
		refs    ReferenceChecker
		mailSvc core.EmailService
		conf    *core.Config
		tokens  tokenGenerator
	}
)

func NewService(db core.DB, repo Repository, refs ReferenceChecker, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		refs:    refs,
		mailSvc: mailSvc,
		conf:    conf,
		tokens:  newTokenGenerator(conf),
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	excl := make([]int64, 0, len(exclUsers))
	for _, usr := range exclUsers {
		excl = append(excl, usr.ID)
	}
	exists, err := svc.repo.EmailExists(ctx, email, excl...)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return core.NewConflictError("email", ErrEmailExists.Error())
	}
	return nil
}

// Create is used by admins to create users with an explicit access level.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.refs.CheckReference(ctx, catalog.AccessLevels, nu.AccessLevelID, "access_level_id"); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Email:         nu.Email,
		FirstName:     nu.FirstName,
		LastName:      nu.LastName,
		Phone:         nu.Phone,
		AccessLevelID: nu.AccessLevelID,
		IsActive:      nu.IsActive == nil || *nu.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Register signs a user up with an access code.
// The code must exist, be active and not be used yet; the user gets the code's access level.
func (svc *Service) Register(ctx context.Context, reg Registration) (User, error) {
	code, err := svc.repo.GetAccessCodeByCode(ctx, reg.AccessCode)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, core.NewFieldError("access_code", errAccessCodeInvalid)
		}
		return User{}, errors.Wrap(err, "finding access code")
	}
	if !code.IsActive {
		return User{}, core.NewFieldError("access_code", errAccessCodeInactive)
	}
	if code.IsUsed() {
		return User{}, core.NewConflictError("access_code", errAccessCodeAlreadyUse)
	}

	now := time.Now().UTC()
	usr := User{
		Email:         reg.Email,
		FirstName:     reg.FirstName,
		LastName:      reg.LastName,
		Phone:         reg.Phone,
		AccessLevelID: code.AccessLevelID,
		AccessCodeID:  null.Int64From(code.ID),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(reg.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]User, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.FilterUsers(ctx, filter, ordering, page)
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if uu.AccessLevelID != 0 {
		if err := svc.refs.CheckReference(ctx, catalog.AccessLevels, uu.AccessLevelID, "access_level_id"); err != nil {
			return User{}, err
		}
		usr.AccessLevelID = uu.AccessLevelID
	}
	if uu.FirstName != "" {
		usr.FirstName = uu.FirstName
	}
	if uu.LastName != "" {
		usr.LastName = uu.LastName
	}
	if uu.Phone.Valid {
		usr.Phone = uu.Phone
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	usr.FirstName = up.FirstName
	usr.LastName = up.LastName
	usr.Phone = up.Phone
	if up.Password != "" {
		if err := usr.SetPassword(up.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword is used by the admin CLI.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Authenticate checks the user's credentials. Unknown emails and wrong passwords both give ErrInvalidCredentials.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	return usr, nil
}

// Login authenticates the user, records the login (and the device when provided) and issues a refresh token.
func (svc *Service) Login(ctx context.Context, creds Credentials) (Session, error) {
	usr, err := svc.Authenticate(ctx, creds.Email, creds.Password)
	if err != nil {
		return Session{}, err
	}

	var sess Session
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		now := time.Now().UTC()
		if err := svc.repo.SetLastLogin(ctx, usr.ID, now, tx); err != nil {
			return errors.Wrap(err, "setting lastLogin")
		}
		usr.LastLogin = null.TimeFrom(now)

		if creds.IMEI != "" {
			dev := Device{
				UserID:      usr.ID,
				IMEI:        creds.IMEI,
				Latitude:    creds.Latitude,
				Longitude:   creds.Longitude,
				IsActive:    true,
				LastLoginAt: null.TimeFrom(now),
				CreatedAt:   now,
			}
			if _, err := svc.repo.UpsertDevice(ctx, dev, tx); err != nil {
				return errors.Wrap(err, "saving device")
			}
		}

		token, err := svc.issueRefreshToken(ctx, usr.ID, now, tx)
		if err != nil {
			return err
		}
		sess = Session{User: usr, RefreshToken: token}
		return nil
	})
	return sess, err
}

// Refresh exchanges a valid refresh token for a new one. The old token is revoked.
func (svc *Service) Refresh(ctx context.Context, token string) (Session, error) {
	var sess Session
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		now := time.Now().UTC()
		old, err := svc.repo.GetRefreshToken(ctx, token, tx)
		if err != nil {
			if core.IsNotFound(err) {
				return ErrInvalidRefreshToken
			}
			return errors.Wrap(err, "finding refresh token")
		}
		if !old.IsValid(now) {
			return ErrInvalidRefreshToken
		}

		usr, err := svc.repo.GetUserByID(ctx, old.UserID, tx)
		if err != nil {
			return errors.Wrap(err, "finding user by ID")
		}
		if !usr.IsActive {
			return ErrAccountDeactivated
		}

		if err = svc.repo.RevokeRefreshToken(ctx, old.ID, tx); err != nil {
			return errors.Wrap(err, "revoking refresh token")
		}
		newToken, err := svc.issueRefreshToken(ctx, usr.ID, now, tx)
		if err != nil {
			return err
		}
		sess = Session{User: usr, RefreshToken: newToken}
		return nil
	})
	return sess, err
}

// Logout revokes the refresh token of the user. Unknown tokens are ignored.
func (svc *Service) Logout(ctx context.Context, usr User, token string) error {
	rt, err := svc.repo.GetRefreshToken(ctx, token)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "finding refresh token")
	}
	if rt.UserID != usr.ID {
		return nil
	}
	return svc.repo.RevokeRefreshToken(ctx, rt.ID)
}

// CleanupRefreshTokens deletes expired and revoked refresh tokens.
func (svc *Service) CleanupRefreshTokens(ctx context.Context) (int64, error) {
	return svc.repo.DeleteStaleRefreshTokens(ctx, time.Now().UTC())
}

func (svc *Service) issueRefreshToken(ctx context.Context, userID int64, now time.Time, exec core.DBExecutor) (RefreshToken, error) {
	token, err := svc.repo.CreateRefreshToken(ctx, RefreshToken{
		UserID:    userID,
		Token:     uuid.NewString(),
		IsActive:  true,
		ExpiresAt: now.Add(svc.conf.Server.JWTRefreshExpirationDelta),
		CreatedAt: now,
	}, exec)
	return token, errors.Wrap(err, "creating refresh token")
}

func (svc *Service) QueryDevices(ctx context.Context, usr User) ([]Device, error) {
	return svc.repo.QueryDevices(ctx, usr.ID)
}

// RequestPasswordReset emails a password reset link to the user.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrAccountDeactivated
	}

	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Password reset on " + svc.conf.AppName,
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.FullName(),
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	}
	svc.mailSvc.SendMessages(msg)
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidTokenErr := core.NewFieldError("token", errInvalidToken.Error())

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidTokenErr
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return invalidTokenErr
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err := svc.tokens.verifyToken(usr, data.Token); err != nil {
		return core.NewFieldError("token", err.Error())
	}

	_, err = svc.SetPassword(ctx, usr, data.Password)
	return errors.Wrap(err, "setting password")
}

// Access codes

func (svc *Service) CreateAccessCode(ctx context.Context, creator User, nc NewAccessCode) (AccessCode, error) {
	if err := svc.refs.CheckReference(ctx, catalog.AccessLevels, nc.AccessLevelID, "access_level_id"); err != nil {
		return AccessCode{}, err
	}
	code := AccessCode{
		Code:          nc.Code,
		AccessLevelID: nc.AccessLevelID,
		Description:   nc.Description,
		IsActive:      nc.IsActive == nil || *nc.IsActive,
		CreatedAt:     time.Now().UTC(),
	}
	if creator.ID != 0 {
		code.CreatedBy = null.Int64From(creator.ID)
	}
	return svc.repo.CreateAccessCode(ctx, code)
}

func (svc *Service) GetAccessCode(ctx context.Context, id int64) (AccessCode, error) {
	return svc.repo.GetAccessCodeByID(ctx, id)
}

func (svc *Service) FilterAccessCodes(ctx context.Context, filter AccessCodeFilter, page core.Pagination) ([]AccessCode, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.FilterAccessCodes(ctx, filter, page)
}

func (svc *Service) UpdateAccessCode(ctx context.Context, code AccessCode, uc UpdateAccessCode) (AccessCode, error) {
	if uc.AccessLevelID != 0 {
		if err := svc.refs.CheckReference(ctx, catalog.AccessLevels, uc.AccessLevelID, "access_level_id"); err != nil {
			return AccessCode{}, err
		}
		code.AccessLevelID = uc.AccessLevelID
	}
	if uc.Description.Valid {
		code.Description = uc.Description
	}
	if uc.IsActive != nil {
		code.IsActive = *uc.IsActive
	}
	return svc.repo.UpdateAccessCode(ctx, code)
}

func (svc *Service) DeleteAccessCode(ctx context.Context, id int64) error {
	return svc.repo.DeleteAccessCode(ctx, id)
}
