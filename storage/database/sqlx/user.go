package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/user"
)

const (
	userColumns = `u.id, u.email, u.first_name, u.last_name, u.phone, u.access_level_id, al.name AS access_level,
		u.access_code_id, u.is_active, u.password_hash, u.last_login, u.created_at, u.updated_at`
	userSelect = "SELECT " + userColumns + " FROM users u JOIN access_levels al ON al.id = u.access_level_id"

	accessCodeSelect = `SELECT ac.id, ac.code, ac.access_level_id, al.name AS access_level, ac.description, ac.is_active,
		ac.created_by, u.id AS used_by, ac.created_at
		FROM access_codes ac
		JOIN access_levels al ON al.id = ac.access_level_id
		LEFT JOIN users u ON u.access_code_id = ac.id`
)

var userOrderings = []string{"id", "email", "first_name", "last_name", "created_at", "last_login"}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{base{exec: exec}}
}

func (repo userRepository) getUser(ctx context.Context, exe core.DBExecutor, cond string, arg interface{}) (user.User, error) {
	var usr user.User
	if err := exe.GetContext(ctx, &usr, exe.Rebind(userSelect+" WHERE "+cond), arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return usr, nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO users
		(email, password_hash, first_name, last_name, phone, access_level_id, access_code_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		usr.Email, usr.PasswordHash, usr.FirstName, usr.LastName, usr.Phone, usr.AccessLevelID, usr.AccessCodeID,
		usr.IsActive, usr.CreatedAt, usr.UpdatedAt,
	).Scan(&usr.ID)
	if err != nil {
		return user.User{}, trapWriteErr(err, "user", "inserting user")
	}
	return repo.getUser(ctx, exe, "u.id = ?", usr.ID)
}

func (repo userRepository) GetUserByID(ctx context.Context, id int64, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, repo.getExec(exec), "u.id = ?", id)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, repo.getExec(exec), "u.email = ?", email)
}

func (repo userRepository) EmailExists(ctx context.Context, email string, excludedIDs ...int64) (bool, error) {
	q := "SELECT COUNT(*) FROM users WHERE email = ?"
	args := []interface{}{email}
	if len(excludedIDs) > 0 {
		var err error
		q, args, err = sqlx.In(q+" AND id NOT IN (?)", email, excludedIDs)
		if err != nil {
			return false, errors.Wrap(err, "building email uniqueness query")
		}
	}

	var count int
	if err := repo.exec.GetContext(ctx, &count, repo.exec.Rebind(q), args...); err != nil {
		return false, errors.Wrap(err, "checking email uniqueness")
	}
	return count > 0, nil
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]user.User, error) {
	var w where
	w.search(filter.Search, "u.first_name", "u.last_name", "u.email")
	if filter.AccessLevelID != 0 {
		w.add("u.access_level_id = ?", filter.AccessLevelID)
	}
	if filter.IsActive != nil {
		w.add("u.is_active = ?", *filter.IsActive)
	}

	q, args := paginate(userSelect+w.String()+orderBy(ordering, "u.", userOrderings, "u.id"), w.args, page)
	users := make([]user.User, 0)
	if err := repo.exec.SelectContext(ctx, &users, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`UPDATE users SET
		email = ?, password_hash = ?, first_name = ?, last_name = ?, phone = ?, access_level_id = ?, is_active = ?,
		updated_at = ?
		WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		usr.Email, usr.PasswordHash, usr.FirstName, usr.LastName, usr.Phone, usr.AccessLevelID, usr.IsActive,
		usr.UpdatedAt, usr.ID,
	)
	if err != nil {
		return user.User{}, trapWriteErr(err, "user", "updating user")
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return repo.getUser(ctx, exe, "u.id = ?", usr.ID)
}

func (repo userRepository) SetLastLogin(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE users SET last_login = ? WHERE id = ?"), at, id)
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	return checkAffected(res, user.ErrNotFound)
}

// Access codes

func (repo userRepository) getAccessCode(ctx context.Context, exe core.DBExecutor, cond string, arg interface{}) (user.AccessCode, error) {
	var code user.AccessCode
	if err := exe.GetContext(ctx, &code, exe.Rebind(accessCodeSelect+" WHERE "+cond), arg); err != nil {
		return user.AccessCode{}, trapNoRowsErr(err, user.ErrAccessCodeNotFound, "finding access code")
	}
	return code, nil
}

func (repo userRepository) CreateAccessCode(ctx context.Context, code user.AccessCode, exec ...core.DBExecutor) (user.AccessCode, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO access_codes (code, access_level_id, description, is_active, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		code.Code, code.AccessLevelID, code.Description, code.IsActive, code.CreatedBy, code.CreatedAt,
	).Scan(&code.ID)
	if err != nil {
		return user.AccessCode{}, trapWriteErr(err, "access code", "inserting access code")
	}
	return repo.getAccessCode(ctx, exe, "ac.id = ?", code.ID)
}

func (repo userRepository) GetAccessCodeByID(ctx context.Context, id int64, exec ...core.DBExecutor) (user.AccessCode, error) {
	return repo.getAccessCode(ctx, repo.getExec(exec), "ac.id = ?", id)
}

func (repo userRepository) GetAccessCodeByCode(ctx context.Context, code string, exec ...core.DBExecutor) (user.AccessCode, error) {
	return repo.getAccessCode(ctx, repo.getExec(exec), "ac.code = ?", code)
}

func (repo userRepository) FilterAccessCodes(ctx context.Context, filter user.AccessCodeFilter, page core.Pagination) ([]user.AccessCode, error) {
	var w where
	w.search(filter.Search, "ac.code", "ac.description")
	if filter.AccessLevelID != 0 {
		w.add("ac.access_level_id = ?", filter.AccessLevelID)
	}
	if filter.IsActive != nil {
		w.add("ac.is_active = ?", *filter.IsActive)
	}
	if filter.IsUsed != nil {
		if *filter.IsUsed {
			w.add("u.id IS NOT NULL")
		} else {
			w.add("u.id IS NULL")
		}
	}

	q, args := paginate(accessCodeSelect+w.String()+" ORDER BY ac.id DESC", w.args, page)
	codes := make([]user.AccessCode, 0)
	if err := repo.exec.SelectContext(ctx, &codes, repo.exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying access codes")
	}
	return codes, nil
}

func (repo userRepository) UpdateAccessCode(ctx context.Context, code user.AccessCode, exec ...core.DBExecutor) (user.AccessCode, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE access_codes SET access_level_id = ?, description = ?, is_active = ? WHERE id = ?")
	res, err := exe.ExecContext(ctx, q, code.AccessLevelID, code.Description, code.IsActive, code.ID)
	if err != nil {
		return user.AccessCode{}, trapWriteErr(err, "access code", "updating access code")
	}
	if err = checkAffected(res, user.ErrAccessCodeNotFound); err != nil {
		return user.AccessCode{}, err
	}
	return repo.getAccessCode(ctx, exe, "ac.id = ?", code.ID)
}

func (repo userRepository) DeleteAccessCode(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM access_codes WHERE id = ?"), id)
	if err != nil {
		return trapDeleteErr(err, "access code", "deleting access code")
	}
	return checkAffected(res, user.ErrAccessCodeNotFound)
}

// Refresh tokens

func (repo userRepository) CreateRefreshToken(ctx context.Context, token user.RefreshToken, exec ...core.DBExecutor) (user.RefreshToken, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO refresh_tokens (user_id, token, is_active, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q, token.UserID, token.Token, token.IsActive, token.ExpiresAt, token.CreatedAt).Scan(&token.ID)
	if err != nil {
		return user.RefreshToken{}, trapWriteErr(err, "refresh token", "inserting refresh token")
	}
	return token, nil
}

func (repo userRepository) GetRefreshToken(ctx context.Context, token string, exec ...core.DBExecutor) (user.RefreshToken, error) {
	exe := repo.getExec(exec)
	var rt user.RefreshToken
	q := exe.Rebind("SELECT id, user_id, token, is_active, expires_at, created_at FROM refresh_tokens WHERE token = ?")
	if err := exe.GetContext(ctx, &rt, q, token); err != nil {
		return user.RefreshToken{}, trapNoRowsErr(err, core.NewNotFoundError("refresh token"), "finding refresh token")
	}
	return rt, nil
}

func (repo userRepository) RevokeRefreshToken(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind("UPDATE refresh_tokens SET is_active = ? WHERE id = ?"), false, id)
	return errors.Wrap(err, "revoking refresh token")
}

func (repo userRepository) DeleteStaleRefreshTokens(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM refresh_tokens WHERE is_active = ? OR expires_at <= ?"), false, now)
	if err != nil {
		return 0, errors.Wrap(err, "deleting stale refresh tokens")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "counting deleted refresh tokens")
}

// Devices

func (repo userRepository) UpsertDevice(ctx context.Context, dev user.Device, exec ...core.DBExecutor) (user.Device, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO devices (user_id, imei, latitude, longitude, is_active, last_login_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, imei) DO UPDATE SET
			latitude = excluded.latitude, longitude = excluded.longitude, is_active = excluded.is_active,
			last_login_at = excluded.last_login_at
		RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		dev.UserID, dev.IMEI, dev.Latitude, dev.Longitude, dev.IsActive, dev.LastLoginAt, dev.CreatedAt,
	).Scan(&dev.ID)
	if err != nil {
		return user.Device{}, trapWriteErr(err, "device", "saving device")
	}
	return dev, nil
}

func (repo userRepository) QueryDevices(ctx context.Context, userID int64) ([]user.Device, error) {
	devices := make([]user.Device, 0)
	q := repo.exec.Rebind(`SELECT id, user_id, imei, latitude, longitude, is_active, last_login_at, created_at
		FROM devices WHERE user_id = ? ORDER BY last_login_at DESC`)
	if err := repo.exec.SelectContext(ctx, &devices, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying devices")
	}
	return devices, nil
}
