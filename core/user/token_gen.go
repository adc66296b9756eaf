package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/escolar/core"
)

var (
	tokenSalt = []byte("escolar.core.user.password_reset")

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// tokenGenerator makes single-use password reset tokens.
// A token is bound to the user's password hash and last login, so it stops working once either changes.
type tokenGenerator struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time // mockable
}

func newTokenGenerator(conf *core.Config) tokenGenerator {
	return tokenGenerator{
		secret:  []byte(conf.SecretKey),
		timeout: conf.PasswordResetTimeoutDelta,
		now:     time.Now,
	}
}

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(usr.ID, 10)))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (int64, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(idBytes), 10, 64)
}

func (g tokenGenerator) makeToken(usr User) (string, error) {
	return g.makeTokenWithTimestamp(usr, g.now().Unix())
}

func (g tokenGenerator) verifyToken(usr User, token string) error {
	parts := strings.SplitN(token, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errInvalidToken
	}
	ts, err := strconv.ParseInt(parts[0], 36, 64)
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	expected, err := g.makeTokenWithTimestamp(usr, ts)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return errInvalidToken
	}

	if g.now().Sub(time.Unix(ts, 0)) > g.timeout {
		return errTokenExpired
	}
	return nil
}

func (g tokenGenerator) makeTokenWithTimestamp(usr User, ts int64) (string, error) {
	key := sha256.Sum256(append(append([]byte{}, tokenSalt...), g.secret...))
	h := hmac.New(sha256.New, key[:])

	var b strings.Builder
	b.WriteString(strconv.FormatInt(usr.ID, 10))
	b.Write(usr.PasswordHash)
	if usr.LastLogin.Valid {
		b.WriteString(strconv.FormatInt(usr.LastLogin.Time.Unix(), 10))
	}
	b.WriteString(strconv.FormatInt(ts, 10))
	if _, err := h.Write([]byte(b.String())); err != nil {
		return "", err
	}
	return strconv.FormatInt(ts, 36) + "-" + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}
