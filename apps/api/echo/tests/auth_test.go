package tests

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/escolar/apps/api/echo"
	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/user"
	testutil "github.com/trezcool/escolar/tests"
)

func Test_userApi_register(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.createUser(t, "admin@test.mx", catalog.LevelAdmin, true)

	teacherLevel := testutil.CatalogID(t, e.db, catalog.AccessLevels, catalog.LevelTeacher)
	inactive := false
	_, err := e.usrSvc.CreateAccessCode(ctx, admin, user.NewAccessCode{Code: "PROFE-2024", AccessLevelID: teacherLevel})
	require.NoError(t, err)
	_, err = e.usrSvc.CreateAccessCode(ctx, admin, user.NewAccessCode{Code: "VIEJO", AccessLevelID: teacherLevel, IsActive: &inactive})
	require.NoError(t, err)

	body := func(email, code, pwd string) []byte {
		return marchallObj(t, user.Registration{
			Email:           email,
			FirstName:       "Lupita",
			LastName:        "Perez",
			AccessCode:      code,
			Password:        pwd,
			PasswordConfirm: pwd,
		})
	}
	path := "/api/auth/register"

	tests := []httpTest{
		{
			name: "unknown access code", method: http.MethodPost, path: path,
			body:     body("lupita@test.mx", "NADA", testutil.Password),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"access_code": "invalid access code"}`),
		},
		{
			name: "inactive access code", method: http.MethodPost, path: path,
			body:     body("lupita@test.mx", "VIEJO", testutil.Password),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"access_code": "access code is inactive"}`),
		},
		{
			name: "weak password", method: http.MethodPost, path: path,
			body:     body("lupita@test.mx", "PROFE-2024", "12345678"),
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "malformed payload", method: http.MethodPost, path: path,
			body: []byte(`{"email": 12`), wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "duplicate email", method: http.MethodPost, path: path,
			body:     body("admin@test.mx", "PROFE-2024", testutil.Password),
			wantCode: http.StatusConflict, wantData: []byte(`{"email": "a user with this email already exists"}`),
		},
		{
			name: "valid", method: http.MethodPost, path: path,
			body: body("lupita@test.mx", "PROFE-2024", testutil.Password), wantCode: http.StatusCreated,
		},
		{
			name: "access code already used", method: http.MethodPost, path: path,
			body:     body("otra@test.mx", "PROFE-2024", testutil.Password),
			wantCode: http.StatusConflict, wantData: []byte(`{"access_code": "access code has already been used"}`),
		},
	}
	e.run(t, tests)

	usr, err := e.usrSvc.GetByEmail(ctx, "lupita@test.mx")
	require.NoError(t, err)
	assert.Equal(t, teacherLevel, usr.AccessLevelID, "registered users get the level of their access code")
	assert.True(t, usr.AccessCodeID.Valid)
	assert.True(t, usr.IsActive)
}

func Test_userApi_login(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	e.createUser(t, "baja@test.mx", catalog.LevelTeacher, false)

	creds := func(email, pwd string) []byte {
		return marchallObj(t, user.Credentials{Email: email, Password: pwd})
	}
	path := "/api/auth/login"
	invalidCreds := marchallObj(t, httpErr{Error: user.ErrInvalidCredentials.Error()})

	tests := []httpTest{
		{name: "missing fields", method: http.MethodPost, path: path, body: []byte(`{}`), wantCode: http.StatusUnprocessableEntity},
		{
			name: "unknown email", method: http.MethodPost, path: path, body: creds("nadie@test.mx", testutil.Password),
			wantCode: http.StatusUnauthorized, wantData: invalidCreds,
		},
		{
			name: "wrong password", method: http.MethodPost, path: path, body: creds("tere@test.mx", "Incorrecta#2024"),
			wantCode: http.StatusUnauthorized, wantData: invalidCreds,
		},
		{
			name: "inactive account", method: http.MethodPost, path: path, body: creds("baja@test.mx", testutil.Password),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: user.ErrAccountDeactivated.Error()}),
		},
	}
	e.run(t, tests)

	t.Run("valid", func(t *testing.T) {
		rec := e.do(http.MethodPost, path, "", marchallObj(t, map[string]interface{}{
			"email": " TERE@test.mx ", "password": testutil.Password, "imei": "356938035643809",
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp TokenResponse
		decode(t, rec, &resp)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, int64(e.conf.Server.JWTExpirationDelta.Seconds()), resp.ExpiresIn)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, teacher.ID, resp.User.ID)
		assert.True(t, resp.User.LastLogin.Valid)

		// the access token opens protected routes
		rec = e.do(http.MethodGet, "/api/auth/me", resp.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var me user.User
		decode(t, rec, &me)
		assert.Equal(t, "tere@test.mx", me.Email)
		assert.Equal(t, catalog.LevelTeacher, me.AccessLevel)

		rec = e.do(http.MethodGet, "/api/auth/me/devices", resp.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var devices []user.Device
		decode(t, rec, &devices)
		if assert.Len(t, devices, 1) {
			assert.Equal(t, "356938035643809", devices[0].IMEI)
		}
	})
}

func TestProtectedRoutes(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	inactive := e.createUser(t, "baja@test.mx", catalog.LevelTeacher, true)
	token := e.getToken(t, teacher)
	inactiveToken := e.getToken(t, inactive)

	_, err := e.usrSvc.Update(context.Background(), inactive, user.UpdateUser{IsActive: new(bool)})
	require.NoError(t, err)

	sign := func(claims jwt.Claims, key string) string {
		ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return ss
	}
	expired := sign(&Claims{StandardClaims: jwt.StandardClaims{
		Subject:   strconv.FormatInt(teacher.ID, 10),
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}}, e.conf.SecretKey)
	forged := sign(&Claims{StandardClaims: jwt.StandardClaims{
		Subject:   strconv.FormatInt(teacher.ID, 10),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}}, "not-the-secret")
	ghost := sign(&Claims{StandardClaims: jwt.StandardClaims{
		Subject:   "999",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}}, e.conf.SecretKey)
	invalidJWT := marchallObj(t, httpErr{Error: "invalid or expired jwt"})

	tests := []httpTest{
		{name: "missing token", path: "/api/schools", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "expired token", path: "/api/schools", token: expired, wantCode: http.StatusUnauthorized, wantData: invalidJWT},
		{name: "forged token", path: "/api/schools", token: forged, wantCode: http.StatusUnauthorized, wantData: invalidJWT},
		{name: "garbage token", path: "/api/schools", token: "abc.def.ghi", wantCode: http.StatusUnauthorized, wantData: invalidJWT},
		{name: "unknown user", path: "/api/schools", token: ghost, wantCode: http.StatusUnauthorized},
		{
			name: "deactivated user", path: "/api/schools", token: inactiveToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: user.ErrAccountDeactivated.Error()}),
		},
		{name: "valid token", path: "/api/schools", token: token, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "admin only", path: "/api/control/users", token: token, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"})},
	}
	e.run(t, tests)
}

func Test_userApi_refresh(t *testing.T) {
	e := setup(t)
	e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)

	login := func() TokenResponse {
		rec := e.do(http.MethodPost, "/api/auth/login", "", marchallObj(t, user.Credentials{
			Email: "tere@test.mx", Password: testutil.Password,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp TokenResponse
		decode(t, rec, &resp)
		return resp
	}
	refresh := func(token string) *TokenResponse {
		rec := e.do(http.MethodPost, "/api/auth/refresh", "", marchallObj(t, RefreshRequest{RefreshToken: token}))
		if rec.Code != http.StatusOK {
			assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
			return nil
		}
		var resp TokenResponse
		decode(t, rec, &resp)
		return &resp
	}

	sess := login()
	rotated := refresh(sess.RefreshToken)
	require.NotNil(t, rotated)
	assert.NotEqual(t, sess.RefreshToken, rotated.RefreshToken)
	assert.NotEmpty(t, rotated.AccessToken)

	assert.Nil(t, refresh(sess.RefreshToken), "the old refresh token must be revoked")
	assert.Nil(t, refresh("unknown"))

	// logout revokes the refresh token
	rec := e.do(http.MethodPost, "/api/auth/logout", rotated.AccessToken, marchallObj(t, RefreshRequest{RefreshToken: rotated.RefreshToken}))
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Nil(t, refresh(rotated.RefreshToken))
}

func Test_userApi_updateMe(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	token := e.getToken(t, teacher)
	path := "/api/auth/me"

	tests := []httpTest{
		{
			name: "wrong current password", method: http.MethodPut, path: path, token: token,
			body: marchallObj(t, user.UpdateProfile{
				CurrentPassword: "Incorrecta#2024", Password: "Pizarron#2025y", PasswordConfirm: "Pizarron#2025y",
			}),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"current_password": "invalid password"}`),
		},
		{
			name: "password confirmation mismatch", method: http.MethodPut, path: path, token: token,
			body: marchallObj(t, user.UpdateProfile{
				CurrentPassword: testutil.Password, Password: "Pizarron#2025y", PasswordConfirm: "Pizarron#2025z",
			}),
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "valid", method: http.MethodPut, path: path, token: token,
			body: marchallObj(t, user.UpdateProfile{
				FirstName: "Teresa", CurrentPassword: testutil.Password, Password: "Pizarron#2025y", PasswordConfirm: "Pizarron#2025y",
			}),
			wantCode: http.StatusOK,
		},
	}
	e.run(t, tests)

	usr, err := e.usrSvc.GetByID(context.Background(), teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, "Teresa", usr.FirstName)
	assert.NoError(t, usr.CheckPassword("Pizarron#2025y"))
}

func Test_userApi_passwordReset(t *testing.T) {
	e := setup(t)
	e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	path := "/api/auth/password-reset"

	for _, email := range []string{"tere@test.mx", "nadie@test.mx"} {
		rec := e.do(http.MethodPost, path, "", marchallObj(t, PasswordResetRequest{Email: email}))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	// only existing users get an email
	sent := e.mailSvc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "tere@test.mx", sent[0].To[0].Address)
	}

	rec := e.do(http.MethodPost, "/api/auth/password-reset-confirm", "", marchallObj(t, user.ResetUserPassword{
		Token: "bad-token", UID: "MQ", Password: "Pizarron#2025y", PasswordConfirm: "Pizarron#2025y",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}
