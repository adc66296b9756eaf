package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/escolar/apps/api/echo"
	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/grading"
	"github.com/trezcool/escolar/core/school"
	"github.com/trezcool/escolar/core/student"
	"github.com/trezcool/escolar/core/user"
	emailsvc "github.com/trezcool/escolar/services/email"
	logsvc "github.com/trezcool/escolar/services/logger"
	sqlxrepos "github.com/trezcool/escolar/storage/database/sqlx"
	testutil "github.com/trezcool/escolar/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

// env is a running API backed by a fresh SQLite database.
type env struct {
	app     *Server
	db      *sqlx.DB
	conf    *core.Config
	mailSvc *emailsvc.ConsoleServiceMock

	usrRepo user.Repository
	schRepo school.Repository
	cycRepo cycle.Repository
	stRepo  student.Repository

	usrSvc *user.Service
}

func setup(t *testing.T) env {
	t.Helper()

	db, conf := testutil.PrepareDB(t)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	e := env{
		db:      db,
		conf:    conf,
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
		usrRepo: sqlxrepos.NewUserRepository(db),
		schRepo: sqlxrepos.NewSchoolRepository(db),
		cycRepo: sqlxrepos.NewCycleRepository(db),
		stRepo:  sqlxrepos.NewStudentRepository(db),
	}

	// set up services
	catSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db))
	e.usrSvc = user.NewService(db, e.usrRepo, catSvc, e.mailSvc, conf)
	schSvc := school.NewService(e.schRepo, catSvc)
	cycSvc := cycle.NewService(db, e.cycRepo, catSvc, schSvc, e.usrSvc)
	stSvc := student.NewService(db, e.stRepo, cycSvc)
	gradeSvc := grading.NewService(db, sqlxrepos.NewGradingRepository(db), cycSvc, stSvc)

	// set up server
	validate, translator := testutil.NewValidator()
	e.app = NewServer(
		Options{
			DisableReqLogs: true,
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
		},
		Deps{
			CatalogSvc: catSvc,
			UserSvc:    e.usrSvc,
			SchoolSvc:  schSvc,
			CycleSvc:   cycSvc,
			StudentSvc: stSvc,
			GradingSvc: gradeSvc,
		},
	)
	return e
}

// createUser creates a user and reloads it so that its access level name is set.
func (e env) createUser(t *testing.T, email, level string, isActive bool) user.User {
	t.Helper()
	usr := testutil.CreateUser(t, e.db, e.usrRepo, email, level, isActive)
	usr, err := e.usrSvc.GetByID(context.Background(), usr.ID)
	require.NoError(t, err)
	return usr
}

func (e env) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(e.conf, usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (e env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.app.ServeHTTP(rec, req)
	return rec
}

func (e env) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := e.do(method, tt.path, tt.token, tt.body)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else {
				assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

// decode unmarshals the body of a response into dst.
func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
