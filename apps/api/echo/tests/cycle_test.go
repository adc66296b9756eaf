package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/student"
	testutil "github.com/trezcool/escolar/tests"
)

func Test_cycleApi_create(t *testing.T) {
	e := setup(t)
	admin := e.createUser(t, "admin@test.mx", catalog.LevelAdmin, true)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	other := e.createUser(t, "otro@test.mx", catalog.LevelTeacher, true)
	pupil := e.createUser(t, "alumno@test.mx", catalog.LevelStudent, true)
	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")

	body := func(schoolID, teacherID int64) []byte {
		return marchallObj(t, cycle.NewCycle{SchoolID: schoolID, TeacherID: teacherID, Name: "  Ciclo 2024-2025 "})
	}
	path := "/api/cycles"

	tests := []httpTest{
		{
			name: "as student", method: http.MethodPost, path: path, token: e.getToken(t, pupil),
			body: body(sch.ID, 0), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown school", method: http.MethodPost, path: path, token: e.getToken(t, teacher),
			body:     body(999, 0),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"school_id": "does not exist"}`),
		},
		{
			name: "missing name", method: http.MethodPost, path: path, token: e.getToken(t, teacher),
			body:     []byte(fmt.Sprintf(`{"school_id": %d}`, sch.ID)),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"name": "this field is required"}`),
		},
		{
			name: "admin assigning a non teacher", method: http.MethodPost, path: path, token: e.getToken(t, admin),
			body:     body(sch.ID, pupil.ID),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"teacher_id": "user is not a teacher"}`),
		},
		{
			name: "admin assigning an unknown teacher", method: http.MethodPost, path: path, token: e.getToken(t, admin),
			body:     body(sch.ID, 999),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"teacher_id": "does not exist"}`),
		},
	}
	e.run(t, tests)

	t.Run("teachers own the cycles they create", func(t *testing.T) {
		rec := e.do(http.MethodPost, path, e.getToken(t, teacher), body(sch.ID, other.ID))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var cyc cycle.SchoolCycle
		decode(t, rec, &cyc)
		assert.Equal(t, teacher.ID, cyc.TeacherID)
		assert.Equal(t, "Ciclo 2024-2025", cyc.Name)
		assert.True(t, cyc.IsActive)
	})

	t.Run("admins may pick the teacher", func(t *testing.T) {
		rec := e.do(http.MethodPost, path, e.getToken(t, admin), body(sch.ID, other.ID))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var cyc cycle.SchoolCycle
		decode(t, rec, &cyc)
		assert.Equal(t, other.ID, cyc.TeacherID)
	})
}

func Test_cycleApi_queryAndOwnership(t *testing.T) {
	e := setup(t)
	admin := e.createUser(t, "admin@test.mx", catalog.LevelAdmin, true)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	other := e.createUser(t, "otro@test.mx", catalog.LevelTeacher, true)
	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")

	mine := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Tercero A")
	theirs := testutil.CreateCycle(t, e.cycRepo, sch.ID, other.ID, "Cuarto B")
	teacherToken := e.getToken(t, teacher)
	minePath := fmt.Sprintf("/api/cycles/%d", mine.ID)
	theirsPath := fmt.Sprintf("/api/cycles/%d", theirs.ID)

	listIDs := func(t *testing.T, path string) []int64 {
		rec := e.do(http.MethodGet, path, teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var cycles []cycle.SchoolCycle
		decode(t, rec, &cycles)
		ids := make([]int64, 0, len(cycles))
		for _, c := range cycles {
			ids = append(ids, c.ID)
		}
		return ids
	}
	assert.ElementsMatch(t, []int64{mine.ID, theirs.ID}, listIDs(t, "/api/cycles"))
	assert.Equal(t, []int64{mine.ID}, listIDs(t, "/api/cycles/mine"))
	assert.Equal(t, []int64{theirs.ID}, listIDs(t, fmt.Sprintf("/api/cycles?teacher_id=%d", other.ID)))
	assert.Equal(t, []int64{theirs.ID}, listIDs(t, "/api/cycles?search=cuarto"))

	tests := []httpTest{
		{name: "retrieve someone else's", path: theirsPath, token: teacherToken, wantCode: http.StatusOK},
		{name: "retrieve unknown", path: "/api/cycles/999", token: teacherToken, wantCode: http.StatusNotFound},
		{
			name: "update someone else's", method: http.MethodPut, path: theirsPath, token: teacherToken,
			body:     []byte(`{"name": "Mio"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: core.ErrPermissionDenied.Error()}),
		},
		{
			name: "update unknown school", method: http.MethodPut, path: minePath, token: teacherToken,
			body:     []byte(`{"school_id": 999}`),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"school_id": "does not exist"}`),
		},
		{
			name: "update own", method: http.MethodPut, path: minePath, token: teacherToken,
			body: []byte(`{"name": "Tercero C", "is_active": false}`), wantCode: http.StatusOK,
		},
		{
			name: "update as admin", method: http.MethodPut, path: theirsPath, token: e.getToken(t, admin),
			body: []byte(`{"group_name": "C"}`), wantCode: http.StatusOK,
		},
		{
			name: "delete someone else's", method: http.MethodDelete, path: theirsPath, token: teacherToken,
			wantCode: http.StatusForbidden,
		},
	}
	e.run(t, tests)

	cyc, err := e.cycRepo.GetCycleByID(context.Background(), mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tercero C", cyc.Name)
	assert.False(t, cyc.IsActive)

	cyc, err = e.cycRepo.GetCycleByID(context.Background(), theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", cyc.GroupName.String)
	assert.Equal(t, "Cuarto B", cyc.Name)
}

func Test_cycleApi_partials(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	other := e.createUser(t, "otro@test.mx", catalog.LevelTeacher, true)
	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")
	cyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Tercero A")
	token := e.getToken(t, teacher)
	path := fmt.Sprintf("/api/cycles/%d/partials", cyc.ID)

	tests := []httpTest{
		{
			name: "someone else's cycle", method: http.MethodPost, path: path, token: e.getToken(t, other),
			body: []byte(`{"partials": [{"name": "Primero"}]}`), wantCode: http.StatusForbidden,
		},
		{
			name: "no partials", method: http.MethodPost, path: path, token: token,
			body: []byte(`{"partials": []}`), wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "bad date", method: http.MethodPost, path: path, token: token,
			body: []byte(`{"partials": [{"name": "Primero", "start_date": "01/09/2024"}]}`), wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "end before start", method: http.MethodPost, path: path, token: token,
			body: []byte(`{"partials": [
				{"name": "Primero", "start_date": "2024-09-01", "end_date": "2024-11-30"},
				{"name": "Segundo", "start_date": "2024-12-01", "end_date": "2024-11-30"}
			]}`),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"end_date": "end_date must be on or after start_date"}`),
		},
		{
			name: "valid", method: http.MethodPost, path: path, token: token,
			body: []byte(`{"partials": [
				{"name": "Primero", "start_date": "2024-09-01", "end_date": "2024-11-30"},
				{"name": "Segundo", "start_date": "2024-12-01", "end_date": "2025-03-15"},
				{"name": " Tercero "}
			]}`),
			wantCode: http.StatusCreated,
		},
	}
	e.run(t, tests)

	rec := e.do(http.MethodGet, path, e.getToken(t, other))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var partials []cycle.Partial
	decode(t, rec, &partials)
	require.Len(t, partials, 3, "partials are created all at once or not at all")
	byName := make(map[string]cycle.Partial, len(partials))
	for _, p := range partials {
		byName[p.Name] = p
	}
	assert.Equal(t, "2024-09-01", byName["Primero"].StartDate.String())
	assert.False(t, byName["Tercero"].StartDate.Valid)

	partialPath := fmt.Sprintf("/api/partials/%d", byName["Segundo"].ID)
	tests = []httpTest{
		{name: "retrieve", path: partialPath, token: e.getToken(t, other), wantCode: http.StatusOK},
		{
			name: "update someone else's", method: http.MethodPut, path: partialPath, token: e.getToken(t, other),
			body: []byte(`{"name": "Mio"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "update moving the end before the start", method: http.MethodPut, path: partialPath, token: token,
			body:     []byte(`{"end_date": "2024-11-01"}`),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"end_date": "end_date must be on or after start_date"}`),
		},
		{
			name: "update", method: http.MethodPut, path: partialPath, token: token,
			body: []byte(`{"name": "Segundo trimestre", "end_date": "2025-03-31"}`), wantCode: http.StatusOK,
		},
		{name: "delete", method: http.MethodDelete, path: partialPath, token: token, wantCode: http.StatusNoContent},
		{name: "retrieve deleted", path: partialPath, token: token, wantCode: http.StatusNotFound},
	}
	e.run(t, tests)
}

func Test_cycleApi_formativeFields(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	other := e.createUser(t, "otro@test.mx", catalog.LevelTeacher, true)
	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")
	cyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Tercero A")
	token := e.getToken(t, teacher)
	path := "/api/formative-fields"

	body := func(cycleID int64, name string) []byte {
		return marchallObj(t, cycle.NewFormativeField{SchoolCycleID: cycleID, Name: name})
	}

	tests := []httpTest{
		{
			name: "unknown cycle", method: http.MethodPost, path: path, token: token,
			body:     body(999, "Lenguajes"),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"school_cycle_id": "does not exist"}`),
		},
		{
			name: "someone else's cycle", method: http.MethodPost, path: path, token: e.getToken(t, other),
			body: body(cyc.ID, "Lenguajes"), wantCode: http.StatusForbidden,
		},
		{name: "valid", method: http.MethodPost, path: path, token: token, body: body(cyc.ID, "Lenguajes"), wantCode: http.StatusCreated},
		{name: "second", method: http.MethodPost, path: path, token: token, body: body(cyc.ID, "De lo humano y lo comunitario"), wantCode: http.StatusCreated},
	}
	e.run(t, tests)

	rec := e.do(http.MethodGet, fmt.Sprintf("/api/cycles/%d/formative-fields", cyc.ID), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fields []cycle.FormativeField
	decode(t, rec, &fields)
	require.Len(t, fields, 2)

	fieldPath := fmt.Sprintf("%s/%d", path, fields[0].ID)
	tests = []httpTest{
		{name: "retrieve", path: fieldPath, token: e.getToken(t, other), wantCode: http.StatusOK},
		{
			name: "update someone else's", method: http.MethodPut, path: fieldPath, token: e.getToken(t, other),
			body: []byte(`{"code": "LEN"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "update", method: http.MethodPut, path: fieldPath, token: token,
			body: []byte(`{"code": "LEN"}`), wantCode: http.StatusOK,
		},
		{name: "delete", method: http.MethodDelete, path: fieldPath, token: token, wantCode: http.StatusNoContent},
		{name: "retrieve deleted", path: fieldPath, token: token, wantCode: http.StatusNotFound},
	}
	e.run(t, tests)
}

func Test_cycleApi_studentsAndDelete(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")
	cyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Tercero A")
	otherCyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Cuarto A")
	token := e.getToken(t, teacher)

	testutil.CreateStudent(t, e.stRepo, cyc, "GODE561231HDFRRN09", "Diego", true)
	testutil.CreateStudent(t, e.stRepo, cyc, "MAPL700101MJCRRS05", "Maria", false)
	testutil.CreateStudent(t, e.stRepo, otherCyc, "RUAA800202HNLZNR01", "Ana", true)
	testutil.CreatePartial(t, e.cycRepo, cyc.ID, "Primero")
	testutil.CreateFormativeField(t, e.cycRepo, cyc.ID, "Lenguajes")

	listNames := func(t *testing.T, query string) []string {
		rec := e.do(http.MethodGet, fmt.Sprintf("/api/cycles/%d/students%s", cyc.ID, query), token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var students []student.Student
		decode(t, rec, &students)
		names := make([]string, 0, len(students))
		for _, st := range students {
			names = append(names, st.FirstName)
		}
		return names
	}
	assert.ElementsMatch(t, []string{"Diego", "Maria"}, listNames(t, ""))
	assert.Equal(t, []string{"Diego"}, listNames(t, "?is_active=true"))

	// deleting a cycle takes everything held in it along
	rec := e.do(http.MethodDelete, fmt.Sprintf("/api/cycles/%d", cyc.ID), token)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = e.do(http.MethodGet, fmt.Sprintf("/api/cycles/%d", cyc.ID), token)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = e.do(http.MethodGet, fmt.Sprintf("/api/students?school_cycle_id=%d", otherCyc.ID), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var left []student.Student
	decode(t, rec, &left)
	assert.Len(t, left, 1)
}
