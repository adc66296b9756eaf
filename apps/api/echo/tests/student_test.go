package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/student"
	testutil "github.com/trezcool/escolar/tests"
)

func Test_studentApi_create(t *testing.T) {
	e := setup(t)
	admin := e.createUser(t, "admin@test.mx", catalog.LevelAdmin, true)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	other := e.createUser(t, "otro@test.mx", catalog.LevelTeacher, true)
	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")
	cyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Tercero A")
	testutil.CreateStudent(t, e.stRepo, cyc, "GODE561231HDFRRN09", "Diego", true)
	token := e.getToken(t, teacher)

	body := func(curp string, cycleID int64) []byte {
		return []byte(fmt.Sprintf(
			`{"curp": %q, "first_name": "Maria", "last_name": "Martinez", "birth_date": "2016-01-01", "school_cycle_id": %d}`,
			curp, cycleID,
		))
	}
	path := "/api/students"

	tests := []httpTest{
		{
			name: "bad curp", method: http.MethodPost, path: path, token: token,
			body:     body("MAPL700101ZJCRRS05", cyc.ID),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"curp": "must be a valid CURP (18 characters)"}`),
		},
		{
			name: "unknown cycle", method: http.MethodPost, path: path, token: token,
			body:     body("MAPL700101MJCRRS05", 999),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"school_cycle_id": "does not exist"}`),
		},
		{
			name: "someone else's cycle", method: http.MethodPost, path: path, token: e.getToken(t, other),
			body: body("MAPL700101MJCRRS05", cyc.ID), wantCode: http.StatusForbidden,
		},
		{
			name: "duplicate curp", method: http.MethodPost, path: path, token: token,
			body:     body("gode561231hdfrrn09", cyc.ID),
			wantCode: http.StatusConflict, wantData: []byte(`{"curp": "student with this curp already exists"}`),
		},
		{
			name: "valid", method: http.MethodPost, path: path, token: token,
			body: body(" mapl700101mjcrrs05 ", cyc.ID), wantCode: http.StatusCreated,
		},
		{
			name: "admin enrolling in a teacher's cycle", method: http.MethodPost, path: path, token: e.getToken(t, admin),
			body: body("RUAA800202HNLZNR01", cyc.ID), wantCode: http.StatusCreated,
		},
	}
	e.run(t, tests)

	rec := e.do(http.MethodGet, path+"?search=mapl&ordering=curp", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var students []student.Student
	decode(t, rec, &students)
	if assert.Len(t, students, 1) {
		st := students[0]
		assert.Equal(t, "MAPL700101MJCRRS05", st.CURP)
		assert.Equal(t, teacher.ID, st.TeacherID, "students belong to the cycle's teacher")
		assert.Equal(t, "2016-01-01", st.BirthDate.String())
		assert.True(t, st.IsActive)
	}

	rec = e.do(http.MethodGet, fmt.Sprintf("%s?teacher_id=%d", path, teacher.ID), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &students)
	assert.Len(t, students, 3)
}

func Test_studentApi_updateAndDelete(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	other := e.createUser(t, "otro@test.mx", catalog.LevelTeacher, true)
	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")
	cyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Tercero A")
	nextCyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Cuarto A")
	theirCyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, other.ID, "Cuarto B")
	diego := testutil.CreateStudent(t, e.stRepo, cyc, "GODE561231HDFRRN09", "Diego", true)
	maria := testutil.CreateStudent(t, e.stRepo, cyc, "MAPL700101MJCRRS05", "Maria", true)
	token := e.getToken(t, teacher)
	diegoPath := fmt.Sprintf("/api/students/%d", diego.ID)
	mariaPath := fmt.Sprintf("/api/students/%d", maria.ID)

	// maria has an attendance in one of the partials of cyc
	partial := testutil.CreatePartial(t, e.cycRepo, cyc.ID, "Primero")
	rec := e.do(http.MethodPost, "/api/attendances", token, []byte(fmt.Sprintf(
		`{"student_id": %d, "partial_id": %d, "attendance_date": "2024-09-02", "status": "present"}`, maria.ID, partial.ID,
	)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []httpTest{
		{name: "retrieve", path: diegoPath, token: e.getToken(t, other), wantCode: http.StatusOK},
		{name: "retrieve unknown", path: "/api/students/999", token: token, wantCode: http.StatusNotFound},
		{
			name: "update someone else's", method: http.MethodPut, path: diegoPath, token: e.getToken(t, other),
			body: []byte(`{"first_name": "Juan"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "move to someone else's cycle", method: http.MethodPut, path: diegoPath, token: token,
			body: []byte(fmt.Sprintf(`{"school_cycle_id": %d}`, theirCyc.ID)), wantCode: http.StatusForbidden,
		},
		{
			name: "take a curp in use", method: http.MethodPut, path: diegoPath, token: token,
			body:     marchallObj(t, student.UpdateStudent{CURP: maria.CURP}),
			wantCode: http.StatusConflict, wantData: []byte(`{"curp": "student with this curp already exists"}`),
		},
		{
			name: "move a student with attendances", method: http.MethodPut, path: mariaPath, token: token,
			body:     []byte(fmt.Sprintf(`{"school_cycle_id": %d, "first_name": "Mariana"}`, nextCyc.ID)),
			wantCode: http.StatusConflict,
			wantData: []byte(`{"school_cycle_id": "a student with attendances or works cannot change school cycle"}`),
		},
		{
			name: "update a student with attendances in place", method: http.MethodPut, path: mariaPath, token: token,
			body: []byte(fmt.Sprintf(`{"school_cycle_id": %d, "is_active": false}`, cyc.ID)), wantCode: http.StatusOK,
		},
		{
			name: "move to another own cycle", method: http.MethodPut, path: diegoPath, token: token,
			body: []byte(fmt.Sprintf(`{"school_cycle_id": %d, "is_active": false}`, nextCyc.ID)), wantCode: http.StatusOK,
		},
		{
			name: "delete someone else's", method: http.MethodDelete, path: diegoPath, token: e.getToken(t, other),
			wantCode: http.StatusForbidden,
		},
	}
	e.run(t, tests)

	st, err := e.stRepo.GetStudentByID(context.Background(), diego.ID)
	require.NoError(t, err)
	assert.Equal(t, nextCyc.ID, st.SchoolCycleID)
	assert.False(t, st.IsActive)
	assert.Equal(t, "Diego", st.FirstName)

	st, err = e.stRepo.GetStudentByID(context.Background(), maria.ID)
	require.NoError(t, err)
	assert.Equal(t, cyc.ID, st.SchoolCycleID)
	assert.Equal(t, "Maria", st.FirstName)
	assert.False(t, st.IsActive)

	rec = e.do(http.MethodDelete, diegoPath, token)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = e.do(http.MethodGet, diegoPath, token)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func Test_studentApi_attendances(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	other := e.createUser(t, "otro@test.mx", catalog.LevelTeacher, true)
	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")
	cyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Tercero A")
	otherCyc := testutil.CreateCycle(t, e.cycRepo, sch.ID, teacher.ID, "Cuarto A")
	diego := testutil.CreateStudent(t, e.stRepo, cyc, "GODE561231HDFRRN09", "Diego", true)
	partial := testutil.CreatePartial(t, e.cycRepo, cyc.ID, "Primero")
	foreignPartial := testutil.CreatePartial(t, e.cycRepo, otherCyc.ID, "Primero")
	token := e.getToken(t, teacher)
	path := "/api/attendances"

	body := func(studentID, partialID int64, date, status string) []byte {
		return []byte(fmt.Sprintf(
			`{"student_id": %d, "partial_id": %d, "attendance_date": %q, "status": %q}`,
			studentID, partialID, date, status,
		))
	}

	tests := []httpTest{
		{
			name: "bad status", method: http.MethodPost, path: path, token: token,
			body: body(diego.ID, partial.ID, "2024-09-02", "holiday"), wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "missing date", method: http.MethodPost, path: path, token: token,
			body:     []byte(fmt.Sprintf(`{"student_id": %d, "partial_id": %d, "status": "present"}`, diego.ID, partial.ID)),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"attendance_date": "this field is required"}`),
		},
		{
			name: "unknown student", method: http.MethodPost, path: path, token: token,
			body:     body(999, partial.ID, "2024-09-02", "present"),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"student_id": "does not exist"}`),
		},
		{
			name: "unknown partial", method: http.MethodPost, path: path, token: token,
			body:     body(diego.ID, 999, "2024-09-02", "present"),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"partial_id": "does not exist"}`),
		},
		{
			name: "partial of another cycle", method: http.MethodPost, path: path, token: token,
			body:     body(diego.ID, foreignPartial.ID, "2024-09-02", "present"),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"partial_id": "partial does not belong to the student's school cycle"}`),
		},
		{
			name: "someone else's student", method: http.MethodPost, path: path, token: e.getToken(t, other),
			body: body(diego.ID, partial.ID, "2024-09-02", "present"), wantCode: http.StatusForbidden,
		},
		{
			name: "valid", method: http.MethodPost, path: path, token: token,
			body: body(diego.ID, partial.ID, "2024-09-02", " PRESENT "), wantCode: http.StatusCreated,
		},
		{
			name: "late", method: http.MethodPost, path: path, token: token,
			body: body(diego.ID, partial.ID, "2024-09-03", "late"), wantCode: http.StatusCreated,
		},
		{
			name: "same day twice", method: http.MethodPost, path: path, token: token,
			body: body(diego.ID, partial.ID, "2024-09-02", "absent"), wantCode: http.StatusConflict,
		},
	}
	e.run(t, tests)

	list := func(t *testing.T, query string) []student.Attendance {
		rec := e.do(http.MethodGet, path+query, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var atts []student.Attendance
		decode(t, rec, &atts)
		return atts
	}
	all := list(t, fmt.Sprintf("?student_id=%d", diego.ID))
	require.Len(t, all, 2)
	assert.Equal(t, "2024-09-03", all[0].AttendanceDate.String(), "latest first")
	assert.Equal(t, cyc.ID, all[0].SchoolCycleID)

	assert.Len(t, list(t, "?status=late"), 1)
	assert.Len(t, list(t, "?date_from=2024-09-03"), 1)
	assert.Len(t, list(t, "?date_to=2024-09-02"), 1)
	assert.Len(t, list(t, fmt.Sprintf("?school_cycle_id=%d", otherCyc.ID)), 0)

	attPath := fmt.Sprintf("%s/%d", path, all[1].ID)
	tests = []httpTest{
		{name: "retrieve", path: attPath, token: token, wantCode: http.StatusOK},
		{
			name: "update someone else's", method: http.MethodPut, path: attPath, token: e.getToken(t, other),
			body: []byte(`{"status": "absent"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "update bad status", method: http.MethodPut, path: attPath, token: token,
			body: []byte(`{"status": "sick"}`), wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "update", method: http.MethodPut, path: attPath, token: token,
			body: []byte(`{"status": "absent", "notes": "fever"}`), wantCode: http.StatusOK,
		},
		{name: "delete", method: http.MethodDelete, path: attPath, token: token, wantCode: http.StatusNoContent},
		{name: "retrieve deleted", path: attPath, token: token, wantCode: http.StatusNotFound},
		{name: "bad date filter", path: path + "?date_from=yesterday", token: token, wantCode: http.StatusUnprocessableEntity},
	}
	e.run(t, tests)
}
