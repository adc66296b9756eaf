package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/grading"
	"github.com/trezcool/escolar/core/student"
	"github.com/trezcool/escolar/core/user"
	testutil "github.com/trezcool/escolar/tests"
)

// gradingFixture is a cycle with two active students, one inactive student, a partial and a formative field.
type gradingFixture struct {
	env
	teacher, other user.User
	token          string
	cyc            cycle.SchoolCycle
	partial        cycle.Partial
	field          cycle.FormativeField
	diego, maria   student.Student
	inactive       student.Student
}

func newGradingFixture(t *testing.T) gradingFixture {
	e := setup(t)
	f := gradingFixture{env: e}
	f.teacher = e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	f.other = e.createUser(t, "otro@test.mx", catalog.LevelTeacher, true)
	f.token = e.getToken(t, f.teacher)

	sch := testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")
	f.cyc = testutil.CreateCycle(t, e.cycRepo, sch.ID, f.teacher.ID, "Tercero A")
	f.partial = testutil.CreatePartial(t, e.cycRepo, f.cyc.ID, "Primero")
	f.field = testutil.CreateFormativeField(t, e.cycRepo, f.cyc.ID, "Lenguajes")
	f.diego = testutil.CreateStudent(t, e.stRepo, f.cyc, "GODE561231HDFRRN09", "Diego", true)
	f.maria = testutil.CreateStudent(t, e.stRepo, f.cyc, "MAPL700101MJCRRS05", "Maria", true)
	f.inactive = testutil.CreateStudent(t, e.stRepo, f.cyc, "RUAA800202HNLZNR01", "Ana", false)
	return f
}

func (f gradingFixture) createWorkType(t *testing.T, token, name string) grading.WorkType {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/work-types", token, marchallObj(t, grading.NewWorkType{Name: name, EvaluationWeight: 40}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var wt grading.WorkType
	decode(t, rec, &wt)
	return wt
}

func Test_gradingApi_workTypes(t *testing.T) {
	f := newGradingFixture(t)
	otherToken := f.getToken(t, f.other)
	pupil := f.createUser(t, "alumno@test.mx", catalog.LevelStudent, true)

	mine := f.createWorkType(t, f.token, "Tareas")
	theirs := f.createWorkType(t, otherToken, "Tareas")
	assert.Equal(t, f.teacher.ID, mine.TeacherID)
	assert.Equal(t, 40.0, mine.EvaluationWeight)

	path := "/api/work-types"
	minePath := fmt.Sprintf("%s/%d", path, mine.ID)
	tests := []httpTest{
		{
			name: "as student", method: http.MethodPost, path: path, token: f.getToken(t, pupil),
			body: []byte(`{"name": "Examen"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "weight out of range", method: http.MethodPost, path: path, token: f.token,
			body: []byte(`{"name": "Examen", "evaluation_weight": 120}`), wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "duplicate name", method: http.MethodPost, path: path, token: f.token,
			body: []byte(`{"name": " Tareas "}`), wantCode: http.StatusConflict,
		},
		{name: "retrieve own", path: minePath, token: f.token, wantCode: http.StatusOK},
		{name: "retrieve someone else's", path: minePath, token: otherToken, wantCode: http.StatusForbidden},
		{
			name: "update someone else's", method: http.MethodPut, path: minePath, token: otherToken,
			body: []byte(`{"name": "Mio"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "update", method: http.MethodPut, path: minePath, token: f.token,
			body: []byte(`{"evaluation_weight": 33.333}`), wantCode: http.StatusOK,
		},
	}
	f.run(t, tests)

	rec := f.do(http.MethodGet, path, f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var listed []grading.WorkType
	decode(t, rec, &listed)
	if assert.Len(t, listed, 1, "teachers only see their own work types") {
		assert.Equal(t, mine.ID, listed[0].ID)
		assert.Equal(t, 33.33, listed[0].EvaluationWeight)
	}

	rec = f.do(http.MethodDelete, fmt.Sprintf("%s/%d", path, theirs.ID), f.token)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	rec = f.do(http.MethodDelete, fmt.Sprintf("%s/%d", path, theirs.ID), otherToken)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func Test_gradingApi_evaluations(t *testing.T) {
	f := newGradingFixture(t)
	mine := f.createWorkType(t, f.token, "Tareas")
	theirs := f.createWorkType(t, f.getToken(t, f.other), "Proyectos")

	otherCyc := testutil.CreateCycle(t, f.cycRepo, f.cyc.SchoolID, f.teacher.ID, "Cuarto A")
	foreignPartial := testutil.CreatePartial(t, f.cycRepo, otherCyc.ID, "Primero")

	body := func(fieldID, partialID, workTypeID int64) []byte {
		return marchallObj(t, grading.NewEvaluation{
			FormativeFieldID: fieldID, PartialID: partialID, WorkTypeID: workTypeID, EvaluationWeight: 25,
		})
	}
	path := "/api/work-type-evaluations"

	tests := []httpTest{
		{
			name: "unknown formative field", method: http.MethodPost, path: path, token: f.token,
			body:     body(999, f.partial.ID, mine.ID),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"formative_field_id": "does not exist"}`),
		},
		{
			name: "partial of another cycle", method: http.MethodPost, path: path, token: f.token,
			body:     body(f.field.ID, foreignPartial.ID, mine.ID),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"partial_id": "partial does not belong to the formative field's school cycle"}`),
		},
		{
			name: "work type of another teacher", method: http.MethodPost, path: path, token: f.token,
			body:     body(f.field.ID, f.partial.ID, theirs.ID),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"work_type_id": "work type does not belong to the cycle's teacher"}`),
		},
		{
			name: "someone else's cycle", method: http.MethodPost, path: path, token: f.getToken(t, f.other),
			body: body(f.field.ID, f.partial.ID, mine.ID), wantCode: http.StatusForbidden,
		},
		{
			name: "valid", method: http.MethodPost, path: path, token: f.token,
			body: body(f.field.ID, f.partial.ID, mine.ID), wantCode: http.StatusCreated,
		},
		{
			name: "duplicate", method: http.MethodPost, path: path, token: f.token,
			body: body(f.field.ID, f.partial.ID, mine.ID), wantCode: http.StatusConflict,
		},
	}
	f.run(t, tests)

	rec := f.do(http.MethodGet, fmt.Sprintf("%s?school_cycle_id=%d", path, f.cyc.ID), f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var evals []grading.Evaluation
	decode(t, rec, &evals)
	require.Len(t, evals, 1)
	assert.Equal(t, "Tareas", evals[0].WorkTypeName)
	assert.Equal(t, f.cyc.ID, evals[0].SchoolCycleID)

	evalPath := fmt.Sprintf("%s/%d", path, evals[0].ID)
	tests = []httpTest{
		{name: "retrieve", path: evalPath, token: f.getToken(t, f.other), wantCode: http.StatusOK},
		{
			name: "update someone else's", method: http.MethodPut, path: evalPath, token: f.getToken(t, f.other),
			body: []byte(`{"evaluation_weight": 50}`), wantCode: http.StatusForbidden,
		},
		{
			name: "move to a partial of another cycle", method: http.MethodPut, path: evalPath, token: f.token,
			body: []byte(fmt.Sprintf(`{"partial_id": %d}`, foreignPartial.ID)), wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "update", method: http.MethodPut, path: evalPath, token: f.token,
			body: []byte(`{"evaluation_weight": 50}`), wantCode: http.StatusOK,
		},
		{name: "delete", method: http.MethodDelete, path: evalPath, token: f.token, wantCode: http.StatusNoContent},
	}
	f.run(t, tests)
}

func Test_gradingApi_studentWorks(t *testing.T) {
	f := newGradingFixture(t)
	wt := f.createWorkType(t, f.token, "Tareas")
	otherToken := f.getToken(t, f.other)

	otherCyc := testutil.CreateCycle(t, f.cycRepo, f.cyc.SchoolID, f.teacher.ID, "Cuarto A")
	stranger := testutil.CreateStudent(t, f.stRepo, otherCyc, "HEGG560427MVZRRL04", "Luisa", true)

	body := func(studentID int64, grade string) []byte {
		return []byte(fmt.Sprintf(
			`{"student_id": %d, "formative_field_id": %d, "partial_id": %d, "work_type_id": %d, "name": "Tarea 1", "grade": %s, "work_date": "2024-09-10"}`,
			studentID, f.field.ID, f.partial.ID, wt.ID, grade,
		))
	}
	path := "/api/student-works"

	tests := []httpTest{
		{
			name: "grade out of range", method: http.MethodPost, path: path, token: f.token,
			body: body(f.diego.ID, "101"), wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "student of another cycle", method: http.MethodPost, path: path, token: f.token,
			body:     body(stranger.ID, "9"),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"student_id": "student does not belong to the formative field's school cycle"}`),
		},
		{
			name: "unknown student", method: http.MethodPost, path: path, token: f.token,
			body:     body(999, "9"),
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"student_id": "does not exist"}`),
		},
		{
			name: "someone else's cycle", method: http.MethodPost, path: path, token: otherToken,
			body: body(f.diego.ID, "9"), wantCode: http.StatusForbidden,
		},
		{
			name: "valid", method: http.MethodPost, path: path, token: f.token,
			body: body(f.diego.ID, "9.456"), wantCode: http.StatusCreated,
		},
		{
			name: "without grade", method: http.MethodPost, path: path, token: f.token,
			body: body(f.maria.ID, "null"), wantCode: http.StatusCreated,
		},
	}
	f.run(t, tests)

	// a graded student stays in the cycle of its works
	rec := f.do(http.MethodPut, fmt.Sprintf("/api/students/%d", f.maria.ID), f.token,
		[]byte(fmt.Sprintf(`{"school_cycle_id": %d}`, otherCyc.ID)))
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"school_cycle_id": "a student with attendances or works cannot change school cycle"}`, rec.Body.String())

	rec = f.do(http.MethodGet, fmt.Sprintf("%s?student_id=%d", path, f.diego.ID), f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var works []grading.StudentWork
	decode(t, rec, &works)
	require.Len(t, works, 1)
	sw := works[0]
	assert.Equal(t, 9.46, sw.Grade.Float64)
	assert.Equal(t, f.teacher.ID, sw.TeacherID)
	assert.Equal(t, "2024-09-10", sw.WorkDate.String())

	// other teachers see none of them
	rec = f.do(http.MethodGet, path, otherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &works)
	assert.Empty(t, works)

	workPath := fmt.Sprintf("%s/%d", path, sw.ID)
	tests = []httpTest{
		{name: "retrieve", path: workPath, token: f.token, wantCode: http.StatusOK},
		{name: "retrieve someone else's", path: workPath, token: otherToken, wantCode: http.StatusForbidden},
		{
			name: "update someone else's", method: http.MethodPut, path: workPath, token: otherToken,
			body: []byte(`{"grade": 10}`), wantCode: http.StatusForbidden,
		},
		{
			name: "update", method: http.MethodPut, path: workPath, token: f.token,
			body: []byte(`{"grade": 10}`), wantCode: http.StatusOK,
		},
		{name: "delete", method: http.MethodDelete, path: workPath, token: f.token, wantCode: http.StatusNoContent},
		{name: "retrieve deleted", path: workPath, token: f.token, wantCode: http.StatusNotFound},
	}
	f.run(t, tests)

	// work types in use cannot be deleted
	rec = f.do(http.MethodDelete, fmt.Sprintf("/api/work-types/%d", wt.ID), f.token)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func Test_gradingApi_gradeAll(t *testing.T) {
	f := newGradingFixture(t)
	wt := f.createWorkType(t, f.token, "Tareas")
	path := "/api/student-works/bulk"

	grades := func(entries ...grading.StudentGrade) []byte {
		return marchallObj(t, grading.BulkGrades{
			FormativeFieldID: f.field.ID,
			PartialID:        f.partial.ID,
			WorkTypeID:       wt.ID,
			Name:             "Examen parcial",
			Grades:           entries,
		})
	}
	grade := func(st student.Student, g float64) grading.StudentGrade {
		return grading.StudentGrade{StudentID: st.ID, Grade: null.Float64From(g)}
	}

	tests := []httpTest{
		{
			name: "inactive student", method: http.MethodPost, path: path, token: f.token,
			body:     grades(grade(f.inactive, 8)),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(fmt.Sprintf(`{"grades": "student %d is not an active student of the school cycle"}`, f.inactive.ID)),
		},
		{
			name: "someone else's cycle", method: http.MethodPost, path: path, token: f.getToken(t, f.other),
			body: grades(grade(f.diego, 8)), wantCode: http.StatusForbidden,
		},
	}
	f.run(t, tests)

	// first pass: diego graded, maria left without grade
	rec := f.do(http.MethodPost, path, f.token, grades(grade(f.diego, 8)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res grading.BulkGradesResult
	decode(t, rec, &res)
	assert.Len(t, res.Created, 2)
	assert.Empty(t, res.Updated)
	assert.Equal(t, 1, res.TotalWithGrade)
	assert.Equal(t, 1, res.TotalWithoutGrade)

	// second pass updates the same works
	rec = f.do(http.MethodPost, path, f.token, grades(grade(f.diego, 9), grade(f.maria, 7)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &res)
	assert.Empty(t, res.Created)
	assert.Len(t, res.Updated, 2)
	assert.Equal(t, 2, res.TotalWithGrade)
	assert.Equal(t, 0, res.TotalWithoutGrade)

	rec = f.do(http.MethodGet, fmt.Sprintf("/api/student-works?school_cycle_id=%d&name=Examen+parcial", f.cyc.ID), f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var works []grading.StudentWork
	decode(t, rec, &works)
	require.Len(t, works, 2)
	got := map[int64]float64{}
	for _, sw := range works {
		got[sw.StudentID] = sw.Grade.Float64
	}
	assert.Equal(t, map[int64]float64{f.diego.ID: 9, f.maria.ID: 7}, got)

	t.Run("no active students", func(t *testing.T) {
		emptyCyc := testutil.CreateCycle(t, f.cycRepo, f.cyc.SchoolID, f.teacher.ID, "Vacio")
		p := testutil.CreatePartial(t, f.cycRepo, emptyCyc.ID, "Primero")
		ff := testutil.CreateFormativeField(t, f.cycRepo, emptyCyc.ID, "Lenguajes")
		rec := f.do(http.MethodPost, path, f.token, marchallObj(t, grading.BulkGrades{
			FormativeFieldID: ff.ID, PartialID: p.ID, WorkTypeID: wt.ID, Name: "Examen",
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"error": "the school cycle has no active students"}`, rec.Body.String())
	})
}

func Test_gradingApi_setupFormativeField(t *testing.T) {
	f := newGradingFixture(t)
	existing := f.createWorkType(t, f.token, "Tareas")
	second := testutil.CreatePartial(t, f.cycRepo, f.cyc.ID, "Segundo")
	path := "/api/formative-fields/bulk"

	setup := func(evals ...grading.WeightItem) []byte {
		return marchallObj(t, grading.FieldSetup{
			SchoolCycleID: f.cyc.ID,
			Name:          "Saberes y pensamiento cientifico",
			WorkTypes: []grading.WorkTypeRef{
				{ID: existing.ID},
				{Name: "Proyectos", EvaluationWeight: 60},
			},
			Evaluations: evals,
		})
	}

	theirs := f.createWorkType(t, f.getToken(t, f.other), "Ajenas")
	withRef := func(ref grading.WorkTypeRef) []byte {
		return marchallObj(t, grading.FieldSetup{
			SchoolCycleID: f.cyc.ID,
			Name:          "Artes",
			WorkTypes:     []grading.WorkTypeRef{ref},
		})
	}

	tests := []httpTest{
		{
			name: "work type outside the setup", method: http.MethodPost, path: path, token: f.token,
			body:     setup(grading.WeightItem{PartialID: f.partial.ID, WorkTypeName: "Examenes", EvaluationWeight: 10}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"evaluations": "evaluations may only use the work types of the setup"}`),
		},
		{
			name: "someone else's cycle", method: http.MethodPost, path: path, token: f.getToken(t, f.other),
			body: setup(), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown work type", method: http.MethodPost, path: path, token: f.token,
			body:     withRef(grading.WorkTypeRef{ID: 999}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"work_types": "work type 999: does not exist"}`),
		},
		{
			name: "someone else's work type", method: http.MethodPost, path: path, token: f.token,
			body:     withRef(grading.WorkTypeRef{ID: theirs.ID}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(fmt.Sprintf(`{"work_types": "work type %d: work type does not belong to the cycle's teacher"}`, theirs.ID)),
		},
	}
	f.run(t, tests)

	rec := f.do(http.MethodPost, path, f.token, setup(
		grading.WeightItem{PartialID: f.partial.ID, WorkTypeID: existing.ID, EvaluationWeight: 40},
		grading.WeightItem{PartialID: f.partial.ID, WorkTypeName: "Proyectos", EvaluationWeight: 60},
		grading.WeightItem{PartialID: second.ID, WorkTypeName: "Proyectos", EvaluationWeight: 100},
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var fs grading.FieldSummary
	decode(t, rec, &fs)
	assert.Equal(t, "Saberes y pensamiento cientifico", fs.Name)
	assert.Len(t, fs.WorkTypes, 3)

	// the failed setups left nothing behind
	rec = f.do(http.MethodGet, fmt.Sprintf("/api/cycles/%d/formative-fields/summary", f.cyc.ID), f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary grading.CycleSummary
	decode(t, rec, &summary)
	require.Len(t, summary.FormativeFields, 2)
	byName := map[string]grading.FieldSummary{}
	for _, fld := range summary.FormativeFields {
		byName[fld.Name] = fld
	}
	assert.Empty(t, byName["Lenguajes"].WorkTypes)
	assert.Len(t, byName["Saberes y pensamiento cientifico"].WorkTypes, 3)

	rec = f.do(http.MethodGet, "/api/work-types", f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var wts []grading.WorkType
	decode(t, rec, &wts)
	assert.Len(t, wts, 2, "Tareas and Proyectos")
	for _, wt := range wts {
		assert.NotEqual(t, theirs.ID, wt.ID)
	}
}
