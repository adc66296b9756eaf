package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escolar/core/catalog"
	testutil "github.com/trezcool/escolar/tests"
)

func Test_catalogApi_list(t *testing.T) {
	e := setup(t)
	token := e.getToken(t, e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true))

	tests := []struct {
		slug      string
		wantCode  int
		wantNames []string
	}{
		{slug: "access-levels", wantCode: http.StatusOK, wantNames: []string{"admin", "teacher", "student", "parent"}},
		{slug: "school-types", wantCode: http.StatusOK, wantNames: []string{"Preescolar", "Primaria", "Secundaria", "Bachillerato"}},
		{slug: "shifts", wantCode: http.StatusOK, wantNames: []string{"Matutino", "Vespertino", "Diurno", "Completo"}},
		{slug: "period-catalogs", wantCode: http.StatusOK, wantNames: []string{"Bimestral", "Trimestral", "Semestral"}},
		{slug: "colors", wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			rec := e.do(http.MethodGet, "/api/catalogs/"+tt.slug, token)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantNames == nil {
				return
			}

			var items []catalog.Item
			decode(t, rec, &items)
			names := make([]string, 0, len(items))
			for _, it := range items {
				names = append(names, it.Name)
			}
			assert.ElementsMatch(t, tt.wantNames, names)
		})
	}
}

func Test_catalogApi_crud(t *testing.T) {
	e := setup(t)
	admin := e.createUser(t, "admin@test.mx", catalog.LevelAdmin, true)
	teacher := e.createUser(t, "tere@test.mx", catalog.LevelTeacher, true)
	adminToken := e.getToken(t, admin)
	teacherToken := e.getToken(t, teacher)

	primaria := testutil.CatalogID(t, e.db, catalog.SchoolTypes, "Primaria")
	testutil.CreateSchool(t, e.db, e.schRepo, "09DPR0001A")
	path := "/api/catalogs/school-types"

	tests := []httpTest{
		{
			name: "create as teacher", method: http.MethodPost, path: path, token: teacherToken,
			body: []byte(`{"name": "Universidad"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "create without name", method: http.MethodPost, path: path, token: adminToken,
			body: []byte(`{"name": "  "}`), wantCode: http.StatusUnprocessableEntity,
			wantData: []byte(`{"name": "this field is required"}`),
		},
		{
			name: "create duplicate", method: http.MethodPost, path: path, token: adminToken,
			body: []byte(`{"name": "Primaria"}`), wantCode: http.StatusConflict,
			wantData: []byte(`{"name": "school type with this name already exists"}`),
		},
		{
			name: "create", method: http.MethodPost, path: path, token: adminToken,
			body: []byte(`{"name": "Universidad"}`), wantCode: http.StatusCreated,
		},
		{
			name: "retrieve", path: fmt.Sprintf("%s/%d", path, primaria), token: teacherToken,
			wantCode: http.StatusOK,
		},
		{
			name: "retrieve unknown", path: path + "/999", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: []byte(`{"error": "school type not found"}`),
		},
		{
			name: "delete referenced", method: http.MethodDelete, path: fmt.Sprintf("%s/%d", path, primaria), token: adminToken,
			wantCode: http.StatusConflict, wantData: []byte(`{"error": "school type is still referenced by other records"}`),
		},
		{
			name: "delete unknown", method: http.MethodDelete, path: path + "/999", token: adminToken,
			wantCode: http.StatusNotFound,
		},
		{
			name: "delete as teacher", method: http.MethodDelete, path: fmt.Sprintf("%s/%d", path, primaria), token: teacherToken,
			wantCode: http.StatusForbidden,
		},
	}
	e.run(t, tests)

	universidad := testutil.CatalogID(t, e.db, catalog.SchoolTypes, "Universidad")
	rec := e.do(http.MethodDelete, fmt.Sprintf("%s/%d", path, universidad), adminToken)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}
