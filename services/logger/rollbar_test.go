package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/escolar/core/user"
	testutil "github.com/trezcool/escolar/tests"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), testutil.NewConfig(""))
	usr := user.User{ID: 7, Email: "tere@test.mx", FirstName: "Tere"}
	err := errors.New("boom")

	t.Run("prepare drops the user", func(t *testing.T) {
		args := logger.prepare("failed", []interface{}{err, usr, map[string]interface{}{"path": "/api"}})
		assert.Equal(t, []interface{}{"failed", err, map[string]interface{}{"path": "/api"}}, args)
	})

	t.Run("error is printed", func(t *testing.T) {
		buf.Reset()
		logger.Error("failed", err, usr)
		assert.Contains(t, buf.String(), "ERROR: failed\nboom")
		assert.NotContains(t, buf.String(), "tere@test.mx")
	})
}
