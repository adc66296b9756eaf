package main

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/user"
	emailsvc "github.com/trezcool/escolar/services/email"
	logsvc "github.com/trezcool/escolar/services/logger"
	sqlxrepos "github.com/trezcool/escolar/storage/database/sqlx"
	testutil "github.com/trezcool/escolar/tests"
)

func Test_startJobs(t *testing.T) {
	db, conf := testutil.PrepareDB(t)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	catSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db))
	usrSvc := user.NewService(db, sqlxrepos.NewUserRepository(db), catSvc, emailsvc.NewConsoleServiceMock(conf, logger), conf)

	t.Run("invalid schedule", func(t *testing.T) {
		conf := *conf
		conf.Server.TokenCleanupSchedule = "every now and then"
		_, err := startJobs(&conf, logger, usrSvc)
		assert.Error(t, err)
	})

	t.Run("valid schedule", func(t *testing.T) {
		c, err := startJobs(conf, logger, usrSvc)
		require.NoError(t, err)
		defer c.Stop()

		entries := c.Entries()
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Next.IsZero())
	})
}
