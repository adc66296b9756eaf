package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/user"
)

const jobTimeout = time.Minute

// startJobs schedules the periodic maintenance jobs. Stop the returned cron to wait for running jobs.
func startJobs(conf *core.Config, logger core.Logger, usrSvc *user.Service) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{logger})))

	_, err := c.AddFunc(conf.Server.TokenCleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		deleted, err := usrSvc.CleanupRefreshTokens(ctx)
		if err != nil {
			logger.Error(fmt.Sprintf("cleaning up refresh tokens: %v", err), err)
			return
		}
		logger.Info(fmt.Sprintf("deleted %d stale refresh tokens", deleted))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "invalid token cleanup schedule %q", conf.Server.TokenCleanupSchedule)
	}

	c.Start()
	return c, nil
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprint("cron: ", msg, " ", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprint("cron: ", msg, " ", keysAndValues), err)
}
