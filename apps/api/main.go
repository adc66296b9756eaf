package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/escolar/apps/api/echo"
	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/grading"
	"github.com/trezcool/escolar/core/school"
	"github.com/trezcool/escolar/core/student"
	"github.com/trezcool/escolar/core/user"
	emailsvc "github.com/trezcool/escolar/services/email"
	logsvc "github.com/trezcool/escolar/services/logger"
	"github.com/trezcool/escolar/storage/database"
	sqlxrepos "github.com/trezcool/escolar/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else if mailSvc, err = emailsvc.NewSendgridService(conf, logger); err != nil {
		logger.Fatal(fmt.Sprintf("setting up sendgrid: %v", err), err)
	}

	catSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db))
	usrSvc := user.NewService(db, sqlxrepos.NewUserRepository(db), catSvc, mailSvc, conf)
	schSvc := school.NewService(sqlxrepos.NewSchoolRepository(db), catSvc)
	cycSvc := cycle.NewService(db, sqlxrepos.NewCycleRepository(db), catSvc, schSvc, usrSvc)
	stSvc := student.NewService(db, sqlxrepos.NewStudentRepository(db), cycSvc)
	gradeSvc := grading.NewService(db, sqlxrepos.NewGradingRepository(db), cycSvc, stSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// =========================================================================
	// Start Background Jobs

	jobs, err := startJobs(conf, logger, usrSvc)
	if err != nil {
		logger.Fatal(fmt.Sprintf("scheduling jobs: %v", err), err)
	}
	defer func() { <-jobs.Stop().Done() }()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.Options{
			Address:    conf.Server.Address,
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
		},
		echoapi.Deps{
			CatalogSvc: catSvc,
			UserSvc:    usrSvc,
			SchoolSvc:  schSvc,
			CycleSvc:   cycSvc,
			StudentSvc: stSvc,
			GradingSvc: gradeSvc,
		},
	)
	server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, database.Dialect(conf)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
