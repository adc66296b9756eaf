package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/cycle"
	"github.com/trezcool/escolar/core/grading"
	"github.com/trezcool/escolar/core/school"
	"github.com/trezcool/escolar/core/student"
	"github.com/trezcool/escolar/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
	}

	// Deps are the services exposed by the API.
	Deps struct {
		CatalogSvc *catalog.Service
		UserSvc    *user.Service
		SchoolSvc  *school.Service
		CycleSvc   *cycle.Service
		StudentSvc *student.Service
		GradingSvc *grading.Service
	}

	Server struct {
		opts     Options
		deps     Deps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(opts Options, deps Deps) *Server {
	s := &Server{
		opts:     opts,
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Logger.SetLevel(log.INFO)
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: conf.CORSOrigins}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))
	authed := []echo.MiddlewareFunc{jwt, activeUserMiddleware(s.deps.UserSvc)}

	registerUserAPI(g, authed, s.deps.UserSvc, s.opts)
	registerCatalogAPI(g, authed, s.deps.CatalogSvc, s.opts)
	registerSchoolAPI(g, authed, s.deps.SchoolSvc, s.opts)
	registerCycleAPI(g, authed, s.deps.CycleSvc, s.deps.StudentSvc, s.deps.GradingSvc, s.opts)
	registerStudentAPI(g, authed, s.deps.StudentSvc, s.opts)
	registerGradingAPI(g, authed, s.deps.GradingSvc, s.opts)
}

// Start listens in the background. Listen errors are sent to Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		s.opts.Logger.Info("API listening on " + s.opts.Address)
		if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
			s.errors <- errors.Wrap(err, "starting server")
		}
	}()
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
