package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/bytes"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/assessment"
	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/tenant"
	"github.com/trezcool/tos/core/upload"
	"github.com/trezcool/tos/core/user"
)

type (
	// HealthChecker reports whether the backing stores are reachable.
	HealthChecker func(ctx context.Context) error

	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Clock          clockwork.Clock
		Validate       *validator.Validate
		Translator     ut.Translator
		RateLimiter    core.RateLimiter
		HealthCheck    HealthChecker
		DisableReqLogs bool

		TenantSvc       tenant.Service
		UserSvc         user.Service
		ProgramSvc      program.Service
		EnrollmentSvc   enrollment.Service
		AssessmentSvc   assessment.Service
		CoachingSvc     coaching.Service
		NotificationSvc notification.Service
		UploadSvc       upload.Service
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		auth     *Authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &server{
		opts:     opts,
		app:      echo.New(),
		auth:     NewAuthenticator(opts.Conf, opts.Clock),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(
		s.opts.Logger,
		s.opts.Translator,
		bytes.Format(conf.Storage.MaxUploadSize),
		s.signalShutdown,
	)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/healthz", s.healthz)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.app.Group("/api")
	authed := []echo.MiddlewareFunc{s.auth.middleware(), userMiddleware(s.opts.UserSvc)}
	limited := rateLimitMiddleware(s.opts.RateLimiter, s.opts.Logger)

	registerUserAPI(api, authed, limited, s.auth, s.opts.UserSvc, s.opts.Validate, s.opts.Logger)
	registerTenantAPI(api, authed, s.opts.TenantSvc, s.opts.Validate)
	registerProgramAPI(api, authed, s.opts.ProgramSvc, s.opts.EnrollmentSvc, s.opts.Validate)
	registerEnrollmentAPI(api, authed, s.opts.EnrollmentSvc)
	registerAssessmentAPI(api, authed, s.opts.AssessmentSvc, s.opts.Validate)
	registerCoachingAPI(api, authed, s.opts.CoachingSvc, s.opts.Validate)
	registerNotificationAPI(api, authed, s.opts.NotificationSvc)
	registerFileAPI(api, authed, s.opts.UploadSvc, conf.Storage.MaxUploadSize)
}

func (s *server) Start() {
	s.opts.Logger.Info("API listening on " + s.opts.Conf.Server.Host)
	if err := s.app.Start(s.opts.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) healthz(ctx echo.Context) error {
	if s.opts.HealthCheck != nil {
		if err := s.opts.HealthCheck(ctx.Request().Context()); err != nil {
			s.opts.Logger.Error("health check failed", err)
			return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Transformation OS API!")
}
