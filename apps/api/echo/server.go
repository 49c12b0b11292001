package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/user"
	"github.com/trezcool/aits/services/metrics"
)

type (
	Options struct {
		Config     *core.Config
		Logger     core.Logger
		UserSvc    *user.Service
		IssueSvc   *issue.Service
		Validate   *validator.Validate
		Translator ut.Translator
		Registry   *prometheus.Registry // metrics are not served when nil
		Clock      clockwork.Clock      // token issuance; defaults to the real clock
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts   *Options
		app    *echo.Echo
		tokens *tokenIssuer
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &server{
		opts:   opts,
		app:    echo.New(),
		tokens: newTokenIssuer(opts.Config, opts.Clock),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Config

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.opts.Registry != nil {
		s.app.Use(metrics.NewHTTPMetrics(s.opts.Registry).Middleware())
		s.app.GET("/metrics", echo.WrapHandler(metrics.Handler(s.opts.Registry)))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)

	api := s.app.Group("/api")
	auth := []echo.MiddlewareFunc{
		middleware.JWTWithConfig(s.tokens.jwtConfig()),
		accessTokenMiddleware,
		contextUserMiddleware(s.opts.UserSvc),
	}

	registerUserAPI(api, auth, s.opts.UserSvc, s.tokens)
	registerIssueAPI(api, auth, s.opts.IssueSvc)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Config.Server.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the AITS API!")
}
