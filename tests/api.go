package testutil

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/trezcool/aits/apps/api/echo"
	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/user"
	"github.com/trezcool/aits/storage/database/inmem"
)

const SecretKey = "test-secret"

// Mailbox is an in-memory core.EmailService.
type Mailbox struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *Mailbox) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

func (m *Mailbox) Sent() []*core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*core.EmailMessage(nil), m.sent...)
}

// DiscardLogger is a core.Logger that drops everything.
type DiscardLogger struct{}

func (DiscardLogger) Debug(string, ...interface{}) {}
func (DiscardLogger) Info(string, ...interface{})  {}
func (DiscardLogger) Warn(string, ...interface{})  {}
func (DiscardLogger) Error(string, ...interface{}) {}
func (DiscardLogger) Fatal(string, ...interface{}) {}

// App is an API server backed by the in-memory database.
type App struct {
	Conf     *core.Config
	Opts     *echoapi.Options
	Server   echoapi.Server
	UserRepo user.Repository
	Mail     *Mailbox
}

func TestConfig() *core.Config {
	return &core.Config{
		AppName:   "AITS",
		Env:       "TEST",
		TestMode:  true,
		SecretKey: SecretKey,
		Server: core.ServerConfig{
			AccessTokenExpiration:  5 * time.Minute,
			RefreshTokenExpiration: 24 * time.Hour,
			DisableReqLogs:         true,
		},
	}
}

func NewApp(t *testing.T) *App {
	t.Helper()
	validate, translator := NewValidator()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	issRepo := inmemdb.NewIssueRepository(db)
	usrSvc := user.NewService(usrRepo, validate)

	app := &App{
		Conf:     TestConfig(),
		UserRepo: usrRepo,
		Mail:     new(Mailbox),
	}
	app.Opts = &echoapi.Options{
		Config:  app.Conf,
		Logger:  DiscardLogger{},
		UserSvc: usrSvc,
		IssueSvc: issue.NewService(issue.Options{
			Repo:          issRepo,
			Notifications: issRepo,
			Users:         usrSvc,
			Mail:          app.Mail,
			Logger:        DiscardLogger{},
			Validate:      validate,
		}),
		Validate:   validate,
		Translator: translator,
	}
	app.Server = echoapi.NewServer(app.Opts)
	return app
}

// WithClock returns a server sharing the app's services whose tokens are issued by clock.
func (app *App) WithClock(clock clockwork.Clock) echoapi.Server {
	opts := *app.Opts
	opts.Clock = clock
	return echoapi.NewServer(&opts)
}

// Serve starts an httptest.Server for the app, closed on cleanup.
func (app *App) Serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(app.Server)
	t.Cleanup(srv.Close)
	return srv
}
