package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/apps/api/echo"
	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/user"
	"github.com/trezcool/aits/services/email"
	"github.com/trezcool/aits/services/logger"
	"github.com/trezcool/aits/services/metrics"
	"github.com/trezcool/aits/storage/database"
	"github.com/trezcool/aits/storage/database/inmem"
	"github.com/trezcool/aits/storage/database/sqlx"
)

type repositories struct {
	users  user.Repository
	issues interface {
		issue.Repository
		issue.NotificationRepository
	}
	close func() error
}

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(std, conf)
	defer logger.Close()

	if err = run(conf, logger); err != nil {
		logger.Fatal(fmt.Sprintf("api: %v", err), err)
	}
}

func run(conf *core.Config, logger *logsvc.RollbarLogger) error {
	// =========================================================================
	// Set up Dependencies

	repos, err := setUpDB(conf)
	if err != nil {
		return errors.Wrap(err, "setting up database")
	}
	defer func() {
		if err := repos.close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug || conf.Email.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(log.New(os.Stdout, "EMAIL : ", log.LstdFlags), conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	issue.RegisterValidators(validate, translator)

	usrSvc := user.NewService(repos.users, validate)
	issueSvc := issue.NewService(issue.Options{
		Repo:          repos.issues,
		Notifications: repos.issues,
		Users:         usrSvc,
		Mail:          mailSvc,
		Logger:        logger,
		Validate:      validate,
	})

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Config:     conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		IssueSvc:   issueSvc,
		Validate:   validate,
		Translator: translator,
		Registry:   metrics.NewRegistry(),
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server error")

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			return errors.Wrap(err, "could not stop server gracefully")
		}
	}
	return nil
}

func setUpDB(conf *core.Config) (*repositories, error) {
	if conf.Database.InMemory {
		db := inmemdb.Open()
		return &repositories{
			users:  inmemdb.NewUserRepository(db),
			issues: inmemdb.NewIssueRepository(db),
			close:  func() error { return nil },
		}, nil
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return &repositories{
		users:  sqlxrepos.NewUserRepository(db),
		issues: sqlxrepos.NewIssueRepository(db),
		close:  db.Close,
	}, nil
}
