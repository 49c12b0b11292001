// Package testutil holds the fixtures shared by the tests of several packages.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/user"
	"github.com/trezcool/aits/storage/database"
)

const (
	DatabaseURLEnv = "AITS_TEST_DATABASE_URL"
	RedisURLEnv    = "AITS_TEST_REDIS_URL"

	Password = "Kampala#2023"
)

// NewValidator returns a validator with every custom validation of the app registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	issue.RegisterValidators(validate, translator)
	return validate, translator
}

func CreateUser(t *testing.T, repo user.Repository, uname, role string, isActive bool, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Username:  uname,
		Email:     uname + "@aits.test",
		FirstName: "Test",
		LastName:  uname,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp.Truncate(time.Microsecond),
	}
	if role == user.RoleStudent {
		usr.StudentNumber = "2300" + uname
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// EnvOrSkip returns the value of env, skipping the test in -short mode or when it is unset.
func EnvOrSkip(t *testing.T, env string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	val := os.Getenv(env)
	if val == "" {
		t.Skipf("%s not set", env)
	}
	return val
}

// PrepareDB connects to the test database and migrates it from scratch.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenURL("postgres", EnvOrSkip(t, DatabaseURLEnv))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, "reset"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}
