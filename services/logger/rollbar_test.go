package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", TestMode: true})

	usr := user.User{ID: 7, Username: "kato"}
	logger.Error("issue: saving notifications", errors.New("db down"), usr, map[string]interface{}{"issue": 3})
	logger.Info("session: expired")

	assert.Equal(t,
		"ERROR: issue: saving notifications\n"+
			"  db down\n"+
			"  user: 7 (kato)\n"+
			"  map[issue:3]\n"+
			"INFO: session: expired\n",
		buf.String(),
	)
}
