package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("TEST_CLIENT_BASEURL", "http://aits.test/api")
	t.Setenv("TEST_CLIENT_REFRESHTIMEOUT", "3s")
	t.Setenv("TEST_SERVER_ACCESSTOKENEXPIRATION", "1m")
	t.Setenv("TEST_CLIENT_METRICSFILE", "/var/lib/node_exporter/aits.prom")

	conf, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "TEST", conf.Env)
	assert.True(t, conf.TestMode)
	assert.Equal(t, "AITS", conf.AppName)
	assert.Equal(t, "http://aits.test/api", conf.Client.BaseURL)
	assert.Equal(t, 3*time.Second, conf.Client.RefreshTimeout)
	assert.Equal(t, "/var/lib/node_exporter/aits.prom", conf.Client.MetricsFile)
	assert.Equal(t, time.Minute, conf.Server.AccessTokenExpiration)
	assert.Equal(t, 24*time.Hour, conf.Server.RefreshTokenExpiration)
	assert.Equal(t, "localhost:5432", conf.Database.Address())
	assert.Equal(t, "noreply@localhost", conf.Email.DefaultFromEmail().Address)
}

func TestNewConfig_secretKeyRequiredInProd(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("PROD_DEBUG", "false")

	_, err := NewConfig()
	assert.EqualError(t, err, "PROD_SECRETKEY must be set outside of debug mode")

	t.Setenv("PROD_SECRETKEY", "s3cr3t")
	conf, err := NewConfig()
	require.NoError(t, err)
	assert.False(t, conf.Debug)
	assert.Equal(t, "s3cr3t", conf.SecretKey)
}

func TestCleanString(t *testing.T) {
	tests := []struct {
		name  string
		s     string
		lower bool
		want  string
	}{
		{name: "trim", s: "  Hello ", want: "Hello"},
		{name: "trim & lower", s: "\tHeLLo\n", lower: true, want: "hello"},
		{name: "empty", s: "   ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanString(tt.s, tt.lower); got != tt.want {
				t.Errorf("CleanString() = %q, want %q", got, tt.want)
			}
		})
	}
}
