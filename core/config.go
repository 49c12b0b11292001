package core

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server   ServerConfig
		Database DatabaseConfig
		Client   ClientConfig
		Email    EmailConfig
	}

	ServerConfig struct {
		Host                   string
		Address                string
		AccessTokenExpiration  time.Duration
		RefreshTokenExpiration time.Duration
		ShutdownTimeout        time.Duration
		DisableReqLogs         bool
	}

	DatabaseConfig struct {
		InMemory   bool
		Engine     string
		Host       string
		Port       string
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}

	ClientConfig struct {
		BaseURL        string
		RefreshTimeout time.Duration
		TokenStore     string // memory, file, redis
		TokenFile      string
		RedisURL       string
		RedisKey       string
		RedisTTL       time.Duration
		MetricsFile    string // session metrics are written there on exit, if set
	}

	EmailConfig struct {
		DefaultFrom    string
		SendgridAPIKey string
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

func (ec EmailConfig) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(ec.DefaultFrom)
	if err != nil {
		return mail.Address{Address: ec.DefaultFrom}
	}
	return *addr
}

// NewConfig loads the configuration from the environment.
// `ENV` selects the environment and doubles as the variable prefix, eg. DEV_CLIENT_BASEURL.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                   v.GetString("server.host"),
			Address:                v.GetString("server.address"),
			AccessTokenExpiration:  v.GetDuration("server.accessTokenExpiration"),
			RefreshTokenExpiration: v.GetDuration("server.refreshTokenExpiration"),
			ShutdownTimeout:        v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:         v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			InMemory:   v.GetBool("database.inMemory"),
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Port:       v.GetString("database.port"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			DisableTLS: v.GetBool("database.disableTLS"),
		},
		Client: ClientConfig{
			BaseURL:        v.GetString("client.baseURL"),
			RefreshTimeout: v.GetDuration("client.refreshTimeout"),
			TokenStore:     v.GetString("client.tokenStore"),
			TokenFile:      v.GetString("client.tokenFile"),
			RedisURL:       v.GetString("client.redisURL"),
			RedisKey:       v.GetString("client.redisKey"),
			RedisTTL:       v.GetDuration("client.redisTTL"),
			MetricsFile:    v.GetString("client.metricsFile"),
		},
		Email: EmailConfig{
			DefaultFrom:    v.GetString("email.defaultFrom"),
			SendgridAPIKey: v.GetString("email.sendgridAPIKey"),
		},
	}
	if !conf.Debug && !conf.TestMode && conf.SecretKey == defaultSecretKey {
		return nil, fmt.Errorf("%s_SECRETKEY must be set outside of debug mode", env)
	}
	return conf, nil
}

const defaultSecretKey = "7h2^k!x%w0e$+aits=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("appName", "AITS")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", defaultSecretKey)
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.accessTokenExpiration", 5*time.Minute)
	v.SetDefault("server.refreshTokenExpiration", 24*time.Hour)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.inMemory", true)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "aits")
	v.SetDefault("database.user", "aits")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("client.baseURL", "http://localhost:8000/api")
	v.SetDefault("client.refreshTimeout", 15*time.Second)
	v.SetDefault("client.tokenStore", "file")
	v.SetDefault("client.tokenFile", defaultTokenFile())
	v.SetDefault("client.redisURL", "redis://localhost:6379/0")
	v.SetDefault("client.redisKey", "default")
	v.SetDefault("client.redisTTL", 24*time.Hour)
	v.SetDefault("client.metricsFile", "")

	v.SetDefault("email.defaultFrom", "AITS <noreply@localhost>")
	v.SetDefault("email.sendgridAPIKey", "")
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "aits", "session.json")
}
