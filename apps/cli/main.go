package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/aits/client"
	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/session"
	"github.com/trezcool/aits/services/logger"
	"github.com/trezcool/aits/services/metrics"
	"github.com/trezcool/aits/storage/tokenstore"
)

const redisKeyPrefix = "aits:session"

func main() {
	os.Exit(run())
}

func run() int {
	std := log.New(os.Stderr, "AITS : ", log.LstdFlags)

	conf, err := core.NewConfig()
	if err != nil {
		std.Printf("loading config: %v", err)
		return 1
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, closeStore, err := newStore(ctx, conf.Client)
	if err != nil {
		std.Printf("setting up token store: %v", err)
		return 1
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("closing token store", err)
		}
	}()

	cli := &commandLine{out: os.Stdout, errOut: os.Stderr}
	opts := []client.Option{
		client.WithStore(store),
		client.WithRefreshTimeout(conf.Client.RefreshTimeout),
		client.WithLogger(logger),
		client.WithOnExpired(cli.sessionExpired),
	}
	if conf.Client.MetricsFile != "" {
		observer, flush := newSessionObserver(conf.Client.MetricsFile)
		defer func() {
			if err := flush(); err != nil {
				logger.Error("flushing session metrics", err)
			}
		}()
		opts = append(opts, client.WithObserver(observer))
	}
	cli.api, err = client.New(conf.Client.BaseURL, opts...)
	if err != nil {
		std.Printf("setting up client: %v", err)
		return 1
	}

	if err = cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		return 1
	}
	return 0
}

// newStore returns the configured session.Store and a func releasing it.
func newStore(ctx context.Context, conf core.ClientConfig) (session.Store, func() error, error) {
	nop := func() error { return nil }
	switch conf.TokenStore {
	case "memory":
		return session.NewMemoryStore(), nop, nil
	case "", "file":
		return tokenstore.NewFileStore(conf.TokenFile), nop, nil
	case "redis":
		rdb, err := tokenstore.NewRedisClient(ctx, conf.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return tokenstore.NewRedisStore(rdb, redisKeyPrefix, conf.RedisKey, conf.RedisTTL), rdb.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown token store %q", conf.TokenStore)
	}
}

// newSessionObserver records the session metrics of this run; flush writes them to path.
func newSessionObserver(path string) (session.Observer, func() error) {
	reg := prometheus.NewRegistry()
	observer := metrics.NewSessionMetrics(reg)
	return observer, func() error { return metrics.WriteTextfile(path, reg) }
}
