package tokenstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/aits/core/session"
)

const (
	fieldAccess  = "access"
	fieldRefresh = "refresh"
)

// RedisStore keeps the TokenPair in the hash "<prefix>:<name>".
// A positive ttl expires the hash that long after the last Save.
type RedisStore struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

var _ session.Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.Cmdable, prefix, name string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, key: prefix + ":" + name, ttl: ttl}
}

// NewRedisClient connects to the redis server at url ("redis://host:port/db").
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis URL")
	}
	rdb := redis.NewClient(opts)
	if err = rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) Load(ctx context.Context) (session.TokenPair, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return session.TokenPair{}, errors.Wrap(err, "loading tokens")
	}
	return session.TokenPair{Access: vals[fieldAccess], Refresh: vals[fieldRefresh]}, nil
}

func (s *RedisStore) Save(ctx context.Context, pair session.TokenPair) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, fieldAccess, pair.Access, fieldRefresh, pair.Refresh)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	return errors.Wrap(err, "saving tokens")
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return errors.Wrap(s.rdb.Del(ctx, s.key).Err(), "clearing tokens")
}
