package cachestore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xtxerr/nodepulse/config"
	"github.com/xtxerr/nodepulse/internal/errors"
)

const storeName = "cache store"

// Config holds Redis connection options.
type Config struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	PoolTimeout  time.Duration `yaml:"pool_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         config.DefaultRedisAddr,
		DialTimeout:  config.DefaultRedisDialTimeout,
		ReadTimeout:  config.DefaultRedisReadTimeout,
		WriteTimeout: config.DefaultRedisWriteTimeout,
		PoolSize:     config.DefaultRedisPoolSize,
		PoolTimeout:  config.DefaultRedisPoolTimeout,
	}
}

// Redis implements Store on a go-redis client.
//
// Redis is safe for concurrent use.
type Redis struct {
	client *redis.Client
}

var _ Store = (*Redis)(nil)

// NewRedis creates a client. No connection is made until first use; call
// Ping to verify connectivity.
func NewRedis(cfg Config) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
	})}
}

// Get returns the value at key or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, errors.StoreUnavailable(storeName, errors.Wrapf(err, "get %s", key))
	}
	return b, nil
}

// Set stores value at key with the given expiry (0 = none).
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.StoreUnavailable(storeName, errors.Wrapf(err, "set %s", key))
	}
	return nil
}

// Delete removes keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.StoreUnavailable(storeName, errors.Wrap(err, "del"))
	}
	return nil
}

// PushBounded runs LPUSH, LTRIM and EXPIRE in one MULTI/EXEC.
func (r *Redis) PushBounded(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error {
	if maxLen < 1 {
		return errors.New(errors.KindInternal, "list capacity must be positive", nil)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, maxLen-1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return errors.StoreUnavailable(storeName, errors.Wrapf(err, "push %s", key))
	}
	return nil
}

// Range returns up to limit entries of the list at key, newest first.
func (r *Redis) Range(ctx context.Context, key string, limit int64) ([][]byte, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	vals, err := r.client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, errors.StoreUnavailable(storeName, errors.Wrapf(err, "lrange %s", key))
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.StoreUnavailable(storeName, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
