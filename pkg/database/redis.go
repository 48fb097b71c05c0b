package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-drafts/pkg/config"
	"github.com/ekaya-inc/ekaya-drafts/pkg/retry"
)

// A failed cache lookup is treated as a miss, so timeouts are short.
const (
	redisDialTimeout = 2 * time.Second
	redisIOTimeout   = 250 * time.Millisecond
)

// NewRedisClient connects to the response cache Redis. Returns nil if Redis
// is not configured (host is empty).
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := pingTransient(ctx, retry.DefaultConfig(), ping); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	return client, nil
}

// pingTransient retries only transient failures. A wrong password or an
// unknown command fails at once.
func pingTransient(ctx context.Context, cfg *retry.Config, ping func(context.Context) error) error {
	return retry.DoIfRetryable(ctx, cfg, func() error {
		return ping(ctx)
	})
}
