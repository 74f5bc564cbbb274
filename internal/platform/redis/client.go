// Package redis opens the go-redis client backing the draft store.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"immimate/internal/platform/config"
)

// Open connects and pings. It returns a nil client when no URL is configured.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// options layers the pool settings over what the URL declares. Zero values
// keep the URL's or the library's defaults.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	for _, o := range []struct {
		dst *int
		v   int
	}{{&opts.PoolSize, cfg.PoolSize}, {&opts.MinIdleConns, cfg.MinIdleConns}} {
		if o.v > 0 {
			*o.dst = o.v
		}
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Check adapts the client to a health probe.
func Check(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
