// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "websentinel:"

// Redis is a Store shared between server replicas.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects using a redis:// URL and pings once before returning.
func NewRedis(ctx context.Context, rawURL string, logger *slog.Logger) (*Redis, error) {
	if rawURL == "" {
		return nil, errors.New("redis URL not configured")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 2

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Redis cache connected", "addr", opts.Addr, "db", opts.DB)
	return &Redis{client: client, logger: logger}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Redis cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return raw, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		r.logger.Warn("Redis cache write failed", "key", key, "error", err)
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
