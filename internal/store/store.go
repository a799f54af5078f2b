// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package store provides the Redis-backed shared store for device ledgers,
// hot pools, and debounce keys. All sorted-set operations map one-to-one
// onto Redis commands; the only composite operation, Replace, runs as a
// MULTI/EXEC transaction so readers never observe a half-written ledger.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/recommend"
)

// Config holds Redis connection settings.
type Config struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Client implements recommend.Store over a Redis connection pool.
type Client struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Client{
		rdb:    rdb,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Ping reports store reachability for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Exists reports whether a key holds any data.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

// RangeWithScores returns up to limit members of a sorted set, lowest
// score first. A non-positive limit returns the whole set.
func (c *Client) RangeWithScores(ctx context.Context, key string, limit int64) ([]recommend.Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}

	zs, err := c.rdb.ZRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", key, err)
	}
	return toEntries(zs), nil
}

// TopByScore returns up to count members scoring at least min, highest
// score first.
func (c *Client) TopByScore(ctx context.Context, key string, min float64, count int64) ([]recommend.Entry, error) {
	zs, err := c.rdb.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:   strconv.FormatFloat(min, 'f', -1, 64),
		Max:   "+inf",
		Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrangebyscore %s: %w", key, err)
	}
	return toEntries(zs), nil
}

// Add upserts members into a sorted set.
func (c *Client) Add(ctx context.Context, key string, entries []recommend.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Member: e.Member, Score: e.Score}
	}
	if err := c.rdb.ZAdd(ctx, key, members...).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

// Replace atomically swaps a sorted set's contents. Concurrent readers see
// either the old set or the new one, never a mix.
func (c *Client) Replace(ctx context.Context, key string, entries []recommend.Entry) error {
	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Member: e.Member, Score: e.Score}
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.ZAdd(ctx, key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Expire sets a key's TTL.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// SetNX claims a key with a TTL. It returns false when the key already
// exists, which is how behavior debouncing detects a duplicate event.
func (c *Client) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func toEntries(zs []redis.Z) []recommend.Entry {
	entries := make([]recommend.Entry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, recommend.Entry{Member: member, Score: z.Score})
	}
	return entries
}
