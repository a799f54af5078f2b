// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package config loads application configuration with Koanf v2 from three
// layered sources, later layers overriding earlier ones:
//  1. Built-in defaults
//  2. Optional YAML config file (CONFIG_PATH or default search paths)
//  3. Environment variables (VIDREC_ prefix, nested via underscores)
//
// Config is immutable after Load and safe for concurrent reads.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/clipstream/vidrec/internal/ingest"
	"github.com/clipstream/vidrec/internal/logging"
	"github.com/clipstream/vidrec/internal/publish"
	"github.com/clipstream/vidrec/internal/search"
	"github.com/clipstream/vidrec/internal/store"
)

// DefaultConfigPaths lists the config file search order. The first file
// found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vidrec/config.yaml",
	"/etc/vidrec/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces all vidrec environment variables.
const envPrefix = "VIDREC_"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Redis     store.Config    `koanf:"redis"`
	Search    search.Config   `koanf:"search"`
	NATS      ingest.Config   `koanf:"nats"`
	Publish   publish.Config  `koanf:"publish"`
	Recommend RecommendConfig `koanf:"recommend"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is requests per client IP per minute. Zero disables.
	RateLimit int `koanf:"rate_limit"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// RecommendConfig holds recommendation engine tuning.
type RecommendConfig struct {
	// DefaultSize is the per-request result count when the client does
	// not ask for one.
	DefaultSize int `koanf:"default_size" validate:"min=1"`

	// MaxSize caps the per-request result count.
	MaxSize int `koanf:"max_size" validate:"min=1"`

	PendingCap int `koanf:"pending_cap" validate:"min=1"`
	ServedCap  int `koanf:"served_cap" validate:"min=1"`

	RecallSize     int           `koanf:"recall_size" validate:"min=1"`
	RecallCacheTTL time.Duration `koanf:"recall_cache_ttl"`

	// SampleSeed fixes the hot-pool sampling RNG; zero picks a default.
	SampleSeed int64 `koanf:"sample_seed"`

	// PublishIDMinVersion is the client version from which responses
	// carry publish ids alongside video ids.
	PublishIDMinVersion int `koanf:"publish_id_min_version"`
}

// defaultConfig returns all built-in defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       300,
			CORSOrigins:     []string{"*"},
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Redis: store.Config{
			Addr:         "127.0.0.1:6379",
			DB:           0,
			PoolSize:     20,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Search: search.Config{
			Addresses: []string{"http://127.0.0.1:9200"},
			Index:     "video",
			Timeout:   10 * time.Second,
		},
		NATS: ingest.Config{
			Embedded:       true,
			URL:            "nats://127.0.0.1:4222",
			Host:           "127.0.0.1",
			Port:           4222,
			StoreDir:       "/data/nats/jetstream",
			QueueGroup:     "vidrec-workers",
			DurableName:    "vidrec",
			MaxReconnects:  60,
			ReconnectWait:  time.Second,
			AckWaitTimeout: 30 * time.Second,
			DebounceTTL:    ingest.DefaultDebounceTTL,
		},
		Publish: publish.Config{
			BaseURL: "",
			Timeout: 5 * time.Second,
		},
		Recommend: RecommendConfig{
			DefaultSize:         10,
			MaxSize:             50,
			PendingCap:          500,
			ServedCap:           500,
			RecallSize:          20,
			RecallCacheTTL:      time.Hour,
			SampleSeed:          0,
			PublishIDMinVersion: 11300,
		},
	}
}

// Load builds the configuration from defaults, file, and environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks structural constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Recommend.DefaultSize > c.Recommend.MaxSize {
		return fmt.Errorf("recommend.default_size %d exceeds recommend.max_size %d",
			c.Recommend.DefaultSize, c.Recommend.MaxSize)
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.embedded is false")
	}
	return nil
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are fields that accept comma-separated env values.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"search.addresses",
}

// processSliceFields splits comma-separated env strings into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// sectionPrefixes maps the first env token to a config section. Everything
// after the section becomes one snake_case key, so VIDREC_REDIS_POOL_SIZE
// maps to redis.pool_size rather than redis.pool.size.
var sectionPrefixes = []string{
	"server", "logging", "redis", "search", "nats", "publish", "recommend",
}

// envTransform maps VIDREC_SECTION_KEY_NAME to section.key_name.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	for _, section := range sectionPrefixes {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	// Unknown keys are ignored by Unmarshal.
	return key
}
