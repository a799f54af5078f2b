// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package ingest

import "time"

// Config holds NATS transport and debounce settings for the behavior
// pipeline.
type Config struct {
	// Embedded starts an in-process NATS server instead of dialing URL.
	Embedded bool   `koanf:"embedded"`
	URL      string `koanf:"url"`

	// Embedded server settings.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	StoreDir string `koanf:"store_dir"`

	// Consumer identity. Workers sharing a queue group load-balance.
	QueueGroup  string `koanf:"queue_group"`
	DurableName string `koanf:"durable_name"`

	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	AckWaitTimeout time.Duration `koanf:"ack_wait_timeout"`

	// DebounceTTL suppresses duplicate behavior events per
	// (device, video, operation).
	DebounceTTL time.Duration `koanf:"debounce_ttl"`
}

// withDefaults fills unset fields with working values.
func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 4222
	}
	if c.QueueGroup == "" {
		c.QueueGroup = "vidrec-workers"
	}
	if c.DurableName == "" {
		c.DurableName = "vidrec"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = time.Second
	}
	if c.AckWaitTimeout <= 0 {
		c.AckWaitTimeout = 30 * time.Second
	}
	if c.DebounceTTL <= 0 {
		c.DebounceTTL = DefaultDebounceTTL
	}
	return c
}
