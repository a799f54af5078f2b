// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package ingest

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer wraps an in-process NATS JetStream server for
// single-instance deployments without an external broker.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer creates and starts an embedded NATS server.
// Returns an error if the server is not ready within 30 seconds.
func NewEmbeddedServer(cfg Config) (*EmbeddedServer, error) {
	cfg = cfg.withDefaults()

	opts := &server.Options{
		ServerName: "vidrec-events",
		Host:       cfg.Host,
		Port:       cfg.Port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoLog:      true,
		MaxPayload: 1024 * 1024, // tasks are tiny, 1MB is generous
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// IsRunning reports server health.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

// Shutdown stops the server, waiting for completion or context cancel.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// EnsureStream provisions the recommend stream if it does not exist.
// Subscribers bind to this stream because its subjects are wildcarded.
func EnsureStream(url string, cfg Config) error {
	cfg = cfg.withDefaults()

	nc, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("open JetStream context: %w", err)
	}

	_, err = js.AddStream(&natsgo.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"recommend.>"},
		Retention: natsgo.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil && err != natsgo.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("provision stream %s: %w", StreamName, err)
	}
	return nil
}
