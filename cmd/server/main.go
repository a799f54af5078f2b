// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Command server runs the Vidrec recommendation service: the HTTP read
// surface, the behavior ingest pipeline, and the background worker, all
// under one supervision tree.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipstream/vidrec/internal/api"
	"github.com/clipstream/vidrec/internal/cache"
	"github.com/clipstream/vidrec/internal/config"
	"github.com/clipstream/vidrec/internal/ingest"
	"github.com/clipstream/vidrec/internal/logging"
	"github.com/clipstream/vidrec/internal/publish"
	"github.com/clipstream/vidrec/internal/recommend"
	"github.com/clipstream/vidrec/internal/search"
	"github.com/clipstream/vidrec/internal/store"
	"github.com/clipstream/vidrec/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("fatal startup error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(cfg.Logging)
	logger := logging.Logger()
	logger.Info().Msg("vidrec starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared store and content index are hard dependencies: the engines
	// cannot start without them.
	st, err := store.New(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	idx, err := search.New(cfg.Search, logger)
	if err != nil {
		return err
	}

	if cfg.Publish.BaseURL == "" {
		return fmt.Errorf("publish.base_url is required")
	}
	resolver, err := publish.NewResolver(cfg.Publish, logger)
	if err != nil {
		return err
	}

	// Behavior transport.
	natsURL := cfg.NATS.URL
	var embedded *ingest.EmbeddedServer
	if cfg.NATS.Embedded {
		embedded, err = ingest.NewEmbeddedServer(cfg.NATS)
		if err != nil {
			return err
		}
		natsURL = embedded.ClientURL()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = embedded.Shutdown(shutdownCtx)
		}()
	}
	if err := ingest.EnsureStream(natsURL, cfg.NATS); err != nil {
		return err
	}

	wmLogger := ingest.NewWatermillLogger(logger)
	publisher, err := ingest.NewPublisher(natsURL, cfg.NATS, wmLogger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	subscriber, err := ingest.NewSubscriber(natsURL, cfg.NATS, wmLogger)
	if err != nil {
		return err
	}
	defer func() { _ = subscriber.Close() }()

	// Recommendation engines, one per serving variant.
	shards, closeCaches, err := buildShards(ctx, cfg, st, idx, resolver)
	if err != nil {
		return err
	}
	defer closeCaches()

	ingestor := ingest.NewIngestor(st, publisher, cfg.NATS.DebounceTTL, logger)
	worker := ingest.NewWorker(subscriber, shards, logger)

	handler := api.NewHandler(shards, ingestor, api.Options{
		DefaultSize:         cfg.Recommend.DefaultSize,
		MaxSize:             cfg.Recommend.MaxSize,
		PublishIDMinVersion: cfg.Recommend.PublishIDMinVersion,
	}, map[string]api.Pinger{
		"redis":      st,
		"opensearch": idx,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, api.RouterConfig{RateLimit: cfg.Server.RateLimit, CORSOrigins: cfg.Server.CORSOrigins}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(logger), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMessagingService(worker)
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout, logger))

	logger.Info().
		Str("addr", server.Addr).
		Bool("embedded_nats", cfg.NATS.Embedded).
		Msg("vidrec ready")

	err = tree.Serve(ctx)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("supervision tree stopped: %w", err)
	}

	logger.Info().Msg("vidrec stopped")
	return nil
}

// buildShards loads both hot pools and assembles the per-variant engines.
// A variant whose hot pool cannot be loaded is fatal: serving without a
// fallback pool would break cold-start devices.
func buildShards(ctx context.Context, cfg *config.Config, st *store.Client, idx *search.Client, resolver *publish.Resolver) (*recommend.ShardSet, func(), error) {
	logger := logging.Logger()
	caps := recommend.LedgerCaps{
		Pending: cfg.Recommend.PendingCap,
		Served:  cfg.Recommend.ServedCap,
	}

	caches := make([]*cache.Cache, 0, 2)
	closeCaches := func() {
		for _, c := range caches {
			c.Close()
		}
	}

	variants := []recommend.Variant{recommend.V1, recommend.V2}
	engines := make([]*recommend.Engine, len(variants))
	for i, variant := range variants {
		hot, err := recommend.LoadHotPool(ctx, st, idx, resolver, variant, logger)
		if err != nil {
			closeCaches()
			return nil, nil, fmt.Errorf("load hot pool for %s: %w", variant.Name, err)
		}

		recallCache := cache.New(cfg.Recommend.RecallCacheTTL)
		caches = append(caches, recallCache)

		ledger := recommend.NewLedger(st, variant, caps, logger)
		recall := recommend.NewRecall(idx, resolver, variant, recallCache, logger)

		engines[i], err = recommend.NewEngine(variant, hot, ledger, recall, cfg.Recommend.RecallSize, cfg.Recommend.SampleSeed, logger)
		if err != nil {
			closeCaches()
			return nil, nil, err
		}
	}

	return &recommend.ShardSet{V1: engines[0], V2: engines[1]}, closeCaches, nil
}
