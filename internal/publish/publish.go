// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package publish resolves internal video ids to their public publish ids
// via the publish HTTP API. The upstream is outside this service's blast
// radius, so every call runs behind a circuit breaker and unresolvable ids
// are silently omitted from results.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/clipstream/vidrec/internal/metrics"
)

// maxBatchSize caps one upstream request. Larger id sets are chunked.
const maxBatchSize = 100

// Config holds publish API connection settings.
type Config struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// Resolver implements recommend.PublishResolver against the publish API.
type Resolver struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[map[string]string]
	logger  zerolog.Logger
}

// NewResolver creates a publish-id resolver.
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 30 second timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewResolver(cfg Config, logger zerolog.Logger) (*Resolver, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("publish base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	componentLogger := logger.With().Str("component", "publish").Logger()

	cb := gobreaker.NewCircuitBreaker[map[string]string](gobreaker.Settings{
		Name:        "publish-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			componentLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish circuit breaker state change")
		},
	})

	return &Resolver{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		cb:      cb,
		logger:  componentLogger,
	}, nil
}

// resource is one entry of a publish lookup request.
type resource struct {
	ResType string `json:"res_type"`
	ResID   string `json:"res_id"`
}

// lookupResponse is the slice of the publish API response this service reads.
type lookupResponse struct {
	Data []struct {
		ResID  string   `json:"res_id"`
		PubIDs []string `json:"pub_ids"`
	} `json:"data"`
}

// Resolve maps video ids to publish ids. Ids the upstream does not know
// are absent from the result; only transport and upstream failures error.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		batch, err := r.resolveBatch(ctx, ids[start:end])
		if err != nil {
			metrics.PublishResolveErrors.Inc()
			return nil, err
		}
		for id, pub := range batch {
			out[id] = pub
		}
	}
	return out, nil
}

func (r *Resolver) resolveBatch(ctx context.Context, ids []string) (map[string]string, error) {
	return r.cb.Execute(func() (map[string]string, error) {
		resources := make([]resource, len(ids))
		for i, id := range ids {
			resources[i] = resource{ResType: "video", ResID: id}
		}

		payload, err := json.Marshal(map[string]any{"resources": resources})
		if err != nil {
			return nil, fmt.Errorf("marshal publish lookup: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/pub/lookup", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build publish lookup request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("publish lookup: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("publish lookup: unexpected status %d", resp.StatusCode)
		}

		var parsed lookupResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decode publish lookup response: %w", err)
		}

		out := make(map[string]string, len(parsed.Data))
		for _, d := range parsed.Data {
			if len(d.PubIDs) == 0 {
				continue
			}
			out[d.ResID] = d.PubIDs[0]
		}
		return out, nil
	})
}
