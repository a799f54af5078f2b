// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package search implements the content index over OpenSearch. It answers
// three questions: what does a video look like (title and tags), which
// videos are globally hot, and which videos share tags with a seed.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/metrics"
	"github.com/clipstream/vidrec/internal/recommend"
)

const (
	// hotAdmissionFloor is the minimum view count for the hot pool.
	hotAdmissionFloor = 20_000_000

	// tagMatchHotFloor is the minimum view count for tag-match candidates.
	tagMatchHotFloor = 100_000

	// tagMatchMinScore drops weakly matching candidates at the index.
	tagMatchMinScore = 20.0
)

// Config holds OpenSearch connection and index settings.
type Config struct {
	Addresses []string      `koanf:"addresses"`
	Username  string        `koanf:"username"`
	Password  string        `koanf:"password"`
	Index     string        `koanf:"index"`
	Timeout   time.Duration `koanf:"timeout"`
}

// Client implements recommend.Index over an OpenSearch cluster.
type Client struct {
	os     *opensearch.Client
	index  string
	logger zerolog.Logger
}

// New connects to OpenSearch. The connection is verified lazily on first
// query; cluster reachability is surfaced through Ping for health checks.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("search index name is required")
	}

	osc, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Client{
		os:     osc,
		index:  cfg.Index,
		logger: logger.With().Str("component", "search").Logger(),
	}, nil
}

// Ping reports cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("opensearch ping: %w", err)
	}
	defer closeBody(res.Body)
	if res.IsError() {
		return fmt.Errorf("opensearch ping: %s", res.Status())
	}
	return nil
}

// VideoDocument fetches one video's title and tags. A missing document is
// returned as nil without error.
func (c *Client) VideoDocument(ctx context.Context, id string) (*recommend.VideoDocument, error) {
	res, err := opensearchapi.GetRequest{
		Index:      c.index,
		DocumentID: id,
	}.Do(ctx, c.os)
	if err != nil {
		metrics.SearchErrors.WithLabelValues("get_document").Inc()
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	defer closeBody(res.Body)

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		metrics.SearchErrors.WithLabelValues("get_document").Inc()
		return nil, fmt.Errorf("get document %s: %s", id, res.Status())
	}

	var doc struct {
		Source recommend.VideoDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc.Source, nil
}

// HotVideos returns the most viewed videos, optionally narrowed to one tag,
// keyed by id with log10 of the view count. Videos below the admission
// floor are dropped.
func (c *Client) HotVideos(ctx context.Context, tag string, size int) (map[string]float64, error) {
	hits, err := c.search(ctx, "hot_videos", hotVideosQuery(tag, size))
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		if h.Source.Hot < hotAdmissionFloor {
			continue
		}
		out[h.ID] = math.Log10(h.Source.Hot)
	}
	return out, nil
}

// VideosByTags returns published videos matching any of the tags, keyed by
// id with their raw view counts. Relevance below the minimum score is cut
// at the index; low-viewed matches are cut here.
func (c *Client) VideosByTags(ctx context.Context, tags []string, size int) (map[string]float64, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	hits, err := c.search(ctx, "videos_by_tags", videosByTagsQuery(tags, size))
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		if h.Source.Hot <= tagMatchHotFloor {
			continue
		}
		out[h.ID] = h.Source.Hot
	}
	return out, nil
}

// hit is the slice of an OpenSearch hit this service reads.
type hit struct {
	ID     string `json:"_id"`
	Source struct {
		Hot float64 `json:"hot"`
	} `json:"_source"`
}

func (c *Client) search(ctx context.Context, queryName string, body map[string]any) ([]hit, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s query: %w", queryName, err)
	}

	res, err := opensearchapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(payload),
	}.Do(ctx, c.os)
	if err != nil {
		metrics.SearchErrors.WithLabelValues(queryName).Inc()
		return nil, fmt.Errorf("%s search: %w", queryName, err)
	}
	defer closeBody(res.Body)

	if res.IsError() {
		metrics.SearchErrors.WithLabelValues(queryName).Inc()
		return nil, fmt.Errorf("%s search: %s", queryName, res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", queryName, err)
	}
	return parsed.Hits.Hits, nil
}

// hotVideosQuery selects youtube music videos ordered by view count. An
// empty tag selects across the whole catalogue.
func hotVideosQuery(tag string, size int) map[string]any {
	must := []map[string]any{
		{"term": map[string]any{"type": "mv"}},
		{"term": map[string]any{"genre": "youtube"}},
	}
	if tag != "" {
		must = append(must, map[string]any{"term": map[string]any{"tag": tag}})
	}

	return map[string]any{
		"size":    size,
		"_source": []string{"hot"},
		"query": map[string]any{
			"bool": map[string]any{"must": must},
		},
		"sort": []map[string]any{
			{"hot": map[string]any{"order": "desc"}},
		},
	}
}

// videosByTagsQuery selects published youtube music videos sharing at
// least one tag, ranked by relevance.
func videosByTagsQuery(tags []string, size int) map[string]any {
	should := make([]map[string]any, len(tags))
	for i, t := range tags {
		should[i] = map[string]any{"term": map[string]any{"tag": t}}
	}

	return map[string]any{
		"size":      size,
		"_source":   []string{"hot"},
		"min_score": tagMatchMinScore,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{"term": map[string]any{"type": "mv"}},
					{"term": map[string]any{"genre": "youtube"}},
					{"term": map[string]any{"status": 1}},
				},
				"should":               should,
				"minimum_should_match": 1,
			},
		},
	}
}

func closeBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
