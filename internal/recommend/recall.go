// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/cache"
	"github.com/clipstream/vidrec/internal/metrics"
)

// Recall turns a seed video into a candidate map via tag similarity.
//
// Every failure mode collapses to an empty result: a missing seed document,
// a tagless seed, and index transport errors all mean "no recall", and the
// caller falls back to the hot pool or skips the update. Non-empty results
// are memoized per (seed, size) in a best-effort TTL cache.
type Recall struct {
	index    Index
	resolver PublishResolver
	variant  Variant
	cache    *cache.Cache
	logger   zerolog.Logger
}

// NewRecall creates a similarity recall stage. The cache may be nil to
// disable memoization; the resolver is only consulted for the publish-id
// variant.
func NewRecall(idx Index, resolver PublishResolver, variant Variant, recallCache *cache.Cache, logger zerolog.Logger) *Recall {
	return &Recall{
		index:    idx,
		resolver: resolver,
		variant:  variant,
		cache:    recallCache,
		logger:   logger.With().Str("component", "recall").Str("variant", variant.Name).Logger(),
	}
}

// SimilarVideos returns candidates similar to the seed, keyed by member id
// with their raw view counts. The seed itself is never in the result. The
// returned map is shared with the cache; callers must not mutate it.
func (r *Recall) SimilarVideos(ctx context.Context, seedID string, size int) map[string]float64 {
	key := seedID + "|" + strconv.Itoa(size)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			metrics.RecallCacheHits.Inc()
			return cached.(map[string]float64)
		}
		metrics.RecallCacheMisses.Inc()
	}

	result := r.similarVideos(ctx, seedID, size)
	if r.cache != nil && len(result) > 0 {
		r.cache.Set(key, result)
	}
	return result
}

func (r *Recall) similarVideos(ctx context.Context, seedID string, size int) map[string]float64 {
	doc, err := r.index.VideoDocument(ctx, seedID)
	if err != nil {
		r.logger.Debug().Err(err).Str("seed", seedID).Msg("seed document unavailable")
		return nil
	}

	tags := ExtractTags(doc)
	if len(tags) == 0 {
		return nil
	}

	candidates, err := r.index.VideosByTags(ctx, tags, size)
	if err != nil {
		r.logger.Warn().Err(err).Str("seed", seedID).Msg("tag-match query failed")
		return nil
	}
	delete(candidates, seedID)
	if len(candidates) == 0 {
		return nil
	}

	if !r.variant.UsePublishID {
		return candidates
	}
	return r.rekeyWithPublishIDs(ctx, candidates)
}

// rekeyWithPublishIDs maps candidates to "{id}|{publish_id}" members,
// dropping any id the resolver cannot map.
func (r *Recall) rekeyWithPublishIDs(ctx context.Context, candidates map[string]float64) map[string]float64 {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}

	resolved, err := r.resolver.Resolve(ctx, ids)
	if err != nil {
		r.logger.Warn().Err(err).Msg("publish id resolution failed")
		return nil
	}

	out := make(map[string]float64, len(resolved))
	for id, popularity := range candidates {
		pub, ok := resolved[id]
		if !ok {
			continue
		}
		out[id+"|"+pub] = popularity
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
