// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/metrics"
)

// hotQuery describes one slice of the hot-pool union.
type hotQuery struct {
	tag  string
	size int
}

// hotPoolQueries is the fixed union that seeds a hot pool when the
// well-known key is absent. The regional slices keep the pool from being
// dominated by a single catalogue segment.
var hotPoolQueries = []hotQuery{
	{tag: "", size: 700},
	{tag: "india", size: 200},
	{tag: "bollywood", size: 500},
	{tag: "series", size: 200},
}

// HotPool is the process-local mirror of the globally popular video set.
// It is immutable after construction; refreshing the pool means rebuilding
// the engine. Every score is log10 of a view count >= HotAdmissionFloor,
// so all scores are positive and bounded.
type HotPool struct {
	variant Variant
	scores  map[string]float64
	ids     []string // sorted, for deterministic sampling under a fixed seed
}

// LoadHotPool returns the hot pool for a variant. If the well-known key
// exists in the shared store the pool is read from it; otherwise it is
// built from the content index, written back as a sorted set, and kept.
// Any failure here is fatal to engine startup: without a hot pool the
// cold-start and fallback paths cannot serve.
func LoadHotPool(ctx context.Context, st Store, idx Index, resolver PublishResolver, variant Variant, logger zerolog.Logger) (*HotPool, error) {
	logger = logger.With().Str("component", "hotpool").Str("variant", variant.Name).Logger()

	exists, err := st.Exists(ctx, variant.HotPoolKey)
	if err != nil {
		return nil, fmt.Errorf("check hot pool key %s: %w", variant.HotPoolKey, err)
	}

	var scores map[string]float64
	if exists {
		entries, err := st.RangeWithScores(ctx, variant.HotPoolKey, 0)
		if err != nil {
			return nil, fmt.Errorf("read hot pool %s: %w", variant.HotPoolKey, err)
		}
		scores = make(map[string]float64, len(entries))
		for _, e := range entries {
			scores[e.Member] = e.Score
		}
		logger.Info().Int("videos", len(scores)).Msg("hot pool loaded from store")
	} else {
		scores, err = buildHotPool(ctx, idx, resolver, variant)
		if err != nil {
			return nil, err
		}

		entries := make([]Entry, 0, len(scores))
		for id, score := range scores {
			entries = append(entries, Entry{Member: id, Score: score})
		}
		if err := st.Add(ctx, variant.HotPoolKey, entries); err != nil {
			return nil, fmt.Errorf("persist hot pool %s: %w", variant.HotPoolKey, err)
		}
		logger.Info().Int("videos", len(scores)).Msg("hot pool built and persisted")
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("hot pool %s is empty", variant.HotPoolKey)
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	metrics.HotPoolSize.WithLabelValues(variant.Name).Set(float64(len(ids)))

	return &HotPool{variant: variant, scores: scores, ids: ids}, nil
}

// buildHotPool unions the fixed hot queries. For the publish-id variant,
// members are rekeyed through the resolver and unresolvable videos drop out.
func buildHotPool(ctx context.Context, idx Index, resolver PublishResolver, variant Variant) (map[string]float64, error) {
	union := make(map[string]float64)
	for _, q := range hotPoolQueries {
		part, err := idx.HotVideos(ctx, q.tag, q.size)
		if err != nil {
			return nil, fmt.Errorf("hot query tag=%q size=%d: %w", q.tag, q.size, err)
		}
		for id, score := range part {
			union[id] = score
		}
	}

	if !variant.UsePublishID {
		return union, nil
	}

	ids := make([]string, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	resolved, err := resolver.Resolve(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve publish ids for hot pool: %w", err)
	}

	rekeyed := make(map[string]float64, len(resolved))
	for id, score := range union {
		pub, ok := resolved[id]
		if !ok {
			continue
		}
		rekeyed[id+"|"+pub] = score
	}
	return rekeyed, nil
}

// Len returns the number of videos in the pool.
func (p *HotPool) Len() int {
	return len(p.ids)
}

// Contains reports whether the pool holds the given member.
func (p *HotPool) Contains(id string) bool {
	_, ok := p.scores[id]
	return ok
}

// Score returns the pool score for a member, or 0 when absent.
func (p *HotPool) Score(id string) float64 {
	return p.scores[id]
}

// Sample draws n members uniformly without replacement. When n meets or
// exceeds the pool size a permutation of the whole pool is returned.
// The caller owns the RNG and its synchronization.
func (p *HotPool) Sample(rng *rand.Rand, n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(p.ids) {
		n = len(p.ids)
	}

	perm := rng.Perm(len(p.ids))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = p.ids[perm[i]]
	}
	return out
}

// SampleExcluding draws up to n members uniformly, never returning the
// excluded member.
func (p *HotPool) SampleExcluding(rng *rand.Rand, n int, exclude string) []string {
	if n <= 0 {
		return nil
	}

	perm := rng.Perm(len(p.ids))
	out := make([]string, 0, n)
	for _, i := range perm {
		if p.ids[i] == exclude {
			continue
		}
		out = append(out, p.ids[i])
		if len(out) == n {
			break
		}
	}
	return out
}
