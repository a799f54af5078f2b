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
	"sync"

	"github.com/rs/zerolog"
)

// Engine composes the hot pool, similarity recall, and ledger into the
// public recommendation operations for one serving variant. It is safe
// for concurrent use: the only mutable state is the sampling RNG, which
// is mutex-protected.
type Engine struct {
	variant    Variant
	hot        *HotPool
	ledger     *Ledger
	recall     *Recall
	recallSize int
	logger     zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine creates an engine over an already-loaded hot pool. recallSize
// bounds the candidate set fetched per behavior event; zero selects the
// default. The seed fixes the sampling RNG; zero selects a fixed default
// so tests and replays are reproducible.
func NewEngine(variant Variant, hot *HotPool, ledger *Ledger, recall *Recall, recallSize int, seed int64, logger zerolog.Logger) (*Engine, error) {
	if hot == nil || hot.Len() == 0 {
		return nil, fmt.Errorf("engine %s: hot pool is empty", variant.Name)
	}
	if recallSize <= 0 {
		recallSize = DefaultRecallSize
	}
	if seed == 0 {
		seed = 42
	}

	return &Engine{
		variant:    variant,
		hot:        hot,
		ledger:     ledger,
		recall:     recall,
		recallSize: recallSize,
		logger:     logger.With().Str("component", "engine").Str("variant", variant.Name).Logger(),
		rng:        rand.New(rand.NewSource(seed)), //nolint:gosec // sampling does not need crypto randomness
	}, nil
}

// Variant returns the engine's serving variant.
func (e *Engine) Variant() Variant {
	return e.variant
}

// GuessLike returns up to size videos similar to the seed, most popular
// first. When recall comes back empty the result is a uniform hot-pool
// sample that never contains the seed.
func (e *Engine) GuessLike(ctx context.Context, seedID string, size int) []string {
	candidates := e.recall.SimilarVideos(ctx, seedID, size)
	if len(candidates) == 0 {
		return e.sampleHotExcluding(size, seedID)
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if candidates[ids[i]] != candidates[ids[j]] {
			return candidates[ids[i]] > candidates[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if len(ids) > size {
		ids = ids[:size]
	}
	return ids
}

// Recommend drains up to size pending recommendations for the device,
// falling back to (and reseeding from) the hot pool when the ledger is
// empty. Returned ids are immediately marked served.
func (e *Engine) Recommend(ctx context.Context, device string, size int) ([]string, error) {
	return e.ledger.DrainForRead(ctx, device, size, e.sampleHot)
}

// Update folds one behavior event into the device's ledger. A seed with
// no recall candidates aborts the update silently; the event was consumed
// but produced no signal.
func (e *Engine) Update(ctx context.Context, device, videoID string, op Operation) error {
	if !op.Valid() {
		return fmt.Errorf("update for device %s: unknown operation code %d", device, int(op))
	}

	candidates := e.recall.SimilarVideos(ctx, videoID, e.recallSize)
	if len(candidates) == 0 {
		e.logger.Debug().Str("device", device).Str("seed", videoID).Msg("no recall candidates, update skipped")
		return nil
	}

	return e.ledger.MergeCandidates(ctx, device, videoID, op, candidates)
}

func (e *Engine) sampleHot(n int) []string {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.hot.Sample(e.rng, n)
}

func (e *Engine) sampleHotExcluding(n int, exclude string) []string {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.hot.SampleExcluding(e.rng, n, exclude)
}

// ShardSet routes devices to their serving engine. Routing is stateless:
// device ids starting with hex 0-7 stay on v1, the rest use v2.
type ShardSet struct {
	V1 *Engine
	V2 *Engine
}

// ForDevice returns the engine responsible for a device.
func (s *ShardSet) ForDevice(device string) *Engine {
	if IsV1Device(device) {
		return s.V1
	}
	return s.V2
}

// Update routes a behavior event to the device's engine.
func (s *ShardSet) Update(ctx context.Context, device, videoID string, op Operation) error {
	return s.ForDevice(device).Update(ctx, device, videoID, op)
}

// GuessLike serves the deviceless similarity endpoint. It always uses
// the first-generation engine, which is what legacy clients expect.
func (s *ShardSet) GuessLike(ctx context.Context, seedID string, size int) []string {
	return s.V1.GuessLike(ctx, seedID, size)
}

// Recommend routes a feed read to the device's engine.
func (s *ShardSet) Recommend(ctx context.Context, device string, size int) ([]string, error) {
	return s.ForDevice(device).Recommend(ctx, device, size)
}
