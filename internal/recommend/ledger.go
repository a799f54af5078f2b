// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/metrics"
)

// LedgerCaps bounds the two halves of a device ledger. Zero values fall
// back to the normative defaults.
type LedgerCaps struct {
	Pending int
	Served  int
}

// Ledger manages per-device recommendation state in the shared store.
//
// Each device owns one sorted set. The sign of a member's score is its
// state: positive means pending, non-positive means recently served with
// magnitude encoding recency. Every mutation preserves that invariant
// because scores are computed locally before the single atomic write.
type Ledger struct {
	store   Store
	variant Variant
	caps    LedgerCaps
	now     func() time.Time
	logger  zerolog.Logger
}

// NewLedger creates a ledger manager for one serving variant.
func NewLedger(st Store, variant Variant, caps LedgerCaps, logger zerolog.Logger) *Ledger {
	if caps.Pending <= 0 {
		caps.Pending = DefaultPendingCap
	}
	if caps.Served <= 0 {
		caps.Served = DefaultServedCap
	}

	return &Ledger{
		store:   st,
		variant: variant,
		caps:    caps,
		now:     time.Now,
		logger:  logger.With().Str("component", "ledger").Str("variant", variant.Name).Logger(),
	}
}

// TopPending returns up to n pending members, highest score first.
func (l *Ledger) TopPending(ctx context.Context, device string, n int) ([]string, error) {
	entries, err := l.store.TopByScore(ctx, l.variant.LedgerKey(device), 0, int64(n))
	if err != nil {
		metrics.StoreErrors.WithLabelValues("top_pending").Inc()
		return nil, fmt.Errorf("read pending for device %s: %w", device, err)
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Member
	}
	return ids, nil
}

// MarkServed rewrites each member's score to the current served score so
// it cannot be drained again until it ages out of the served half.
func (l *Ledger) MarkServed(ctx context.Context, device string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	score := l.variant.ServedScore(l.now())
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{Member: id, Score: score}
	}

	if err := l.store.Add(ctx, l.variant.LedgerKey(device), entries); err != nil {
		metrics.StoreErrors.WithLabelValues("mark_served").Inc()
		return fmt.Errorf("mark served for device %s: %w", device, err)
	}
	return nil
}

// MergeCandidates folds a behavior event into the device's ledger.
//
// The just-interacted seed is forced into the served half so it cannot be
// re-recommended immediately. Each candidate either boosts an existing
// entry by weight*log10(popularity) or enters as a fresh pending entry at
// log10(popularity). The result is re-sorted, truncated to the pending and
// served caps, and written back in one atomic replace.
//
// An empty ledger is left empty: merges never create state for devices
// that have not been served yet.
func (l *Ledger) MergeCandidates(ctx context.Context, device, seedID string, op Operation, candidates map[string]float64) error {
	key := l.variant.LedgerKey(device)

	current, err := l.store.RangeWithScores(ctx, key, maxLedgerRead)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("merge_read").Inc()
		metrics.MergesTotal.WithLabelValues(l.variant.Name, "store_error").Inc()
		return fmt.Errorf("read ledger for device %s: %w", device, err)
	}
	if len(current) == 0 {
		metrics.MergesTotal.WithLabelValues(l.variant.Name, "empty_ledger").Inc()
		return nil
	}

	working := make(map[string]float64, len(current)+len(candidates))
	for _, e := range current {
		working[e.Member] = e.Score
	}
	working[seedID] = l.variant.ServedScore(l.now())

	weight := op.Weight()
	for id, popularity := range candidates {
		if popularity <= 0 {
			continue
		}
		boost := math.Log10(popularity)

		existing, ok := working[id]
		switch {
		case !ok:
			working[id] = boost
		case l.variant.UnconditionalBoost || existing > 0:
			working[id] = existing + weight*boost
		}
	}

	ordered := make([]Entry, 0, len(working))
	for id, score := range working {
		ordered = append(ordered, Entry{Member: id, Score: score})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Member < ordered[j].Member
	})

	final := make([]Entry, 0, len(ordered))
	pending, served := 0, 0
	for _, e := range ordered {
		if e.Score > 0 {
			if pending >= l.caps.Pending {
				continue
			}
			pending++
		} else {
			if served >= l.caps.Served {
				continue
			}
			served++
		}
		final = append(final, e)
	}

	if err := l.store.Replace(ctx, key, final); err != nil {
		metrics.StoreErrors.WithLabelValues("merge_write").Inc()
		metrics.MergesTotal.WithLabelValues(l.variant.Name, "store_error").Inc()
		return fmt.Errorf("write ledger for device %s: %w", device, err)
	}

	metrics.MergesTotal.WithLabelValues(l.variant.Name, "applied").Inc()
	l.logger.Debug().
		Str("device", device).
		Str("seed", seedID).
		Stringer("operation", op).
		Int("pending", pending).
		Int("served", served).
		Msg("ledger merged")
	return nil
}

// DrainForRead pops up to n pending members for serving. When the ledger
// is empty (or unreadable) it is rebuilt from a hot-pool sample: the first
// n sampled ids are served immediately and the remainder seed the ledger
// as pending entries with a 30-day TTL. Every returned id is re-scored as
// served so subsequent drains skip it.
func (l *Ledger) DrainForRead(ctx context.Context, device string, n int, sample func(n int) []string) ([]string, error) {
	key := l.variant.LedgerKey(device)

	ids, err := l.TopPending(ctx, device, n)
	if err != nil {
		// Unreadable ledgers fall back to the hot pool below.
		l.logger.Warn().Err(err).Str("device", device).Msg("pending read failed, falling back to hot pool")
		ids = nil
	}

	if len(ids) == 0 {
		if err := l.store.Delete(ctx, key); err != nil {
			metrics.StoreErrors.WithLabelValues("drain_delete").Inc()
			l.logger.Warn().Err(err).Str("device", device).Msg("ledger delete failed")
		}

		pool := sample(ReseedSampleSize)
		if len(pool) == 0 {
			return nil, fmt.Errorf("hot pool sample is empty for device %s", device)
		}

		serve := n
		if serve > len(pool) {
			serve = len(pool)
		}
		ids = pool[:serve]

		rest := pool[serve:]
		if len(rest) > 0 {
			entries := make([]Entry, len(rest))
			for i, id := range rest {
				entries[i] = Entry{Member: id, Score: reseedScore}
			}
			if err := l.store.Add(ctx, key, entries); err != nil {
				metrics.StoreErrors.WithLabelValues("drain_seed").Inc()
				l.logger.Warn().Err(err).Str("device", device).Msg("ledger seed failed")
			} else if err := l.store.Expire(ctx, key, LedgerTTL); err != nil {
				metrics.StoreErrors.WithLabelValues("drain_expire").Inc()
				l.logger.Warn().Err(err).Str("device", device).Msg("ledger expire failed")
			}
		}
		metrics.DrainsTotal.WithLabelValues(l.variant.Name, "hot_pool").Inc()
	} else {
		metrics.DrainsTotal.WithLabelValues(l.variant.Name, "ledger").Inc()
	}

	if err := l.MarkServed(ctx, device, ids); err != nil {
		l.logger.Warn().Err(err).Str("device", device).Msg("mark served failed")
	}
	return ids, nil
}
