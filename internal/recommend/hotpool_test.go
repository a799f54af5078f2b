// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadHotPoolFromStore(t *testing.T) {
	st := newMemStore()
	idx := newMemIndex()
	idx.queryErr = errors.New("index must not be queried when the key exists")

	entries := []Entry{
		{Member: "v1", Score: 7.5},
		{Member: "v2", Score: 8.1},
	}
	if err := st.Add(context.Background(), V1.HotPoolKey, entries); err != nil {
		t.Fatalf("seed hot pool: %v", err)
	}

	pool, err := LoadHotPool(context.Background(), st, idx, &memResolver{}, V1, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadHotPool: %v", err)
	}
	if pool.Len() != 2 {
		t.Errorf("pool size = %d, want 2", pool.Len())
	}
	if got := pool.Score("v2"); got != 8.1 {
		t.Errorf("Score(v2) = %v, want 8.1", got)
	}
}

func TestLoadHotPoolBuildsAndPersists(t *testing.T) {
	st := newMemStore()
	idx := newMemIndex()
	idx.hot[""] = map[string]float64{"va": math.Log10(5e7), "vb": math.Log10(3e7)}
	idx.hot["india"] = map[string]float64{"vb": math.Log10(3e7), "vc": math.Log10(2.5e7)}
	idx.hot["bollywood"] = map[string]float64{"vd": math.Log10(9e7)}
	idx.hot["series"] = map[string]float64{}

	pool, err := LoadHotPool(context.Background(), st, idx, &memResolver{}, V1, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadHotPool: %v", err)
	}
	if pool.Len() != 4 {
		t.Errorf("pool size = %d, want 4 (union deduplicates)", pool.Len())
	}
	for _, id := range []string{"va", "vb", "vc", "vd"} {
		if !pool.Contains(id) {
			t.Errorf("pool missing %s", id)
		}
	}

	// The built pool must be written back under the well-known key.
	if st.size(V1.HotPoolKey) != 4 {
		t.Errorf("persisted pool has %d members, want 4", st.size(V1.HotPoolKey))
	}
}

func TestLoadHotPoolRekeysPublishVariant(t *testing.T) {
	st := newMemStore()
	idx := newMemIndex()
	idx.hot[""] = map[string]float64{"va": 7.7, "vb": 7.5, "vc": 7.4}
	resolver := &memResolver{publish: map[string]string{"va": "pub-a", "vc": "pub-c"}}

	pool, err := LoadHotPool(context.Background(), st, idx, resolver, V2, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadHotPool: %v", err)
	}

	if !pool.Contains("va|pub-a") || !pool.Contains("vc|pub-c") {
		t.Errorf("publish-id members missing, pool ids: %v", pool.ids)
	}
	// vb has no publish id and must be dropped, not kept bare.
	if pool.Contains("vb") || pool.Len() != 2 {
		t.Errorf("unresolvable video survived rekeying, pool ids: %v", pool.ids)
	}
}

func TestLoadHotPoolErrors(t *testing.T) {
	t.Run("index failure", func(t *testing.T) {
		st := newMemStore()
		idx := newMemIndex()
		idx.queryErr = errors.New("search down")
		if _, err := LoadHotPool(context.Background(), st, idx, &memResolver{}, V1, zerolog.Nop()); err == nil {
			t.Error("expected error when the index is unreachable")
		}
	})

	t.Run("empty pool", func(t *testing.T) {
		st := newMemStore()
		idx := newMemIndex()
		if _, err := LoadHotPool(context.Background(), st, idx, &memResolver{}, V1, zerolog.Nop()); err == nil {
			t.Error("expected error for an empty hot pool")
		}
	})

	t.Run("resolver failure", func(t *testing.T) {
		st := newMemStore()
		idx := newMemIndex()
		idx.hot[""] = map[string]float64{"va": 7.7}
		resolver := &memResolver{err: errors.New("publish api down")}
		if _, err := LoadHotPool(context.Background(), st, idx, resolver, V2, zerolog.Nop()); err == nil {
			t.Error("expected error when publish resolution fails")
		}
	})
}

func TestHotPoolSample(t *testing.T) {
	pool := &HotPool{
		variant: V1,
		scores:  map[string]float64{"a": 1, "b": 2, "c": 3, "d": 4},
		ids:     []string{"a", "b", "c", "d"},
	}
	rng := rand.New(rand.NewSource(1))

	got := pool.Sample(rng, 3)
	if len(got) != 3 {
		t.Fatalf("Sample(3) returned %d ids", len(got))
	}
	seen := make(map[string]struct{}, len(got))
	for _, id := range got {
		if !pool.Contains(id) {
			t.Errorf("sampled id %s not in pool", id)
		}
		if _, dup := seen[id]; dup {
			t.Errorf("sample contains duplicate %s", id)
		}
		seen[id] = struct{}{}
	}

	if got := pool.Sample(rng, 10); len(got) != pool.Len() {
		t.Errorf("oversized sample returned %d ids, want %d", len(got), pool.Len())
	}
	if got := pool.Sample(rng, 0); got != nil {
		t.Errorf("Sample(0) = %v, want nil", got)
	}
}

func TestHotPoolSampleExcluding(t *testing.T) {
	pool := &HotPool{
		variant: V1,
		scores:  map[string]float64{"a": 1, "b": 2, "c": 3},
		ids:     []string{"a", "b", "c"},
	}
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		got := pool.SampleExcluding(rng, 2, "b")
		if len(got) != 2 {
			t.Fatalf("SampleExcluding returned %d ids, want 2", len(got))
		}
		for _, id := range got {
			if id == "b" {
				t.Fatal("excluded member was sampled")
			}
		}
	}
}
