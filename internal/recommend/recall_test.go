// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/cache"
)

func TestSimilarVideos(t *testing.T) {
	idx := newMemIndex()
	idx.docs["seed"] = &VideoDocument{Title: "Bollywood Hits", Tags: []string{"music"}}
	idx.byTag = map[string]float64{"seed": 5e6, "v1": 2e6, "v2": 8e5}

	r := NewRecall(idx, &memResolver{}, V1, nil, zerolog.Nop())
	got := r.SimilarVideos(context.Background(), "seed", 20)

	if _, ok := got["seed"]; ok {
		t.Error("seed video present in its own recall set")
	}
	if len(got) != 2 {
		t.Fatalf("recall returned %d candidates, want 2", len(got))
	}
	if got["v1"] != 2e6 || got["v2"] != 8e5 {
		t.Errorf("candidate popularity wrong: %v", got)
	}
}

func TestSimilarVideosEmptyOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(idx *memIndex)
	}{
		{
			name:  "missing seed document",
			setup: func(idx *memIndex) {},
		},
		{
			name: "tagless seed",
			setup: func(idx *memIndex) {
				idx.docs["seed"] = &VideoDocument{Title: "a ☀"}
			},
		},
		{
			name: "document fetch error",
			setup: func(idx *memIndex) {
				idx.docErr = errors.New("index down")
			},
		},
		{
			name: "tag query error",
			setup: func(idx *memIndex) {
				idx.docs["seed"] = &VideoDocument{Tags: []string{"music"}}
				idx.queryErr = errors.New("index down")
			},
		},
		{
			name: "only the seed matches",
			setup: func(idx *memIndex) {
				idx.docs["seed"] = &VideoDocument{Tags: []string{"music"}}
				idx.byTag = map[string]float64{"seed": 5e6}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := newMemIndex()
			tt.setup(idx)
			r := NewRecall(idx, &memResolver{}, V1, nil, zerolog.Nop())
			if got := r.SimilarVideos(context.Background(), "seed", 20); len(got) != 0 {
				t.Errorf("recall = %v, want empty", got)
			}
		})
	}
}

func TestSimilarVideosPublishRekeying(t *testing.T) {
	idx := newMemIndex()
	idx.docs["seed"] = &VideoDocument{Tags: []string{"music"}}
	idx.byTag = map[string]float64{"v1": 2e6, "v2": 8e5, "v3": 5e5}
	resolver := &memResolver{publish: map[string]string{"v1": "p1", "v3": "p3"}}

	r := NewRecall(idx, resolver, V2, nil, zerolog.Nop())
	got := r.SimilarVideos(context.Background(), "seed", 20)

	if len(got) != 2 {
		t.Fatalf("recall returned %d candidates, want 2: %v", len(got), got)
	}
	if got["v1|p1"] != 2e6 || got["v3|p3"] != 5e5 {
		t.Errorf("rekeyed candidates wrong: %v", got)
	}

	t.Run("resolver failure collapses to empty", func(t *testing.T) {
		r := NewRecall(idx, &memResolver{err: errors.New("publish api down")}, V2, nil, zerolog.Nop())
		if got := r.SimilarVideos(context.Background(), "seed", 20); len(got) != 0 {
			t.Errorf("recall = %v, want empty", got)
		}
	})
}

func TestSimilarVideosCaching(t *testing.T) {
	idx := newMemIndex()
	idx.docs["seed"] = &VideoDocument{Tags: []string{"music"}}
	idx.byTag = map[string]float64{"v1": 2e6}

	c := cache.New(time.Minute)
	defer c.Close()
	r := NewRecall(idx, &memResolver{}, V1, c, zerolog.Nop())

	first := r.SimilarVideos(context.Background(), "seed", 20)
	second := r.SimilarVideos(context.Background(), "seed", 20)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("recall sizes: %d then %d, want 1 and 1", len(first), len(second))
	}
	if idx.tagQueryCount() != 1 {
		t.Errorf("index queried %d times, want 1 (second call cached)", idx.tagQueryCount())
	}

	// A different size is a different cache entry.
	r.SimilarVideos(context.Background(), "seed", 5)
	if idx.tagQueryCount() != 2 {
		t.Errorf("index queried %d times, want 2", idx.tagQueryCount())
	}
}

func TestSimilarVideosEmptyResultsNotCached(t *testing.T) {
	idx := newMemIndex()
	idx.docs["seed"] = &VideoDocument{Tags: []string{"music"}}
	idx.queryErr = errors.New("index down")

	c := cache.New(time.Minute)
	defer c.Close()
	r := NewRecall(idx, &memResolver{}, V1, c, zerolog.Nop())

	if got := r.SimilarVideos(context.Background(), "seed", 20); len(got) != 0 {
		t.Fatalf("recall = %v, want empty", got)
	}

	// Once the index recovers, the next call must reach it again.
	idx.mu.Lock()
	idx.queryErr = nil
	idx.byTag = map[string]float64{"v1": 2e6}
	idx.mu.Unlock()

	if got := r.SimilarVideos(context.Background(), "seed", 20); len(got) != 1 {
		t.Errorf("recall after recovery = %v, want one candidate", got)
	}
}
