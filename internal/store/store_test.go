// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package store

import (
	"reflect"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/clipstream/vidrec/internal/recommend"
)

func TestToEntries(t *testing.T) {
	zs := []redis.Z{
		{Member: "a", Score: 1.5},
		{Member: 42, Score: 2.0}, // non-string members are skipped
		{Member: "b", Score: -3.25},
	}

	got := toEntries(zs)
	want := []recommend.Entry{
		{Member: "a", Score: 1.5},
		{Member: "b", Score: -3.25},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toEntries() = %v, want %v", got, want)
	}
}

func TestToEntriesEmpty(t *testing.T) {
	if got := toEntries(nil); len(got) != 0 {
		t.Errorf("toEntries(nil) = %v, want empty", got)
	}
}
