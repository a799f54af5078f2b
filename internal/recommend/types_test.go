// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"math"
	"testing"
	"time"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		code    int
		want    Operation
		wantErr bool
	}{
		{1, OpWatch, false},
		{2, OpCollect, false},
		{3, OpShare, false},
		{4, OpStar, false},
		{5, OpDislike, false},
		{0, 0, true},
		{6, 0, true},
		{-1, 0, true},
	}

	for _, tt := range tests {
		op, err := ParseOperation(tt.code)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOperation(%d) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			continue
		}
		if err == nil && op != tt.want {
			t.Errorf("ParseOperation(%d) = %v, want %v", tt.code, op, tt.want)
		}
	}
}

func TestOperationWeights(t *testing.T) {
	tests := []struct {
		op   Operation
		want float64
	}{
		{OpWatch, 0.1},
		{OpCollect, 0.2},
		{OpShare, 0.3},
		{OpStar, 0.2},
		{OpDislike, -0.5},
		{Operation(9), 0},
	}

	for _, tt := range tests {
		if got := tt.op.Weight(); got != tt.want {
			t.Errorf("%v.Weight() = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestVariantLedgerKey(t *testing.T) {
	if got := V1.LedgerKey("abc"); got != "device|abc|recommend" {
		t.Errorf("V1.LedgerKey = %q", got)
	}
	if got := V2.LedgerKey("abc"); got != "device|abc|recommend|v2" {
		t.Errorf("V2.LedgerKey = %q", got)
	}
}

func TestServedScore(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	v1 := V1.ServedScore(now)
	if v1 != float64(1_700_000_000-2147483647) {
		t.Errorf("V1.ServedScore = %v", v1)
	}
	if v1 >= 0 {
		t.Errorf("V1 served score must be negative, got %v", v1)
	}

	v2 := V2.ServedScore(now)
	want := float64(1_700_000_000-2147483647) / 2e8
	if math.Abs(v2-want) > 1e-12 {
		t.Errorf("V2.ServedScore = %v, want %v", v2, want)
	}
	if v2 >= 0 || v2 < -100 {
		t.Errorf("V2 served score out of expected band: %v", v2)
	}

	// Later interactions must score closer to zero.
	later := now.Add(time.Hour)
	if !(V1.ServedScore(later) > v1) {
		t.Error("V1 served score is not monotonically increasing")
	}
	if !(V2.ServedScore(later) > v2) {
		t.Error("V2 served score is not monotonically increasing")
	}
}

func TestIsV1Device(t *testing.T) {
	tests := []struct {
		device string
		want   bool
	}{
		{"0abc", true},
		{"7ffe", true},
		{"8abc", false},
		{"fabc", false},
		{"zzz", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsV1Device(tt.device); got != tt.want {
			t.Errorf("IsV1Device(%q) = %v, want %v", tt.device, got, tt.want)
		}
	}
}
