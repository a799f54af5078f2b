// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r, err := NewResolver(Config{BaseURL: srv.URL}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r, srv
}

func TestResolve(t *testing.T) {
	r, _ := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/v1/pub/lookup" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}

		var body struct {
			Resources []struct {
				ResType string `json:"res_type"`
				ResID   string `json:"res_id"`
			} `json:"resources"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		for _, res := range body.Resources {
			if res.ResType != "video" {
				t.Errorf("res_type = %q, want video", res.ResType)
			}
		}

		// v2 is unknown upstream; v3 resolved but has no publish ids yet.
		fmt.Fprint(w, `{"data":[
			{"res_id":"v1","pub_ids":["p1","p1-alt"]},
			{"res_id":"v3","pub_ids":[]}
		]}`)
	})

	got, err := r.Resolve(context.Background(), []string{"v1", "v2", "v3"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || got["v1"] != "p1" {
		t.Errorf("Resolve = %v, want map[v1:p1]", got)
	}
}

func TestResolveChunksLargeBatches(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)

		var body struct {
			Resources []struct {
				ResID string `json:"res_id"`
			} `json:"resources"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Resources) > maxBatchSize {
			t.Errorf("batch of %d exceeds cap %d", len(body.Resources), maxBatchSize)
		}

		type entry struct {
			ResID  string   `json:"res_id"`
			PubIDs []string `json:"pub_ids"`
		}
		data := make([]entry, len(body.Resources))
		for i, res := range body.Resources {
			data[i] = entry{ResID: res.ResID, PubIDs: []string{"p-" + res.ResID}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("v%03d", i)
	}

	got, err := r.Resolve(context.Background(), ids)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 250 {
		t.Errorf("resolved %d ids, want 250", len(got))
	}
	if got["v042"] != "p-v042" {
		t.Errorf("v042 resolved to %q", got["v042"])
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("upstream called %d times, want 3", n)
	}
}

func TestResolveEmptyInput(t *testing.T) {
	r, _ := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		t.Error("upstream must not be called for an empty id set")
	})

	got, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve(nil) = %v, want empty", got)
	}
}

func TestResolveUpstreamError(t *testing.T) {
	r, _ := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.Copy(io.Discard, req.Body)
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := r.Resolve(context.Background(), []string{"v1"}); err == nil {
		t.Error("expected error on upstream failure")
	}
}

func TestNewResolverRequiresBaseURL(t *testing.T) {
	if _, err := NewResolver(Config{}, zerolog.Nop()); err == nil {
		t.Error("expected error for missing base url")
	}
}
