// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package api provides HTTP routing and handlers using the Chi router.
package api

import (
	"net/http"

	"github.com/goccy/go-json"
)

// envelope is the fixed response shape of every recommendation endpoint.
type envelope struct {
	Code   int    `json:"code"`
	Result string `json:"result"`
	Data   any    `json:"data"`
}

// videoRef is one recommendation in the publish-id response shape.
type videoRef struct {
	VideoID   string `json:"video_id"`
	PublishID string `json:"publish_id"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: 0, Result: "ok", Data: data})
}

// writeError writes a failure envelope. The code is nonzero and the
// result carries a short human-readable reason.
func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, envelope{Code: 1, Result: reason, Data: nil})
}
