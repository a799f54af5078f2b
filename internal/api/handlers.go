// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/logging"
	"github.com/clipstream/vidrec/internal/recommend"
)

// Recommender serves the read-side recommendation operations. It is
// implemented by recommend.ShardSet.
type Recommender interface {
	GuessLike(ctx context.Context, seedID string, size int) []string
	Recommend(ctx context.Context, device string, size int) ([]string, error)
}

// Submitter accepts behavior events. It is implemented by ingest.Ingestor.
type Submitter interface {
	Submit(ctx context.Context, device, video string, op recommend.Operation) (bool, error)
}

// Pinger reports one dependency's reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes handler behavior.
type Options struct {
	// DefaultSize is the result count when the client omits size.
	DefaultSize int

	// MaxSize caps the requested result count.
	MaxSize int

	// PublishIDMinVersion is the client version from which the feed
	// response carries publish ids alongside video ids.
	PublishIDMinVersion int
}

// Handler serves the recommendation HTTP surface.
type Handler struct {
	recommender Recommender
	submitter   Submitter
	opts        Options
	validate    *validator.Validate
	logger      zerolog.Logger

	// health check targets, keyed by dependency name
	dependencies map[string]Pinger
}

// NewHandler creates the HTTP handler set.
func NewHandler(rec Recommender, sub Submitter, opts Options, deps map[string]Pinger, logger zerolog.Logger) *Handler {
	if opts.DefaultSize <= 0 {
		opts.DefaultSize = 10
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 50
	}

	return &Handler{
		recommender:  rec,
		submitter:    sub,
		opts:         opts,
		validate:     validator.New(),
		logger:       logger.With().Str("component", "api").Logger(),
		dependencies: deps,
	}
}

// GuessLike handles GET /recommend/video/guess-like.
// Query: id (required), size (optional).
func (h *Handler) GuessLike(w http.ResponseWriter, r *http.Request) {
	video := r.URL.Query().Get("id")
	if video == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	size := h.parseSize(r)

	ids := h.recommender.GuessLike(r.Context(), video, size)
	writeData(w, stripPublishIDs(ids))
}

// Recommend handles GET /recommend/device/video/recommend.
// Query: device (required), size (optional), version (optional).
// Clients at or above the publish-id version get {video_id, publish_id}
// objects; older clients get a flat id list.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	if device == "" {
		writeError(w, http.StatusBadRequest, "device is required")
		return
	}
	size := h.parseSize(r)

	ids, err := h.recommender.Recommend(r.Context(), device, size)
	if err != nil {
		logger := h.log(r.Context())
		logger.Error().Err(err).Str("device", device).Msg("recommend failed")
		writeError(w, http.StatusInternalServerError, "recommendation unavailable")
		return
	}

	version, _ := strconv.Atoi(r.URL.Query().Get("version"))
	if version >= h.opts.PublishIDMinVersion && h.opts.PublishIDMinVersion > 0 {
		writeData(w, toVideoRefs(ids))
		return
	}
	writeData(w, stripPublishIDs(ids))
}

// behaviorRequest is the POST body of the behavior endpoint.
type behaviorRequest struct {
	Device    string `json:"device" validate:"required"`
	VideoID   string `json:"video_id"`
	Operation int    `json:"operation" validate:"required,min=1,max=5"`
}

// Behavior handles POST /recommend/device/video/behavior. An empty
// video_id is accepted and ignored so clients can fire events before the
// video resolves.
func (h *Handler) Behavior(w http.ResponseWriter, r *http.Request) {
	var req behaviorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid behavior request")
		return
	}
	if req.VideoID == "" {
		writeData(w, nil)
		return
	}

	op, err := recommend.ParseOperation(req.Operation)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown operation")
		return
	}

	if _, err := h.submitter.Submit(r.Context(), req.Device, req.VideoID, op); err != nil {
		logger := h.log(r.Context())
		logger.Error().Err(err).Str("device", req.Device).Msg("behavior submit failed")
		writeError(w, http.StatusInternalServerError, "behavior not recorded")
		return
	}
	writeData(w, nil)
}

// Health handles GET /api/v1/health: all dependencies are pinged and the
// response degrades to 503 when any is down.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	type depStatus struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	status := http.StatusOK
	deps := make(map[string]depStatus, len(h.dependencies))
	for name, p := range h.dependencies {
		if err := p.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = depStatus{Status: "down", Error: err.Error()}
			continue
		}
		deps[name] = depStatus{Status: "up"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, envelope{Code: 0, Result: overall, Data: deps})
}

// HealthLive handles GET /api/v1/health/live: process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeData(w, map[string]string{"status": "alive"})
}

// log enriches the handler logger with the request correlation id.
func (h *Handler) log(ctx context.Context) zerolog.Logger {
	logger := h.logger
	if id := logging.RequestID(ctx); id != "" {
		logger = logger.With().Str("request_id", id).Logger()
	}
	return logger
}

func (h *Handler) parseSize(r *http.Request) int {
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 {
		return h.opts.DefaultSize
	}
	if size > h.opts.MaxSize {
		return h.opts.MaxSize
	}
	return size
}

// toVideoRefs splits "{id}|{publish_id}" members into reference objects.
// Members without a publish id keep an empty publish_id field.
func toVideoRefs(ids []string) []videoRef {
	refs := make([]videoRef, len(ids))
	for i, id := range ids {
		video, pub, _ := strings.Cut(id, "|")
		refs[i] = videoRef{VideoID: video, PublishID: pub}
	}
	return refs
}

// stripPublishIDs reduces members to bare video ids for legacy clients.
func stripPublishIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		video, _, _ := strings.Cut(id, "|")
		out[i] = video
	}
	return out
}
