// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds router-level settings.
type RouterConfig struct {
	// RateLimit is requests per client IP per minute. Zero disables.
	RateLimit int

	CORSOrigins []string
}

// NewRouter wires the HTTP surface: recommendation endpoints, health, and
// Prometheus metrics.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/recommend", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByRealIP(cfg.RateLimit, time.Minute))
		}
		r.Use(PrometheusMetrics)

		r.Get("/video/guess-like", h.GuessLike)
		r.Get("/device/video/recommend", h.Recommend)
		r.Post("/device/video/behavior", h.Behavior)
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByRealIP(1000, time.Minute))
		r.Get("/", h.Health)
		r.Get("/live", h.HealthLive)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
