// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/vidrec/internal/logging"
	"github.com/clipstream/vidrec/internal/metrics"
)

// RequestID assigns each request a correlation id, exposes it as the
// X-Request-ID header, and threads it through the logging context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// PrometheusMetrics records request counts, durations, and in-flight
// gauge for every handled request.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		start := time.Now()
		wrapper := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		metrics.RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode), time.Since(start))
	})
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
