// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPService runs an http.Server as a supervised suture.Service with
// graceful shutdown on context cancellation.
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

// NewHTTPService wraps an http.Server for supervision.
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logger.With().Str("component", "http").Logger(),
	}
}

// String names the service in supervisor logs.
func (s *HTTPService) String() string {
	return "http-server"
}

// Serve runs the server until it fails or the context is canceled.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("graceful shutdown failed, closing")
			_ = s.server.Close()
		}
		<-errCh
		return ctx.Err()
	}
}
