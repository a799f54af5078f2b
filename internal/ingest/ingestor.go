// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/metrics"
	"github.com/clipstream/vidrec/internal/recommend"
)

// Ingestor accepts behavior events at the API edge: it debounces them
// against the shared store and publishes one task per accepted event.
type Ingestor struct {
	store       recommend.Store
	publisher   message.Publisher
	debounceTTL time.Duration
	logger      zerolog.Logger
}

// NewIngestor creates a behavior ingestor.
func NewIngestor(st recommend.Store, pub message.Publisher, debounceTTL time.Duration, logger zerolog.Logger) *Ingestor {
	if debounceTTL <= 0 {
		debounceTTL = DefaultDebounceTTL
	}
	return &Ingestor{
		store:       st,
		publisher:   pub,
		debounceTTL: debounceTTL,
		logger:      logger.With().Str("component", "ingestor").Logger(),
	}
}

// Submit records one behavior event. It returns false when the event was
// debounced as a duplicate. A debounced event is not an error: the caller
// acknowledges it exactly like an accepted one.
func (i *Ingestor) Submit(ctx context.Context, device, video string, op recommend.Operation) (bool, error) {
	if !op.Valid() {
		return false, fmt.Errorf("submit for device %s: unknown operation code %d", device, int(op))
	}

	fresh, err := i.store.SetNX(ctx, DebounceKey(device, video, int(op)), i.debounceTTL)
	if err != nil {
		return false, fmt.Errorf("debounce check for device %s: %w", device, err)
	}
	if !fresh {
		metrics.BehaviorDebounced.WithLabelValues(op.String()).Inc()
		return false, nil
	}

	payload, err := Task{DeviceID: device, VideoID: video, Operation: int(op)}.Marshal()
	if err != nil {
		return false, err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("operation", strconv.Itoa(int(op)))
	if err := i.publisher.Publish(TopicBehaviorUpdate, msg); err != nil {
		return false, fmt.Errorf("publish task for device %s: %w", device, err)
	}

	metrics.BehaviorAccepted.WithLabelValues(op.String()).Inc()
	metrics.TasksPublished.Inc()
	i.logger.Debug().
		Str("device", device).
		Str("video", video).
		Stringer("operation", op).
		Msg("behavior task published")
	return true, nil
}
