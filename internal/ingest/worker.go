// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package ingest

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/clipstream/vidrec/internal/metrics"
	"github.com/clipstream/vidrec/internal/recommend"
)

// Updater folds one behavior event into a device's ledger. It is
// implemented by recommend.ShardSet.
type Updater interface {
	Update(ctx context.Context, device, videoID string, op recommend.Operation) error
}

// Worker consumes behavior tasks and folds them into device ledgers.
// It implements suture.Service and runs under the supervision tree.
//
// Every message is acked regardless of outcome: a task that cannot be
// decoded or applied is logged and dropped, never redelivered. One bad
// event costs one signal; redelivery loops would cost the whole consumer.
type Worker struct {
	subscriber message.Subscriber
	shards     Updater
	logger     zerolog.Logger
}

// NewWorker creates a behavior worker over an established subscriber.
func NewWorker(sub message.Subscriber, shards Updater, logger zerolog.Logger) *Worker {
	return &Worker{
		subscriber: sub,
		shards:     shards,
		logger:     logger.With().Str("component", "worker").Logger(),
	}
}

// String names the worker in supervisor logs.
func (w *Worker) String() string {
	return "behavior-worker"
}

// Serve subscribes to the behavior topic and processes tasks until the
// context is canceled. A closed message channel restarts the service
// through the supervisor.
func (w *Worker) Serve(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, TopicBehaviorUpdate)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicBehaviorUpdate, err)
	}

	w.logger.Info().Str("topic", TopicBehaviorUpdate).Msg("behavior worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", TopicBehaviorUpdate)
			}
			w.process(ctx, msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	task, err := UnmarshalTask(msg.Payload)
	if err != nil {
		metrics.TasksConsumed.WithLabelValues("invalid").Inc()
		w.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable task")
		return
	}

	op, err := recommend.ParseOperation(task.Operation)
	if err != nil {
		metrics.TasksConsumed.WithLabelValues("invalid").Inc()
		w.logger.Warn().Err(err).Str("device", task.DeviceID).Msg("dropping task with unknown operation")
		return
	}

	if err := w.shards.Update(ctx, task.DeviceID, task.VideoID, op); err != nil {
		metrics.TasksConsumed.WithLabelValues("failed").Inc()
		w.logger.Warn().Err(err).
			Str("device", task.DeviceID).
			Str("video", task.VideoID).
			Msg("behavior update failed, task dropped")
		return
	}

	metrics.TasksConsumed.WithLabelValues("ok").Inc()
}
