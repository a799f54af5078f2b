// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package ingest is the asynchronous behavior pipeline: accepted behavior
// events are debounced against the shared store, published to NATS
// JetStream, and folded into device ledgers by a background worker.
package ingest

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

const (
	// TopicBehaviorUpdate carries one task per accepted behavior event.
	TopicBehaviorUpdate = "recommend.video.update"

	// StreamName is the JetStream stream backing the recommend subjects.
	// Stream names cannot contain dots, so the stream is provisioned
	// explicitly rather than auto-named after the topic.
	StreamName = "RECOMMEND"

	// DefaultDebounceTTL is the window in which repeated events for the
	// same (device, video, operation) collapse into one task.
	DefaultDebounceTTL = 5 * time.Minute
)

// Task is the wire form of one behavior event.
type Task struct {
	DeviceID  string `json:"device_id"`
	VideoID   string `json:"video_id"`
	Operation int    `json:"operation"`
}

// Marshal encodes the task for publishing.
func (t Task) Marshal() ([]byte, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return payload, nil
}

// UnmarshalTask decodes a task payload.
func UnmarshalTask(payload []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	if t.DeviceID == "" || t.VideoID == "" {
		return Task{}, fmt.Errorf("task missing device or video id")
	}
	return t, nil
}

// DebounceKey is the shared-store key claimed for one behavior event.
func DebounceKey(device, video string, operation int) string {
	return fmt.Sprintf("operation|%s|%s|%d", device, video, operation)
}
