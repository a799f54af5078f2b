// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"context"
	"fmt"
	"time"
)

// Operational constants. The thresholds and caps come from the serving
// history of the upstream content platform and are not tunable per request.
const (
	// HotAdmissionFloor is the minimum view count for hot-pool admission.
	HotAdmissionFloor = 20_000_000

	// TagMatchHotFloor is the minimum view count for tag-match candidates.
	TagMatchHotFloor = 100_000

	// DefaultPendingCap bounds the "pending to recommend" half of a ledger.
	DefaultPendingCap = 500

	// DefaultServedCap bounds the "recently served" half of a ledger.
	// Historical deployments used 100 for the v1 ledger; 500 is the
	// current normative value for both variants.
	DefaultServedCap = 500

	// DefaultRecallSize is the candidate count fetched per behavior update.
	DefaultRecallSize = 20

	// ReseedSampleSize is the number of hot-pool videos drawn when a read
	// finds an empty ledger.
	ReseedSampleSize = 200

	// LedgerTTL is the idle lifetime of a device ledger.
	LedgerTTL = 30 * 24 * time.Hour

	// maxLedgerRead caps how many entries a merge reads back.
	maxLedgerRead = 1000

	// reseedScore is the pending score given to freshly seeded entries.
	reseedScore = 1.0

	// servedEpochOffset shifts unix time negative for served scores.
	servedEpochOffset int64 = 2147483647

	// v2ServedScale rescales v2 served scores so they stay close to zero.
	v2ServedScale = 2e8
)

// Operation is a user behavior event kind. The wire codes are fixed.
type Operation int

// Behavior operation codes.
const (
	OpWatch   Operation = 1
	OpCollect Operation = 2
	OpShare   Operation = 3
	OpStar    Operation = 4
	OpDislike Operation = 5
)

// operationWeights maps each operation to its score contribution factor.
var operationWeights = map[Operation]float64{
	OpWatch:   0.1,
	OpCollect: 0.2,
	OpShare:   0.3,
	OpStar:    0.2,
	OpDislike: -0.5,
}

// Valid reports whether op is a known operation code.
func (op Operation) Valid() bool {
	_, ok := operationWeights[op]
	return ok
}

// Weight returns the merge weight for op. Unknown operations weigh zero.
func (op Operation) Weight() float64 {
	return operationWeights[op]
}

// String returns the operation name for logging.
func (op Operation) String() string {
	switch op {
	case OpWatch:
		return "watch"
	case OpCollect:
		return "collect"
	case OpShare:
		return "share"
	case OpStar:
		return "star"
	case OpDislike:
		return "dislike"
	default:
		return fmt.Sprintf("operation(%d)", int(op))
	}
}

// ParseOperation validates a wire operation code.
func ParseOperation(code int) (Operation, error) {
	op := Operation(code)
	if !op.Valid() {
		return 0, fmt.Errorf("unknown operation code %d", code)
	}
	return op, nil
}

// Entry is one sorted-set member with its score.
type Entry struct {
	Member string
	Score  float64
}

// Store is the subset of the shared key/value store the engine needs.
// Implemented by the store package over Redis; tests use in-memory fakes.
// All operations are per-key atomic; Replace must remove the previous
// members and write the new ones in one transaction.
type Store interface {
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// RangeWithScores returns up to limit members of the sorted set at key
	// together with their scores, lowest score first. limit <= 0 means all.
	RangeWithScores(ctx context.Context, key string, limit int64) ([]Entry, error)

	// TopByScore returns up to count members with score >= min, highest
	// score first.
	TopByScore(ctx context.Context, key string, min float64, count int64) ([]Entry, error)

	// Add writes the entries into the sorted set at key, updating scores
	// of existing members.
	Add(ctx context.Context, key string, entries []Entry) error

	// Replace atomically swaps the sorted set at key for the given entries.
	Replace(ctx context.Context, key string, entries []Entry) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Expire sets the TTL of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SetNX creates a marker key with a TTL; it returns false when the key
	// already existed.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// VideoDocument is the slice of an indexed video the engine reads. The
// index stores the tag list under the singular field name.
type VideoDocument struct {
	Title string   `json:"title"`
	Tags  []string `json:"tag"`
}

// Index is the content index contract: side-effect-free queries over the
// indexed video corpus. Implemented by the search package over OpenSearch.
type Index interface {
	// VideoDocument fetches one video's tag metadata.
	VideoDocument(ctx context.Context, id string) (*VideoDocument, error)

	// HotVideos returns the admitted hot videos for an optional tag,
	// keyed by id with score log10(view count).
	HotVideos(ctx context.Context, tag string, size int) (map[string]float64, error)

	// VideosByTags returns videos matching at least one tag, keyed by id
	// with their raw view counts.
	VideosByTags(ctx context.Context, tags []string, size int) (map[string]float64, error)
}

// PublishResolver maps video ids to their primary publish id. Ids that
// cannot be resolved are absent from the result; that is not an error.
type PublishResolver interface {
	Resolve(ctx context.Context, ids []string) (map[string]string, error)
}

// Variant selects between the two normative serving configurations.
type Variant struct {
	// Name labels the variant in keys, logs, and metrics.
	Name string

	// HotPoolKey is the well-known shared-store key of the hot pool.
	HotPoolKey string

	// ledgerSuffix is appended to the per-device ledger key.
	ledgerSuffix string

	// UnconditionalBoost applies merge increments to served entries too.
	// V1 only boosts candidates that are still pending.
	UnconditionalBoost bool

	// ScaledServedScore divides served scores by v2ServedScale so they do
	// not dominate pending scores when merged.
	ScaledServedScore bool

	// UsePublishID rekeys members as "{video_id}|{publish_id}".
	UsePublishID bool
}

// V1 is the original serving configuration.
var V1 = Variant{
	Name:       "v1",
	HotPoolKey: "hot_video_zset",
}

// V2 is the publish-id aware serving configuration.
var V2 = Variant{
	Name:               "v2",
	HotPoolKey:         "hot_video_zset_v2",
	ledgerSuffix:       "|v2",
	UnconditionalBoost: true,
	ScaledServedScore:  true,
	UsePublishID:       true,
}

// LedgerKey returns the shared-store key of a device's ledger.
func (v Variant) LedgerKey(device string) string {
	return "device|" + device + "|recommend" + v.ledgerSuffix
}

// ServedScore computes the non-positive score that marks an entry as
// recently served at the given time. Magnitude encodes recency: scores
// closer to zero are more recent.
func (v Variant) ServedScore(now time.Time) float64 {
	raw := float64(now.Unix() - servedEpochOffset)
	if v.ScaledServedScore {
		return raw / v2ServedScale
	}
	return raw
}

// IsV1Device reports whether a device identifier shards to the v1 engine.
// Devices whose id starts with hex characters 0-7 stay on v1; the rest
// (8-f and anything non-hex) use v2. The rule is stateless so every
// dispatcher agrees on the route.
func IsV1Device(device string) bool {
	if device == "" {
		return false
	}
	c := device[0]
	return c >= '0' && c <= '7'
}
