// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package recommend implements the per-device video recommendation engine.
//
// # Architecture
//
// The engine composes four cooperating pieces:
//
//   - Hot pool: the cached set of globally popular videos, built once at
//     startup and mirrored in process memory.
//   - Similarity recall: seed video -> normalized tag set -> content index
//     tag-match query -> candidate map scored by view count.
//   - Ledger: a per-device sorted set in the shared store encoding both
//     "pending to recommend" (score > 0) and "recently served" (score <= 0)
//     entries. The sign of the score is the state.
//   - Engine: the public GuessLike / Recommend / Update operations.
//
// Two serving variants exist. V1 keeps bare video ids and only boosts
// candidates that are still pending; V2 rescales served scores, boosts
// unconditionally, and keys entries as "{video_id}|{publish_id}". Devices
// are routed to a variant by the first character of their identifier.
//
// # Thread Safety
//
// The engine holds no mutable shared state except the seeded RNG used for
// hot-pool sampling, which is mutex-protected. The hot-pool mirror is
// immutable after construction; refreshing it means building a new engine.
// All ledger mutation is read-modify-write against the shared store and is
// deliberately not serialized across workers: concurrent merges commute on
// distinct candidates and may lose an increment on the same candidate,
// which is tolerated.
//
// # External Collaborators
//
// The Store, Index, and PublishResolver interfaces decouple the engine from
// the concrete Redis, OpenSearch, and HTTP clients so tests can run against
// in-memory fakes.
package recommend
