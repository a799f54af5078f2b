// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

package recommend

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// errStoreDown stands in for any shared-store transport failure.
var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Store fake with sorted-set semantics.
type memStore struct {
	mu   sync.Mutex
	sets map[string]map[string]float64
	ttls map[string]time.Duration

	// failing makes every operation return errStoreDown.
	failing bool
}

func newMemStore() *memStore {
	return &memStore{
		sets: make(map[string]map[string]float64),
		ttls: make(map[string]time.Duration),
	}
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errStoreDown
	}
	set, ok := m.sets[key]
	return ok && len(set) > 0, nil
}

func (m *memStore) RangeWithScores(_ context.Context, key string, limit int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errStoreDown
	}

	entries := m.sorted(key, true)
	if limit > 0 && int64(len(entries)) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *memStore) TopByScore(_ context.Context, key string, min float64, count int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errStoreDown
	}

	all := m.sorted(key, false)
	out := make([]Entry, 0, count)
	for _, e := range all {
		if e.Score < min {
			continue
		}
		out = append(out, e)
		if count > 0 && int64(len(out)) == count {
			break
		}
	}
	return out, nil
}

func (m *memStore) Add(_ context.Context, key string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errStoreDown
	}

	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]float64)
		m.sets[key] = set
	}
	for _, e := range entries {
		set[e.Member] = e.Score
	}
	return nil
}

func (m *memStore) Replace(_ context.Context, key string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errStoreDown
	}

	set := make(map[string]float64, len(entries))
	for _, e := range entries {
		set[e.Member] = e.Score
	}
	m.sets[key] = set
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errStoreDown
	}
	delete(m.sets, key)
	delete(m.ttls, key)
	return nil
}

func (m *memStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errStoreDown
	}
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) SetNX(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errStoreDown
	}
	if _, ok := m.sets[key]; ok {
		return false, nil
	}
	m.sets[key] = map[string]float64{"": 0}
	m.ttls[key] = ttl
	return true, nil
}

// sorted returns the set's entries ordered by score (ascending or
// descending), ties by member ascending. Callers hold the lock.
func (m *memStore) sorted(key string, ascending bool) []Entry {
	set := m.sets[key]
	entries := make([]Entry, 0, len(set))
	for member, score := range set {
		entries = append(entries, Entry{Member: member, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			if ascending {
				return entries[i].Score < entries[j].Score
			}
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Member < entries[j].Member
	})
	return entries
}

// score returns the stored score for a member, with presence.
func (m *memStore) score(key, member string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key][member]
	return s, ok
}

// size returns the member count of a set.
func (m *memStore) size(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sets[key])
}

// ttl returns the last TTL set on a key.
func (m *memStore) ttl(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.ttls[key]
	return d, ok
}

// memIndex is an in-memory Index fake.
type memIndex struct {
	mu   sync.Mutex
	docs map[string]*VideoDocument

	// hot maps tag -> admitted hot videos (id -> log10 score).
	hot map[string]map[string]float64

	// byTag is returned from VideosByTags regardless of the tags asked.
	byTag map[string]float64

	docErr   error
	queryErr error

	tagQueries  int
	lastTagSize int
}

func newMemIndex() *memIndex {
	return &memIndex{
		docs: make(map[string]*VideoDocument),
		hot:  make(map[string]map[string]float64),
	}
}

func (m *memIndex) VideoDocument(_ context.Context, id string) (*VideoDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docErr != nil {
		return nil, m.docErr
	}
	return m.docs[id], nil
}

func (m *memIndex) HotVideos(_ context.Context, tag string, _ int) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	out := make(map[string]float64, len(m.hot[tag]))
	for id, score := range m.hot[tag] {
		out[id] = score
	}
	return out, nil
}

func (m *memIndex) VideosByTags(_ context.Context, _ []string, size int) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagQueries++
	m.lastTagSize = size
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	out := make(map[string]float64, len(m.byTag))
	for id, hot := range m.byTag {
		out[id] = hot
	}
	return out, nil
}

func (m *memIndex) tagQueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tagQueries
}

func (m *memIndex) lastTagQuerySize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTagSize
}

// memResolver is an in-memory PublishResolver fake.
type memResolver struct {
	publish map[string]string
	err     error
}

func (m *memResolver) Resolve(_ context.Context, ids []string) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if pub, ok := m.publish[id]; ok {
			out[id] = pub
		}
	}
	return out, nil
}
