// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"sync"
)

// Default sizing for the deduplicator. When the set reaches capacity, the
// oldest evictBatch entries are dropped in insertion order.
const (
	DefaultDedupCapacity   = 1000
	DefaultDedupEvictBatch = 100
)

// Deduplicator suppresses re-delivery of source messages within a single
// process lifetime. It is a bounded insertion-order set, not an LRU: its
// only job is to absorb rapid redelivery on a live connection. Restart-time
// duplicate detection belongs to the correlation store, so this state is
// deliberately not persisted.
type Deduplicator struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	order      []string
	capacity   int
	evictBatch int
}

// NewDeduplicator creates a Deduplicator. Non-positive arguments fall back
// to the defaults.
func NewDeduplicator(capacity, evictBatch int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	if evictBatch <= 0 || evictBatch > capacity {
		evictBatch = DefaultDedupEvictBatch
	}
	return &Deduplicator{
		seen:       make(map[string]struct{}, capacity),
		capacity:   capacity,
		evictBatch: evictBatch,
	}
}

// DedupKey builds the deduplication key for a source message.
func DedupKey(chatID, messageID int64) string {
	return fmt.Sprintf("%d_%d", chatID, messageID)
}

// Seen reports whether the key has been remembered and not yet evicted.
func (d *Deduplicator) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

// Remember adds the key to the set, evicting the oldest entries if the set
// is at capacity. Remembering an already-present key is a no-op.
func (d *Deduplicator) Remember(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return
	}
	if len(d.order) >= d.capacity {
		for _, old := range d.order[:d.evictBatch] {
			delete(d.seen, old)
		}
		d.order = append(d.order[:0], d.order[d.evictBatch:]...)
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
}

// Len returns the number of tracked keys.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
