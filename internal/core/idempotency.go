package core

import (
	"container/list"
	"fmt"

	"rewardengine/internal/event"
	"rewardengine/internal/observability"
)

// DBIdempotencyChecker is the cold-path lookup against the persisted event log
type DBIdempotencyChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU of
// recent keys in front of the event log. A failed cold lookup is an error,
// never a guess, because a replayed claim would pay twice.
type IdempotencyChecker struct {
	lru       *IdempotencyLRU
	dbChecker DBIdempotencyChecker
	metrics   *observability.Metrics
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
	}
}

// CompositeKey is the LRU key of an event.
func CompositeKey(et event.EventType, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s", et, idempotencyKey)
}

// IsDuplicate checks if an event has been processed
func (ic *IdempotencyChecker) IsDuplicate(et event.EventType, idempotencyKey string) (bool, error) {
	key := CompositeKey(et, idempotencyKey)

	if ic.lru.Contains(key) {
		ic.recordDuplicate(et, "lru")
		return true, nil
	}

	if ic.dbChecker == nil {
		return false, nil
	}

	isDup, err := ic.dbChecker.IsDuplicate(et.String(), idempotencyKey)
	if err != nil {
		if ic.metrics != nil {
			ic.metrics.DedupTier2Errors.Inc()
		}
		return false, fmt.Errorf("idempotency lookup for %s: %w", key, err)
	}
	if isDup {
		ic.recordDuplicate(et, "postgres")
		ic.add(key)
	}
	return isDup, nil
}

// MarkProcessed adds key to LRU after successful processing
func (ic *IdempotencyChecker) MarkProcessed(et event.EventType, idempotencyKey string) {
	ic.add(CompositeKey(et, idempotencyKey))
}

// Warm loads composite keys, oldest first, after a restart.
func (ic *IdempotencyChecker) Warm(keys []string) {
	for _, k := range keys {
		ic.add(k)
	}
}

// RecentKeys lists LRU keys from oldest to newest.
func (ic *IdempotencyChecker) RecentKeys() []string {
	return ic.lru.Keys()
}

func (ic *IdempotencyChecker) add(key string) {
	evicted := ic.lru.Add(key)
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
		if evicted {
			ic.metrics.DedupLRUEvictions.Inc()
		}
	}
}

func (ic *IdempotencyChecker) recordDuplicate(et event.EventType, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(et.String(), tier).Inc()
	}
}

// --- LRU ---

// IdempotencyLRU is a bounded set of keys with least-recently-used eviction.
// Not thread-safe; only accessed from the single-threaded core.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List // front = most recent, values are keys
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, ok := lru.cache[key]
	if ok {
		lru.order.MoveToFront(elem)
	}
	return ok
}

// Add inserts or promotes a key and reports whether another key was evicted.
func (lru *IdempotencyLRU) Add(key string) bool {
	if elem, ok := lru.cache[key]; ok {
		lru.order.MoveToFront(elem)
		return false
	}
	lru.cache[key] = lru.order.PushFront(key)
	if lru.order.Len() <= lru.capacity {
		return false
	}
	oldest := lru.order.Back()
	lru.order.Remove(oldest)
	delete(lru.cache, oldest.Value.(string))
	return true
}

func (lru *IdempotencyLRU) Size() int {
	return lru.order.Len()
}

// Keys returns keys from least to most recently used, so re-adding them in
// order rebuilds the same recency.
func (lru *IdempotencyLRU) Keys() []string {
	keys := make([]string, 0, lru.order.Len())
	for e := lru.order.Back(); e != nil; e = e.Prev() {
		keys = append(keys, e.Value.(string))
	}
	return keys
}
