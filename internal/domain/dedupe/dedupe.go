// Package dedupe tracks idempotency keys of inbound requests so that
// at-least-once deliveries from the transport are applied once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Entry is the recorded outcome for an idempotency key.
type Entry struct {
	Status     int
	Body       []byte
	RecordedAt time.Time
}

// Tracker records processed keys and the outcome replayed to duplicates.
type Tracker interface {
	// Claim reserves key for processing. If key was already recorded the stored
	// entry is returned with claimed=false. A key claimed by another in-flight
	// request returns claimed=false and an empty entry.
	Claim(ctx context.Context, key string) (entry Entry, claimed bool)

	// Record stores the outcome for a claimed key.
	Record(ctx context.Context, key string, entry Entry)

	// Release drops a claim without recording, allowing the key to be retried.
	Release(ctx context.Context, key string)

	Size() int64
}

type item struct {
	key     string
	entry   Entry
	pending bool
}

// inMemoryTracker keeps at most maxSize keys and evicts the oldest first.
// maxSize <= 0 disables eviction.
type inMemoryTracker struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	index   map[string]*list.Element
	now     func() time.Time
}

// NewInMemoryTracker creates a bounded in-memory tracker.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{
		maxSize: 50000,
		order:   list.New(),
		index:   make(map[string]*list.Element),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *inMemoryTracker) Claim(_ context.Context, key string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.index[key]; ok {
		it := el.Value.(*item)
		if it.pending {
			return Entry{}, false
		}
		return it.entry, false
	}
	if t.maxSize > 0 {
		for t.order.Len() >= t.maxSize {
			if !t.evictOldest() {
				break
			}
		}
	}
	t.index[key] = t.order.PushBack(&item{key: key, pending: true})
	return Entry{}, true
}

func (t *inMemoryTracker) Record(_ context.Context, key string, entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = t.now()
	}
	if el, ok := t.index[key]; ok {
		it := el.Value.(*item)
		it.entry = entry
		it.pending = false
		return
	}
	t.index[key] = t.order.PushBack(&item{key: key, entry: entry})
}

func (t *inMemoryTracker) Release(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.index[key]; ok {
		t.order.Remove(el)
		delete(t.index, key)
	}
}

func (t *inMemoryTracker) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(t.order.Len())
}

// evictOldest removes the oldest completed key. Pending claims are skipped.
// Must be called with t.mu held.
func (t *inMemoryTracker) evictOldest() bool {
	for el := t.order.Front(); el != nil; el = el.Next() {
		it := el.Value.(*item)
		if it.pending {
			continue
		}
		t.order.Remove(el)
		delete(t.index, it.key)
		return true
	}
	return false
}
