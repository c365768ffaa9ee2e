// Package queue owns the per-channel role queues.
//
// A Manager is safe for concurrent use. Multi-step operations that must be
// atomic relative to other calls on the same channel (search then remove) are
// serialized by the caller's per-channel lock; the Manager's own mutex only
// protects its maps.
package queue

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/inhouse/internal/domain/matchmaking"
	"github.com/okian/inhouse/internal/domain/model"
)

// roleQueue is an insertion-ordered set of participant ids.
type roleQueue struct {
	ids   []string
	since map[string]time.Time
}

func newRoleQueue() *roleQueue {
	return &roleQueue{since: make(map[string]time.Time)}
}

func (q *roleQueue) add(id string, at time.Time) bool {
	if _, ok := q.since[id]; ok {
		return false
	}
	q.ids = append(q.ids, id)
	q.since[id] = at
	return true
}

func (q *roleQueue) remove(id string) bool {
	if _, ok := q.since[id]; !ok {
		return false
	}
	delete(q.since, id)
	q.ids = slices.DeleteFunc(q.ids, func(v string) bool { return v == id })
	return true
}

// channelQueues holds the five role queues of one channel.
type channelQueues [model.NumRoles]*roleQueue

func newChannelQueues() *channelQueues {
	var c channelQueues
	for i := range c {
		c[i] = newRoleQueue()
	}
	return &c
}

func (c *channelQueues) empty() bool {
	for _, q := range c {
		if len(q.ids) > 0 {
			return false
		}
	}
	return true
}

// Manager holds every channel's queues.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*channelQueues
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the enqueue timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{channels: make(map[string]*channelQueues), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add appends id to each role queue of channel it is not already in and
// returns the entries that were actually added.
func (m *Manager) Add(channel, id string, roles []model.Role) []model.QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	cq, ok := m.channels[channel]
	if !ok {
		cq = newChannelQueues()
		m.channels[channel] = cq
	}
	at := m.now()
	var added []model.QueueEntry
	for _, r := range roles {
		if !r.Valid() {
			continue
		}
		if cq[r].add(id, at) {
			added = append(added, model.QueueEntry{Channel: channel, Role: r, ParticipantID: id, EnqueuedAt: at})
		}
	}
	if cq.empty() {
		delete(m.channels, channel)
	}
	return added
}

// Restore re-inserts persisted entries in EnqueuedAt order.
func (m *Manager) Restore(entries []model.QueueEntry) {
	sorted := slices.Clone(entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].EnqueuedAt.Before(sorted[j].EnqueuedAt) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range sorted {
		cq, ok := m.channels[e.Channel]
		if !ok {
			cq = newChannelQueues()
			m.channels[e.Channel] = cq
		}
		if e.Role.Valid() {
			cq[e.Role].add(e.ParticipantID, e.EnqueuedAt)
		}
	}
}

// Remove drops id from every role queue of channel. It reports whether
// anything was removed.
func (m *Manager) Remove(channel, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(channel, id)
}

// RemoveMany drops every id in ids from channel's queues.
func (m *Manager) RemoveMany(channel string, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.removeLocked(channel, id)
	}
}

func (m *Manager) removeLocked(channel, id string) bool {
	cq, ok := m.channels[channel]
	if !ok {
		return false
	}
	removed := false
	for _, q := range cq {
		if q.remove(id) {
			removed = true
		}
	}
	if cq.empty() {
		delete(m.channels, channel)
	}
	return removed
}

// ChannelsOf lists the channels id is queued in, sorted.
func (m *Manager) ChannelsOf(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for ch, cq := range m.channels {
		for _, q := range cq {
			if _, ok := q.since[id]; ok {
				out = append(out, ch)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Channels lists channels with at least one queued participant, sorted.
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.channels))
	for ch := range m.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Ordered returns copies of channel's role queues in insertion order for the
// matchmaker. Ids for which skip returns true are omitted.
func (m *Manager) Ordered(channel string, skip func(id string) bool) matchmaking.Queues {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out matchmaking.Queues
	cq, ok := m.channels[channel]
	if !ok {
		return out
	}
	for r, q := range cq {
		ids := make([]string, 0, len(q.ids))
		for _, id := range q.ids {
			if skip != nil && skip(id) {
				continue
			}
			ids = append(ids, id)
		}
		out[r] = ids
	}
	return out
}

// Snapshot returns a display view of channel's queues. Order is for display only.
func (m *Manager) Snapshot(channel string) map[model.Role][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[model.Role][]string, model.NumRoles)
	for _, r := range model.Roles() {
		out[r] = []string{}
	}
	if cq, ok := m.channels[channel]; ok {
		for r, q := range cq {
			out[model.Role(r)] = slices.Clone(q.ids)
		}
	}
	return out
}

// Entries returns every queued entry of channel, for persistence.
func (m *Manager) Entries(channel string) []model.QueueEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cq, ok := m.channels[channel]
	if !ok {
		return nil
	}
	var out []model.QueueEntry
	for r, q := range cq {
		for _, id := range q.ids {
			out = append(out, model.QueueEntry{Channel: channel, Role: model.Role(r), ParticipantID: id, EnqueuedAt: q.since[id]})
		}
	}
	return out
}

// Depths returns queue lengths per role for channel.
func (m *Manager) Depths(channel string) [model.NumRoles]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out [model.NumRoles]int
	if cq, ok := m.channels[channel]; ok {
		for r, q := range cq {
			out[r] = len(q.ids)
		}
	}
	return out
}

// Participants counts distinct queued participants across all channels.
func (m *Manager) Participants() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, cq := range m.channels {
		for _, q := range cq {
			for _, id := range q.ids {
				seen[id] = struct{}{}
			}
		}
	}
	return len(seen)
}
