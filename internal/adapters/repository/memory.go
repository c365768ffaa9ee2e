package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/inhouse/internal/domain/model"
)

type ratingKey struct {
	id   string
	role model.Role
}

type queueKey struct {
	channel string
	role    model.Role
	id      string
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu           sync.RWMutex
	participants map[string]model.Participant
	ratings      map[ratingKey]model.RoleRating
	sessions     map[string]*model.GameSession
	queue        map[queueKey]model.QueueEntry
	now          func() time.Time
	closed       bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		participants: make(map[string]model.Participant),
		ratings:      make(map[ratingKey]model.RoleRating),
		sessions:     make(map[string]*model.GameSession),
		queue:        make(map[queueKey]model.QueueEntry),
		now:          time.Now,
	}
}

func (s *MemoryStore) UpsertParticipant(ctx context.Context, p model.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	s.participants[p.ID] = p
	return nil
}

func (s *MemoryStore) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	if err := ctx.Err(); err != nil {
		return model.Participant{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return model.Participant{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) EnsureRatings(ctx context.Context, participantID string, roles []model.Role, initial model.Rating) ([]model.RoleRating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var created []model.RoleRating
	for _, r := range roles {
		k := ratingKey{participantID, r}
		if _, ok := s.ratings[k]; ok {
			continue
		}
		row := model.RoleRating{ParticipantID: participantID, Role: r, Rating: initial, UpdatedAt: s.now()}
		s.ratings[k] = row
		created = append(created, row)
	}
	return created, nil
}

func (s *MemoryStore) GetRatings(ctx context.Context, participantID string) ([]model.RoleRating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RoleRating
	for _, r := range model.Roles() {
		if row, ok := s.ratings[ratingKey{participantID, r}]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryStore) PutRatings(ctx context.Context, rows []model.RoleRating) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, row := range rows {
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = s.now()
		}
		s.ratings[ratingKey{row.ParticipantID, row.Role}] = row
	}
	return nil
}

func (s *MemoryStore) AllRatings(ctx context.Context) ([]model.RoleRating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.RoleRating, 0, len(s.ratings))
	for _, row := range s.ratings {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParticipantID != out[j].ParticipantID {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].Role < out[j].Role
	})
	return out, nil
}

func (s *MemoryStore) SaveSession(ctx context.Context, g *model.GameSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.sessions[g.ID] = g.Clone()
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*model.GameSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, states ...model.SessionState) ([]*model.GameSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.GameSession
	for _, g := range s.sessions {
		if len(states) == 0 || slices.Contains(states, g.State) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) AddQueueEntries(ctx context.Context, entries []model.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, e := range entries {
		k := queueKey{e.Channel, e.Role, e.ParticipantID}
		if _, ok := s.queue[k]; !ok {
			s.queue[k] = e
		}
	}
	return nil
}

func (s *MemoryStore) RemoveQueueEntries(ctx context.Context, channel, participantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for k := range s.queue {
		if k.id == participantID && (channel == "" || k.channel == channel) {
			delete(s.queue, k)
		}
	}
	return nil
}

func (s *MemoryStore) LoadQueueEntries(ctx context.Context) ([]model.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.QueueEntry, 0, len(s.queue))
	for _, e := range s.queue {
		out = append(out, e)
	}
	SortQueueEntries(out)
	return out, nil
}

// Close marks the store closed; later writes fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SortQueueEntries orders entries by enqueue time, then channel, role and id.
func SortQueueEntries(entries []model.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.ParticipantID < b.ParticipantID
	})
}
