// Package repository defines persistence contracts, the in-memory store and
// the per-role rating leaderboard.
package repository

import (
	"context"

	"github.com/okian/inhouse/internal/domain/model"
)

// ParticipantStore keeps identities and display names.
type ParticipantStore interface {
	UpsertParticipant(ctx context.Context, p model.Participant) error
	// GetParticipant returns ErrNotFound for unknown ids.
	GetParticipant(ctx context.Context, id string) (model.Participant, error)
}

// RatingStore keeps one rating row per participant and role. Writes are
// last-writer-wins and serialized by the implementation.
type RatingStore interface {
	// EnsureRatings creates rows with initial for roles the participant has no
	// rating in yet and returns the rows that were created.
	EnsureRatings(ctx context.Context, participantID string, roles []model.Role, initial model.Rating) ([]model.RoleRating, error)
	// GetRatings returns every role row of a participant.
	GetRatings(ctx context.Context, participantID string) ([]model.RoleRating, error)
	// PutRatings writes rows atomically.
	PutRatings(ctx context.Context, rows []model.RoleRating) error
	// AllRatings returns every row, used to rebuild the leaderboard.
	AllRatings(ctx context.Context) ([]model.RoleRating, error)
}

// SessionStore keeps confirmed sessions and their history.
type SessionStore interface {
	SaveSession(ctx context.Context, g *model.GameSession) error
	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (*model.GameSession, error)
	// ListSessions returns sessions in any of states, oldest first. No states
	// means all sessions.
	ListSessions(ctx context.Context, states ...model.SessionState) ([]*model.GameSession, error)
}

// QueueStore journals queue membership for restart recovery.
type QueueStore interface {
	AddQueueEntries(ctx context.Context, entries []model.QueueEntry) error
	// RemoveQueueEntries drops participantID from channel, or from every
	// channel when channel is empty.
	RemoveQueueEntries(ctx context.Context, channel, participantID string) error
	// LoadQueueEntries returns every entry ordered by enqueue time.
	LoadQueueEntries(ctx context.Context) ([]model.QueueEntry, error)
}

// Store is the full persistence contract used by the engine.
type Store interface {
	ParticipantStore
	RatingStore
	SessionStore
	QueueStore
	Close() error
}
