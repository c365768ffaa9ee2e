// Package storetest holds behaviour tests shared by every repository.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/model"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) repository.Store

// Run exercises the Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("participants", func(t *testing.T) { testParticipants(t, newStore(t)) })
	t.Run("ratings", func(t *testing.T) { testRatings(t, newStore(t)) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("queue", func(t *testing.T) { testQueue(t, newStore(t)) })
}

func composition() model.Composition {
	var c model.Composition
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for i, s := range model.Slots() {
		c.Set(s, ids[i])
	}
	return c
}

func testParticipants(t *testing.T, s repository.Store) {
	ctx := context.Background()

	_, err := s.GetParticipant(ctx, "p1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.UpsertParticipant(ctx, model.Participant{ID: "p1", Name: "Old"}))
	require.NoError(t, s.UpsertParticipant(ctx, model.Participant{ID: "p1", Name: "New"}))

	p, err := s.GetParticipant(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "New", p.Name)
	require.False(t, p.UpdatedAt.IsZero())
}

func testRatings(t *testing.T, s repository.Store) {
	ctx := context.Background()
	initial := model.Rating{Mu: 25, Sigma: 25.0 / 3}

	created, err := s.EnsureRatings(ctx, "p1", []model.Role{model.RoleTop, model.RoleMid}, initial)
	require.NoError(t, err)
	require.Len(t, created, 2)

	again, err := s.EnsureRatings(ctx, "p1", []model.Role{model.RoleMid, model.RoleBot}, initial)
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.Equal(t, model.RoleBot, again[0].Role)

	require.NoError(t, s.PutRatings(ctx, []model.RoleRating{
		{ParticipantID: "p1", Role: model.RoleMid, Rating: model.Rating{Mu: 27.5, Sigma: 7}, Games: 1},
	}))

	rows, err := s.GetRatings(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		if r.Role == model.RoleMid {
			require.InDelta(t, 27.5, r.Rating.Mu, 1e-9)
			require.Equal(t, 1, r.Games)
		} else {
			require.Equal(t, initial, r.Rating)
		}
	}

	all, err := s.AllRatings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	none, err := s.GetRatings(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, none)
}

func testSessions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	g1 := &model.GameSession{
		ID:          "g1",
		Channel:     "c1",
		State:       model.StateConfirmed,
		Composition: composition(),
		Snapshot:    map[string]model.Rating{"a": {Mu: 25, Sigma: 8}},
		CreatedAt:   base,
		ConfirmedAt: base.Add(time.Minute),
	}
	g2 := &model.GameSession{ID: "g2", Channel: "c1", State: model.StateScored, Composition: composition(), CreatedAt: base.Add(time.Hour)}
	require.NoError(t, s.SaveSession(ctx, g1))
	require.NoError(t, s.SaveSession(ctx, g2))

	got, err := s.GetSession(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, g1.Composition, got.Composition)
	require.Equal(t, g1.Snapshot, got.Snapshot)
	require.True(t, g1.ConfirmedAt.Equal(got.ConfirmedAt))

	g1.State = model.StateReported
	g1.Winner = model.TeamBlue
	g1.Champions = map[string]string{"a": "Ahri"}
	require.NoError(t, s.SaveSession(ctx, g1))

	got, err = s.GetSession(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, model.StateReported, got.State)
	require.Equal(t, model.TeamBlue, got.Winner)
	require.Equal(t, "Ahri", got.Champions["a"])

	open, err := s.ListSessions(ctx, model.StateConfirmed, model.StateReported, model.StateDisputeReview)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "g1", open[0].ID)

	all, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "g1", all[0].ID)

	_, err = s.GetSession(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testQueue(t *testing.T, s repository.Store) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.AddQueueEntries(ctx, []model.QueueEntry{
		{Channel: "c1", Role: model.RoleTop, ParticipantID: "p2", EnqueuedAt: base.Add(2 * time.Second)},
		{Channel: "c1", Role: model.RoleTop, ParticipantID: "p1", EnqueuedAt: base.Add(time.Second)},
		{Channel: "c2", Role: model.RoleMid, ParticipantID: "p1", EnqueuedAt: base.Add(3 * time.Second)},
	}))
	// duplicates are ignored
	require.NoError(t, s.AddQueueEntries(ctx, []model.QueueEntry{
		{Channel: "c1", Role: model.RoleTop, ParticipantID: "p1", EnqueuedAt: base.Add(time.Hour)},
	}))

	entries, err := s.LoadQueueEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "p1", entries[0].ParticipantID)
	require.True(t, entries[0].EnqueuedAt.Equal(base.Add(time.Second)))
	require.Equal(t, "p2", entries[1].ParticipantID)

	require.NoError(t, s.RemoveQueueEntries(ctx, "c2", "p1"))
	entries, err = s.LoadQueueEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, s.RemoveQueueEntries(ctx, "", "p1"))
	entries, err = s.LoadQueueEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "p2", entries[0].ParticipantID)
}
