package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/adapters/repository/storetest"
	"github.com/okian/inhouse/internal/domain/model"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		s := repository.NewMemoryStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStoreClosed(t *testing.T) {
	s := repository.NewMemoryStore()
	require.NoError(t, s.Close())
	err := s.UpsertParticipant(context.Background(), model.Participant{ID: "p1"})
	require.ErrorIs(t, err, repository.ErrClosed)
}

func TestMemoryStoreCopiesSessions(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	g := &model.GameSession{ID: "g1", State: model.StateConfirmed, Snapshot: map[string]model.Rating{"a": {Mu: 1}}}
	require.NoError(t, s.SaveSession(ctx, g))

	g.Snapshot["a"] = model.Rating{Mu: 99}
	got, err := s.GetSession(ctx, "g1")
	require.NoError(t, err)
	require.InDelta(t, 1.0, got.Snapshot["a"].Mu, 1e-9)
}
