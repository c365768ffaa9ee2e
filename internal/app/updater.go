package app

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/internal/domain/rating"
)

// RatingUpdater applies the TrueSkill update of a decided session to the
// rating store. It reads only the session's pre-game snapshot, never the
// current ratings, so a late scoring cannot pick up values written since the
// game started.
type RatingUpdater struct {
	env   rating.Env
	store repository.RatingStore
	board *repository.Leaderboard
	now   func() time.Time
}

// NewRatingUpdater creates an updater. board may be nil.
func NewRatingUpdater(env rating.Env, store repository.RatingStore, board *repository.Leaderboard, now func() time.Time) *RatingUpdater {
	if now == nil {
		now = time.Now
	}
	return &RatingUpdater{env: env, store: store, board: board, now: now}
}

// Apply rates s and writes one row per participant and role. It returns
// ErrRatingSnapshotMissing when the snapshot does not cover all ten slots.
func (u *RatingUpdater) Apply(ctx context.Context, s *model.GameSession) ([]model.RatingDelta, error) {
	if s.Winner != model.TeamBlue && s.Winner != model.TeamRed {
		return nil, fmt.Errorf("session %s has no winner", s.ID)
	}

	slots := model.Slots()
	var winners, losers []model.Rating
	var winSlots, loseSlots []model.Slot
	for _, slot := range slots {
		id := s.Composition.At(slot)
		before, ok := s.Snapshot[id]
		if id == "" || !ok {
			return nil, fmt.Errorf("%w: session %s slot %s", ErrRatingSnapshotMissing, s.ID, slot)
		}
		if slot.Team == s.Winner {
			winners = append(winners, before)
			winSlots = append(winSlots, slot)
		} else {
			losers = append(losers, before)
			loseSlots = append(loseSlots, slot)
		}
	}

	newW, newL, err := u.env.Rate(winners, losers)
	if err != nil {
		return nil, fmt.Errorf("rate session %s: %w", s.ID, err)
	}

	now := u.now().UTC()
	rows := make([]model.RoleRating, 0, len(slots))
	deltas := make([]model.RatingDelta, 0, len(slots))
	add := func(slot model.Slot, after model.Rating) error {
		id := s.Composition.At(slot)
		games, err := u.games(ctx, id, slot.Role)
		if err != nil {
			return err
		}
		before := s.Snapshot[id]
		rows = append(rows, model.RoleRating{
			ParticipantID: id,
			Role:          slot.Role,
			Rating:        after,
			Games:         games + 1,
			UpdatedAt:     now,
		})
		deltas = append(deltas, model.RatingDelta{
			ParticipantID: id,
			Role:          slot.Role,
			Team:          slot.Team,
			Before:        before,
			After:         after,
			DeltaMu:       after.Mu - before.Mu,
		})
		return nil
	}
	for i, slot := range winSlots {
		if err := add(slot, newW[i]); err != nil {
			return nil, err
		}
	}
	for i, slot := range loseSlots {
		if err := add(slot, newL[i]); err != nil {
			return nil, err
		}
	}

	if err := u.store.PutRatings(ctx, rows); err != nil {
		return nil, fmt.Errorf("write ratings of session %s: %w", s.ID, err)
	}
	if u.board != nil {
		u.board.Upsert(ctx, rows...)
	}
	return deltas, nil
}

func (u *RatingUpdater) games(ctx context.Context, id string, role model.Role) (int, error) {
	rows, err := u.store.GetRatings(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("read ratings of %s: %w", id, err)
	}
	for _, r := range rows {
		if r.Role == role {
			return r.Games, nil
		}
	}
	return 0, nil
}
