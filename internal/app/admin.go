package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/fuzzy"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/internal/domain/readycheck"
	"github.com/okian/inhouse/pkg/logger"
	"github.com/okian/inhouse/pkg/metrics"
)

// VoidSession cancels a session that has not been scored. A Proposed session
// has its ready check aborted. Ratings are never touched.
func (e *Engine) VoidSession(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	if p, ok := e.proposals[sessionID]; ok {
		e.mu.Unlock()
		if err := p.check.Abort(model.CancelVoided); !errors.Is(err, readycheck.ErrStale) {
			return err
		}
		// The check resolved on its own first; void whatever it became.
		e.mu.Lock()
	}

	if ls, ok := e.live[sessionID]; ok {
		s := ls.session
		if ls.scoring {
			e.mu.Unlock()
			return fmt.Errorf("%w: session %s is being scored", ErrInvalidTransition, sessionID)
		}
		prev := s.State
		if err := s.Transition(model.StateVoided); err != nil {
			e.mu.Unlock()
			return err
		}
		s.ClosedAt = e.now().UTC()
		e.stopLocked(ls)
		delete(e.live, sessionID)
		e.releaseLocked(s)
		e.emit(ctx, model.EventSessionVoided, s.Channel, s.ID, model.SessionVoidedPayload{PreviousState: prev})
		cp, seq := e.cloneLocked(s)
		active := len(e.live)
		e.mu.Unlock()

		metrics.UpdateSessionsActive(active)
		metrics.RecordSessionVoided()
		e.persist(ctx, cp, seq)
		e.log.Info(ctx, "session voided", logger.String("session", sessionID), logger.String("previous_state", prev.String()))
		return nil
	}
	e.mu.Unlock()

	s, err := e.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	prev := s.State
	if err := s.Transition(model.StateVoided); err != nil {
		if prev == model.StateScored {
			return fmt.Errorf("%w: %w", ErrSessionAlreadyScored, err)
		}
		return err
	}
	s.ClosedAt = e.now().UTC()
	e.mu.Lock()
	e.emit(ctx, model.EventSessionVoided, s.Channel, s.ID, model.SessionVoidedPayload{PreviousState: prev})
	cp, seq := e.cloneLocked(s)
	e.mu.Unlock()
	metrics.RecordSessionVoided()
	e.persist(ctx, cp, seq)
	return nil
}

// ResetParticipant removes participant from every queue and declines their
// pending ready check, if any.
func (e *Engine) ResetParticipant(ctx context.Context, participant string) error {
	if err := e.OnDequeueRequest(ctx, participant, ""); err != nil {
		return err
	}
	e.mu.Lock()
	p, ok := e.inCheck[participant]
	e.mu.Unlock()
	if ok {
		if err := p.check.Decline(participant); err != nil && !errors.Is(err, readycheck.ErrStale) {
			return err
		}
	}
	e.log.Info(ctx, "participant reset", logger.String("participant", participant))
	return nil
}

// SetChampion records the champion participant played in a session. An
// empty sessionID targets the participant's unresolved session. The name is
// resolved against the configured champion list.
func (e *Engine) SetChampion(ctx context.Context, participant, sessionID, text string) (string, error) {
	champion, conf, ok := fuzzy.ResolveAbove(text, e.cfg.Champions, e.cfg.ChampionConfidence)
	if !ok {
		return "", fmt.Errorf("%w: %q (best %.0f%%)", ErrChampionUnknown, text, conf)
	}

	e.mu.Lock()
	if sessionID == "" {
		sessionID = e.inGame[participant]
	}
	if sessionID == "" {
		e.mu.Unlock()
		return "", ErrNoUnresolvedSession
	}
	ls, ok := e.live[sessionID]
	if !ok {
		e.mu.Unlock()
		s, err := e.Session(ctx, sessionID)
		if err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, s.ID, s.State)
	}
	s := ls.session
	if !s.Composition.Contains(participant) {
		e.mu.Unlock()
		return "", ErrNotInSession
	}
	if s.Champions == nil {
		s.Champions = make(map[string]string)
	}
	s.Champions[participant] = champion
	cp, seq := e.cloneLocked(s)
	e.mu.Unlock()

	e.persist(ctx, cp, seq)
	return champion, nil
}
