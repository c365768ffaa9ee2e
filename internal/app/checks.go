package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/internal/domain/readycheck"
	"github.com/okian/inhouse/pkg/logger"
	"github.com/okian/inhouse/pkg/metrics"
)

// OnReadyCheckSignal delivers an accept or decline from participant. checkID
// may be empty to target the participant's current check. Signals for a
// resolved or unknown check return ErrStaleReadyCheckSignal.
func (e *Engine) OnReadyCheckSignal(ctx context.Context, participant, checkID string, accept bool) error {
	e.mu.Lock()
	p, ok := e.inCheck[participant]
	e.mu.Unlock()
	if !ok || (checkID != "" && p.session.CheckID != checkID) {
		return e.stale(ctx, participant, checkID)
	}

	err := p.check.Signal(participant, accept)
	switch {
	case errors.Is(err, readycheck.ErrStale), errors.Is(err, readycheck.ErrNotAwaited):
		return e.stale(ctx, participant, p.session.CheckID)
	case err != nil:
		return err
	}
	return nil
}

func (e *Engine) stale(ctx context.Context, participant, checkID string) error {
	metrics.RecordStaleSignal()
	e.log.Debug(ctx, "stale ready check signal dropped",
		logger.String("participant", participant),
		logger.String("check_id", checkID),
	)
	return fmt.Errorf("%w: participant %s", ErrStaleReadyCheckSignal, participant)
}

// onCheckResolved runs on the check goroutine exactly once.
func (e *Engine) onCheckResolved(p *proposal, r readycheck.Result) {
	ctx := context.WithoutCancel(e.ctx)
	metrics.RecordReadyCheckResolved(outcomeLabel(r), float64(r.ResolvedAt.Sub(r.StartedAt).Milliseconds()))
	if r.Outcome == readycheck.Confirmed {
		e.confirm(ctx, p)
		return
	}
	e.cancelProposal(ctx, p, r)
}

func outcomeLabel(r readycheck.Result) string {
	if r.Outcome == readycheck.Confirmed {
		return "confirmed"
	}
	return string(r.Reason)
}

func (e *Engine) dropProposalLocked(p *proposal) {
	for _, id := range p.session.Composition.Participants() {
		if e.inCheck[id] == p {
			delete(e.inCheck, id)
		}
	}
	delete(e.proposals, p.session.ID)
}

// snapshot reads the current rating of every slot holder. Rows that cannot
// be read are left out; scoring later reports the gap.
func (e *Engine) snapshot(ctx context.Context, c model.Composition) map[string]model.Rating {
	out := make(map[string]model.Rating, 2*model.NumRoles)
	for _, slot := range model.Slots() {
		id := c.At(slot)
		rows, err := e.store.GetRatings(ctx, id)
		if err != nil {
			e.log.Error(ctx, "snapshot read failed", logger.String("participant", id), logger.Error(err))
			continue
		}
		for _, row := range rows {
			if row.Role == slot.Role {
				out[id] = row.Rating
			}
		}
	}
	return out
}

func (e *Engine) confirm(ctx context.Context, p *proposal) {
	snap := e.snapshot(ctx, p.session.Composition)

	e.mu.Lock()
	e.dropProposalLocked(p)
	s := p.session
	s.Snapshot = snap
	if err := s.Transition(model.StateConfirmed); err != nil {
		e.mu.Unlock()
		e.log.Error(ctx, "confirm failed", logger.String("session", s.ID), logger.Error(err))
		return
	}
	s.ConfirmedAt = e.now().UTC()
	e.live[s.ID] = &liveSession{session: s}
	ids := s.Composition.Participants()
	for _, id := range ids {
		e.inGame[id] = s.ID
		e.last[id] = s.ID
	}
	cp, seq := e.cloneLocked(s)
	e.emit(ctx, model.EventSessionConfirmed, s.Channel, s.ID, model.SessionConfirmedPayload{
		Composition: cp.Composition,
		Snapshot:    cp.Snapshot,
	})
	active := len(e.live)
	e.mu.Unlock()
	metrics.UpdateSessionsActive(active)

	e.persist(ctx, cp, seq)
	for _, id := range ids {
		e.dequeueEverywhere(ctx, id)
	}
	e.log.Info(ctx, "session confirmed", logger.String("session", cp.ID), logger.String("channel", cp.Channel))
}

func (e *Engine) cancelProposal(ctx context.Context, p *proposal, r readycheck.Result) {
	next := model.StateCancelled
	if r.Reason == model.CancelVoided {
		next = model.StateVoided
	}

	e.mu.Lock()
	e.dropProposalLocked(p)
	s := p.session
	_ = s.Transition(next)
	s.ClosedAt = e.now().UTC()
	e.emit(ctx, model.EventSessionCancelled, s.Channel, s.ID, model.SessionCancelledPayload{
		CheckID:  r.CheckID,
		Reason:   r.Reason,
		Decliner: r.Decliner,
		Accepted: r.Accepted,
		Missing:  r.Missing,
	})
	if next == model.StateVoided {
		e.emit(ctx, model.EventSessionVoided, s.Channel, s.ID, model.SessionVoidedPayload{PreviousState: model.StateProposed})
	}
	closed := e.closed
	e.mu.Unlock()

	if next == model.StateVoided {
		metrics.RecordSessionVoided()
	}
	e.log.Info(ctx, "ready check cancelled",
		logger.String("session", s.ID),
		logger.String("reason", string(r.Reason)),
		logger.String("decliner", r.Decliner),
		logger.Int("accepted", len(r.Accepted)),
	)

	if closed || r.Reason == model.CancelShutdown {
		return
	}
	cs := e.channel(s.Channel)
	cs.mu.Lock()
	e.matchLocked(ctx, s.Channel)
	cs.mu.Unlock()
}
