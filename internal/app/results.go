package app

import (
	"context"
	"errors"
	"time"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
	"github.com/okian/inhouse/pkg/metrics"
)

// ReportOutcome is the feedback for a result report. ScoringError is set
// when the report scored the session immediately and scoring failed.
type ReportOutcome struct {
	SessionID    string             `json:"session_id"`
	State        model.SessionState `json:"state"`
	Winner       model.Team         `json:"winner"`
	Duplicate    bool               `json:"duplicate"`
	Disputed     bool               `json:"disputed"`
	ScoresAt     time.Time          `json:"scores_at,omitempty"`
	ScoringError string             `json:"scoring_error,omitempty"`
}

// OnResultReport records that participant's team won or lost their latest
// unresolved session.
func (e *Engine) OnResultReport(ctx context.Context, participant string, win bool) (ReportOutcome, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ReportOutcome{}, ErrEngineClosed
	}
	ls := e.live[e.inGame[participant]]
	if ls == nil {
		lastID := e.last[participant]
		e.mu.Unlock()
		return e.reportClosed(ctx, participant, lastID, win)
	}

	s := ls.session
	team, _ := s.TeamOf(participant)
	claimed := team
	if !win {
		claimed = team.Opponent()
	}
	out := ReportOutcome{SessionID: s.ID}
	now := e.now().UTC()
	scoreNow := false

	switch {
	case ls.scoring:
		if claimed != s.Winner {
			e.mu.Unlock()
			return ReportOutcome{}, ErrSessionAlreadyScored
		}
		out.Duplicate = true
	case s.State == model.StateConfirmed:
		s.Winner = claimed
		s.Reporter = participant
		s.ReportedAt = now
		_ = s.Transition(model.StateReported)
		grace := e.cfg.ResultGrace()
		out.ScoresAt = now.Add(grace)
		if grace <= 0 {
			scoreNow = e.claimLocked(ls)
		} else {
			e.armLocked(ls, grace, e.scoreAfterGrace)
		}
	case s.State == model.StateReported && claimed == s.Winner:
		out.Duplicate = true
		out.ScoresAt = s.ReportedAt.Add(e.cfg.ResultGrace())
	case s.State == model.StateReported:
		s.ClaimedWinner = claimed
		s.Claimant = participant
		s.DisputeDeadline = now.Add(e.cfg.DisputeWindow())
		_ = s.Transition(model.StateDisputeReview)
		e.armLocked(ls, e.cfg.DisputeWindow(), e.lapseDispute)
		out.Disputed = true
		e.emit(ctx, model.EventDisputeOpened, s.Channel, s.ID, model.DisputeOpenedPayload{
			OriginalWinner: s.Winner,
			ClaimedWinner:  claimed,
			Claimant:       participant,
			Deadline:       s.DisputeDeadline,
		})
	default:
		out.Duplicate = true
		out.Disputed = true
	}
	out.State = s.State
	out.Winner = s.Winner
	if !out.Disputed || out.Duplicate {
		e.emit(ctx, model.EventResultReported, s.Channel, s.ID, model.ResultReportedPayload{
			Reporter:  participant,
			Winner:    claimed,
			Duplicate: out.Duplicate,
			ScoresAt:  out.ScoresAt,
		})
	}
	cp, seq := e.cloneLocked(s)
	e.mu.Unlock()

	if out.Disputed && !out.Duplicate {
		metrics.RecordDisputeOpened()
		e.log.Info(ctx, "dispute opened",
			logger.String("session", cp.ID),
			logger.String("claimant", participant),
			logger.String("claimed_winner", claimed.String()),
		)
	}
	if !out.Duplicate {
		e.persist(ctx, cp, seq)
	}
	if scoreNow {
		e.finalize(ctx, cp.ID)
		if s, err := e.Session(ctx, cp.ID); err == nil {
			out.State = s.State
			out.ScoringError = s.ScoringError
		}
	}
	return out, nil
}

// reportClosed answers reports for a participant with no unresolved session.
func (e *Engine) reportClosed(ctx context.Context, participant, lastID string, win bool) (ReportOutcome, error) {
	if lastID == "" {
		return ReportOutcome{}, ErrNoUnresolvedSession
	}
	s, err := e.store.GetSession(ctx, lastID)
	if errors.Is(err, repository.ErrNotFound) {
		return ReportOutcome{}, ErrNoUnresolvedSession
	}
	if err != nil {
		return ReportOutcome{}, err
	}
	if s.State != model.StateScored {
		return ReportOutcome{}, ErrNoUnresolvedSession
	}
	team, _ := s.TeamOf(participant)
	claimed := team
	if !win {
		claimed = team.Opponent()
	}
	if claimed != s.Winner {
		return ReportOutcome{}, ErrSessionAlreadyScored
	}
	return ReportOutcome{SessionID: s.ID, State: s.State, Winner: s.Winner, Duplicate: true}, nil
}

// OnOverrideSignal confirms the contradicting claim of a disputed session.
// Any participant of the session may send it while the window is open.
func (e *Engine) OnOverrideSignal(ctx context.Context, participant string) error {
	e.mu.Lock()
	ls := e.live[e.inGame[participant]]
	if ls == nil || ls.session.State != model.StateDisputeReview || !e.claimLocked(ls) {
		e.mu.Unlock()
		return ErrNoDispute
	}
	s := ls.session
	s.Winner = s.ClaimedWinner
	s.Overridden = true
	e.emit(ctx, model.EventDisputeResolved, s.Channel, s.ID, model.DisputeResolvedPayload{
		Winner:     s.Winner,
		Overridden: true,
		By:         participant,
	})
	sid := s.ID
	e.mu.Unlock()

	metrics.RecordDisputeResolved("overridden")
	e.log.Info(ctx, "dispute overridden", logger.String("session", sid), logger.String("by", participant))
	e.finalize(ctx, sid)
	return nil
}

func (e *Engine) scoreAfterGrace(ctx context.Context, sid string, gen uint64) {
	e.mu.Lock()
	ls := e.live[sid]
	if ls == nil || ls.gen != gen || ls.session.State != model.StateReported || !e.claimLocked(ls) {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.finalize(ctx, sid)
}

// lapseDispute keeps the original winner once the window closes.
func (e *Engine) lapseDispute(ctx context.Context, sid string, gen uint64) {
	e.mu.Lock()
	ls := e.live[sid]
	if ls == nil || ls.gen != gen || ls.session.State != model.StateDisputeReview || !e.claimLocked(ls) {
		e.mu.Unlock()
		return
	}
	s := ls.session
	e.emit(ctx, model.EventDisputeResolved, s.Channel, s.ID, model.DisputeResolvedPayload{Winner: s.Winner})
	e.mu.Unlock()

	metrics.RecordDisputeResolved("lapsed")
	e.log.Info(ctx, "dispute window lapsed", logger.String("session", sid))
	e.finalize(ctx, sid)
}

// finalize scores a claimed session and closes it.
func (e *Engine) finalize(ctx context.Context, sid string) {
	e.mu.Lock()
	ls := e.live[sid]
	if ls == nil || !ls.scoring {
		e.mu.Unlock()
		return
	}
	snapshot := ls.session.Clone()
	e.mu.Unlock()

	sctx, span := e.tracer.Start(ctx, "ratings.update")
	deltas, err := e.updater.Apply(sctx, snapshot)
	if err != nil {
		span.RecordError(err)
	}
	span.End()

	e.mu.Lock()
	s := ls.session
	delete(e.live, sid)
	e.releaseLocked(s)
	if err != nil {
		s.ScoringError = err.Error()
		e.emit(ctx, model.EventScoringFailed, s.Channel, s.ID, model.ScoringFailedPayload{Error: s.ScoringError})
	} else {
		_ = s.Transition(model.StateScored)
		s.ClosedAt = e.now().UTC()
		e.emit(ctx, model.EventRatingsUpdated, s.Channel, s.ID, model.RatingsUpdatedPayload{Winner: s.Winner, Deltas: deltas})
	}
	cp, seq := e.cloneLocked(s)
	active := len(e.live)
	e.mu.Unlock()

	metrics.UpdateSessionsActive(active)
	e.persist(ctx, cp, seq)
	if err != nil {
		metrics.RecordScoringError()
		e.log.Error(ctx, "session scoring failed", logger.String("session", sid), logger.Error(err))
		return
	}
	metrics.RecordRatingsUpdated()
	e.log.Info(ctx, "session scored",
		logger.String("session", sid),
		logger.String("winner", cp.Winner.String()),
		logger.Bool("overridden", cp.Overridden),
	)
}
