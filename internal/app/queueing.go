package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/fuzzy"
	"github.com/okian/inhouse/internal/domain/matchmaking"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/internal/domain/readycheck"
	"github.com/okian/inhouse/pkg/logger"
	"github.com/okian/inhouse/pkg/metrics"
)

// EnqueueRequest asks to queue a participant for one or more roles in a
// channel. RoleText is resolved fuzzily when Roles is empty.
type EnqueueRequest struct {
	ParticipantID string
	Name          string
	Channel       string
	Roles         []model.Role
	RoleText      string
}

// roleCandidates are the strings role text is resolved against.
func roleCandidates() []string {
	return append(model.RoleNames(), pie.Sort(pie.Keys(model.RoleAliases))...)
}

// ResolveRoles parses space or comma separated role text. Tokens below
// threshold confidence are skipped; ErrUnknownRole is returned only when no
// token resolves.
func ResolveRoles(text string, threshold float64) ([]model.Role, error) {
	tokens := strings.FieldsFunc(text, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	if len(tokens) == 0 {
		return nil, ErrNoRoles
	}
	candidates := roleCandidates()
	var out []model.Role
	for _, tok := range tokens {
		match, _, ok := fuzzy.ResolveAbove(tok, candidates, threshold)
		if !ok {
			continue
		}
		r, err := model.ParseRole(match)
		if err != nil {
			return nil, err
		}
		if !pie.Contains(out, r) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, text)
	}
	return out, nil
}

// OnEnqueueRequest queues the participant and runs matchmaking on the
// channel. It returns the queue entries that were newly added; repeating a
// request is a no-op.
func (e *Engine) OnEnqueueRequest(ctx context.Context, req EnqueueRequest) ([]model.QueueEntry, error) {
	roles := req.Roles
	if len(roles) == 0 {
		var err error
		if roles, err = ResolveRoles(req.RoleText, e.cfg.RoleConfidence); err != nil {
			metrics.RecordQueueReject("unknown_role")
			return nil, err
		}
	}
	for _, r := range roles {
		if !r.Valid() {
			metrics.RecordQueueReject("unknown_role")
			return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
		}
	}

	if err := e.touchParticipant(ctx, req.ParticipantID, req.Name); err != nil {
		return nil, err
	}

	cs := e.channel(req.Channel)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	e.mu.Lock()
	closed := e.closed
	_, inGame := e.inGame[req.ParticipantID]
	_, inCheck := e.inCheck[req.ParticipantID]
	e.mu.Unlock()
	switch {
	case closed:
		return nil, ErrEngineClosed
	case inGame:
		metrics.RecordQueueReject("in_game")
		return nil, ErrParticipantInGame
	case inCheck:
		metrics.RecordQueueReject("in_ready_check")
		return nil, ErrParticipantInReadyCheck
	}

	created, err := e.store.EnsureRatings(ctx, req.ParticipantID, roles, e.env.Initial())
	if err != nil {
		return nil, fmt.Errorf("ensure ratings: %w", err)
	}
	if len(created) > 0 {
		e.board.Upsert(ctx, created...)
	}

	added := e.queues.Add(req.Channel, req.ParticipantID, roles)
	if len(added) > 0 {
		if err := e.journal.AddQueueEntries(ctx, added); err != nil {
			e.log.Error(ctx, "queue journal write failed", logger.String("participant", req.ParticipantID), logger.Error(err))
		}
		for range added {
			metrics.RecordQueueEnqueue()
		}
		e.log.Info(ctx, "participant queued",
			logger.String("participant", req.ParticipantID),
			logger.String("channel", req.Channel),
			logger.Strings("roles", pie.Map(added, func(q model.QueueEntry) string { return q.Role.String() })),
		)
	}
	e.updateQueueMetrics(req.Channel)

	e.matchLocked(ctx, req.Channel)
	return added, nil
}

// OnDequeueRequest removes the participant from channel, or from every
// channel when channel is empty. Removing an absent participant is a no-op.
func (e *Engine) OnDequeueRequest(ctx context.Context, participant, channel string) error {
	channels := []string{channel}
	if channel == "" {
		channels = e.queues.ChannelsOf(participant)
	}
	for _, ch := range channels {
		cs := e.channel(ch)
		cs.mu.Lock()
		removed := e.queues.Remove(ch, participant)
		cs.mu.Unlock()
		if removed {
			metrics.RecordQueueDequeue()
			e.updateQueueMetrics(ch)
		}
	}
	if err := e.journal.RemoveQueueEntries(ctx, channel, participant); err != nil {
		e.log.Error(ctx, "queue journal removal failed", logger.String("participant", participant), logger.Error(err))
	}
	return nil
}

// Snapshot returns the display view of a channel's queues.
func (e *Engine) Snapshot(ctx context.Context, channel string) map[model.Role][]model.Participant {
	raw := e.queues.Snapshot(channel)
	out := make(map[model.Role][]model.Participant, len(raw))
	for role, ids := range raw {
		list := make([]model.Participant, 0, len(ids))
		for _, id := range ids {
			p, err := e.store.GetParticipant(ctx, id)
			if err != nil {
				p = model.Participant{ID: id}
			}
			list = append(list, p)
		}
		out[role] = list
	}
	return out
}

func (e *Engine) touchParticipant(ctx context.Context, id, name string) error {
	if name == "" {
		if p, err := e.store.GetParticipant(ctx, id); err == nil {
			name = p.Name
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	if err := e.store.UpsertParticipant(ctx, model.Participant{ID: id, Name: name, UpdatedAt: e.now().UTC()}); err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	e.board.SetName(id, name)
	return nil
}

// dequeueEverywhere removes id from every channel's queues.
func (e *Engine) dequeueEverywhere(ctx context.Context, id string) {
	_ = e.OnDequeueRequest(ctx, id, "")
}

// matchLocked proposes games on channel until no acceptable composition is
// left. The caller holds the channel lock.
func (e *Engine) matchLocked(ctx context.Context, channel string) {
	for {
		proposed, err := e.proposeOnce(ctx, channel)
		if err != nil {
			if !errors.Is(err, ErrEngineClosed) {
				e.log.Error(ctx, "matchmaking failed", logger.String("channel", channel), logger.Error(err))
			}
			return
		}
		if !proposed {
			return
		}
	}
}

func (e *Engine) ratingLookup(ctx context.Context, q matchmaking.Queues) (matchmaking.RatingFunc, error) {
	table := make(map[string]map[model.Role]model.Rating)
	for _, ids := range q {
		for _, id := range ids {
			if _, ok := table[id]; ok {
				continue
			}
			rows, err := e.store.GetRatings(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("read ratings of %s: %w", id, err)
			}
			byRole := make(map[model.Role]model.Rating, len(rows))
			for _, r := range rows {
				byRole[r.Role] = r.Rating
			}
			table[id] = byRole
		}
	}
	initial := e.env.Initial()
	return func(id string, role model.Role) model.Rating {
		if r, ok := table[id][role]; ok {
			return r
		}
		return initial
	}, nil
}

// proposeOnce searches channel once and opens a ready check for an
// acceptable result. It reports whether the caller should search again.
func (e *Engine) proposeOnce(ctx context.Context, channel string) (bool, error) {
	busy := e.busySnapshot()
	q := e.queues.Ordered(channel, func(id string) bool {
		_, ok := busy[id]
		return ok
	})
	if matchmaking.CandidateCount(q) == 0 {
		return false, nil
	}
	ratingOf, err := e.ratingLookup(ctx, q)
	if err != nil {
		return false, err
	}

	sctx, span := e.tracer.Start(ctx, "matchmaking.search", trace.WithAttributes(
		attribute.String("channel", channel),
		attribute.Int("candidates.raw", matchmaking.CandidateCount(q)),
	))
	start := time.Now()
	res, err := e.mm.Search(sctx, q, ratingOf)
	latency := float64(time.Since(start).Milliseconds())
	span.SetAttributes(attribute.Int("candidates.scored", res.Candidates))
	if err != nil && !errors.Is(err, matchmaking.ErrNoViableComposition) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	switch {
	case errors.Is(err, matchmaking.ErrNoViableComposition):
		metrics.RecordSearch("no_viable", latency, res.Candidates)
		return false, nil
	case errors.Is(err, matchmaking.ErrSearchSpaceTooLarge):
		metrics.RecordSearch("too_large", latency, 0)
		e.log.Warn(ctx, "matchmaking search space too large",
			logger.String("channel", channel),
			logger.Int("raw_candidates", matchmaking.CandidateCount(q)),
		)
		return false, nil
	case err != nil:
		metrics.RecordSearch("error", latency, res.Candidates)
		return false, fmt.Errorf("search channel %s: %w", channel, err)
	}

	metrics.RecordBalanceScore(res.Score)
	if res.Score <= e.cfg.AcceptableMatchThreshold {
		metrics.RecordSearch("below_threshold", latency, res.Candidates)
		e.log.Debug(ctx, "best composition below threshold",
			logger.String("channel", channel),
			logger.Float64("score", res.Score),
		)
		return false, nil
	}
	metrics.RecordSearch("proposed", latency, res.Candidates)
	return e.propose(ctx, channel, res, res.Score <= e.cfg.GoodMatchThreshold)
}

// propose registers the proposal, starts its ready check and removes the ten
// from the channel's queues.
func (e *Engine) propose(ctx context.Context, channel string, res matchmaking.Result, mismatch bool) (bool, error) {
	ids := res.Composition.Participants()
	sess := &model.GameSession{
		ID:             ulid.Make().String(),
		Channel:        channel,
		CheckID:        uuid.NewString(),
		State:          model.StateProposed,
		Composition:    res.Composition,
		BalanceScore:   res.Score,
		WinProbability: res.WinProbability,
		Mismatch:       mismatch,
		CreatedAt:      e.now().UTC(),
	}
	p := &proposal{session: sess}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, ErrEngineClosed
	}
	for _, id := range ids {
		if e.busyLocked(id) {
			// Taken by another channel since the snapshot; search again.
			e.mu.Unlock()
			return true, nil
		}
	}
	for _, id := range ids {
		e.inCheck[id] = p
	}
	e.proposals[sess.ID] = p
	p.check = readycheck.Start(e.ctx, sess.CheckID, ids, e.cfg.ReadyCheckTimeout(),
		func(r readycheck.Result) { e.onCheckResolved(p, r) },
		readycheck.WithLogger(e.log.Named("readycheck")),
		readycheck.WithClock(e.now),
	)
	e.emit(ctx, model.EventCompositionProposed, channel, sess.ID, model.CompositionProposedPayload{
		CheckID:        sess.CheckID,
		Composition:    sess.Composition,
		BalanceScore:   sess.BalanceScore,
		WinProbability: sess.WinProbability,
		Mismatch:       mismatch,
		Deadline:       p.check.Deadline().UTC(),
	})
	e.mu.Unlock()

	e.queues.RemoveMany(channel, ids)
	for _, id := range ids {
		if err := e.journal.RemoveQueueEntries(ctx, channel, id); err != nil {
			e.log.Error(ctx, "queue journal removal failed", logger.String("participant", id), logger.Error(err))
		}
	}
	e.updateQueueMetrics(channel)
	metrics.RecordReadyCheckOpened()

	e.log.Info(ctx, "composition proposed",
		logger.String("session", sess.ID),
		logger.String("check_id", sess.CheckID),
		logger.String("channel", channel),
		logger.Float64("score", res.Score),
		logger.Bool("mismatch", mismatch),
	)
	return true, nil
}
