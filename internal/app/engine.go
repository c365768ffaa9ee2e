// Package app hosts the matchmaking engine and the service that wires it to
// storage, the outbound event bus and the HTTP transport.
//
// Locking: every channel has its own mutex serializing queue mutation, search
// and proposal for that channel. Engine.mu is a leaf lock over the participant
// index and the live session table; it is never held while taking a channel
// lock, talking to storage, or waiting on a ready check.
package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/config"
	"github.com/okian/inhouse/internal/domain/matchmaking"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/internal/domain/queue"
	"github.com/okian/inhouse/internal/domain/rating"
	"github.com/okian/inhouse/internal/domain/readycheck"
	"github.com/okian/inhouse/pkg/logger"
	"github.com/okian/inhouse/pkg/metrics"
)

const tracerName = "github.com/okian/inhouse/internal/app"

// Publisher receives outbound events. Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, e model.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.Event) error { return nil }

type channelState struct {
	mu sync.Mutex
}

// proposal is a Proposed session and its ready check.
type proposal struct {
	check   *readycheck.Check
	session *model.GameSession
}

// liveSession is an unresolved session and its pending timer. gen invalidates
// timers that fired after being superseded; scoring marks the single claim on
// rating the session.
type liveSession struct {
	session *model.GameSession
	timer   *time.Timer
	gen     uint64
	scoring bool
}

// Engine implements queueing, matchmaking, ready checks, result reporting and
// rating updates.
type Engine struct {
	cfg     *config.Config
	env     rating.Env
	store   repository.Store
	journal repository.QueueStore
	board   *repository.Leaderboard
	queues  *queue.Manager
	mm      *matchmaking.Matchmaker
	updater *RatingUpdater
	pub     Publisher
	log     logger.Logger
	tracer  trace.Tracer
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	chMu     sync.Mutex
	channels map[string]*channelState

	mu        sync.Mutex
	closed    bool
	inCheck   map[string]*proposal
	proposals map[string]*proposal
	inGame    map[string]string
	live      map[string]*liveSession
	last      map[string]string
	seq       map[string]uint64

	persistMu sync.Mutex
	written   map[string]uint64
}

// NewEngine builds an engine over store. Call Recover before serving traffic.
func NewEngine(cfg *config.Config, store repository.Store, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:       cfg,
		env:       rating.NewEnv(cfg.DefaultMu, cfg.DefaultSigma, cfg.DrawProbability),
		store:     store,
		journal:   store,
		pub:       nopPublisher{},
		log:       logger.Get().Named("engine"),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		channels:  make(map[string]*channelState),
		inCheck:   make(map[string]*proposal),
		proposals: make(map[string]*proposal),
		inGame:    make(map[string]string),
		live:      make(map[string]*liveSession),
		last:      make(map[string]string),
		seq:       make(map[string]uint64),
		written:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.board == nil {
		e.board = repository.NewLeaderboard()
	}
	e.queues = queue.NewManager(queue.WithClock(e.now))
	e.mm = matchmaking.New(
		matchmaking.WithEnv(e.env),
		matchmaking.WithMaxCandidates(cfg.MaxCandidates),
	)
	e.updater = NewRatingUpdater(e.env, store, e.board, e.now)
	return e
}

func (e *Engine) channel(id string) *channelState {
	e.chMu.Lock()
	defer e.chMu.Unlock()
	cs, ok := e.channels[id]
	if !ok {
		cs = &channelState{}
		e.channels[id] = cs
	}
	return cs
}

func (e *Engine) emit(ctx context.Context, kind model.EventKind, channel, sessionID string, payload any) {
	ev := model.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Channel:   channel,
		SessionID: sessionID,
		At:        e.now().UTC(),
		Payload:   payload,
	}
	if err := e.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Warn(ctx, "event not published",
			logger.String("kind", string(kind)),
			logger.String("session", sessionID),
			logger.Error(err),
		)
	}
}

// busySnapshot copies the set of participants that may not be matched.
func (e *Engine) busySnapshot() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]struct{}, len(e.inCheck)+len(e.inGame))
	for id := range e.inCheck {
		out[id] = struct{}{}
	}
	for id := range e.inGame {
		out[id] = struct{}{}
	}
	return out
}

func (e *Engine) busyLocked(id string) bool {
	if _, ok := e.inCheck[id]; ok {
		return true
	}
	_, ok := e.inGame[id]
	return ok
}

// releaseLocked drops the participants of s from the in-game index and
// records s as their latest session.
func (e *Engine) releaseLocked(s *model.GameSession) {
	for _, id := range s.Composition.Participants() {
		if e.inGame[id] == s.ID {
			delete(e.inGame, id)
		}
		e.last[id] = s.ID
	}
}

// cloneLocked copies s for persistence and stamps it with a sequence number
// so that an older copy never overwrites a newer one.
func (e *Engine) cloneLocked(s *model.GameSession) (*model.GameSession, uint64) {
	e.seq[s.ID]++
	return s.Clone(), e.seq[s.ID]
}

func (e *Engine) persist(ctx context.Context, s *model.GameSession, seq uint64) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if e.written[s.ID] >= seq {
		return
	}
	if err := e.store.SaveSession(context.WithoutCancel(ctx), s); err != nil {
		e.log.Error(ctx, "session persist failed", logger.String("session", s.ID), logger.Error(err))
		return
	}
	e.written[s.ID] = seq
}

// Recover reloads queue membership, unresolved sessions and the leaderboard.
// Ready checks are not persisted; participants that were in one stay out of
// the queues they had been removed from.
func (e *Engine) Recover(ctx context.Context) error {
	rows, err := e.store.AllRatings(ctx)
	if err != nil {
		return err
	}
	e.board.Load(ctx, rows)

	sessions, err := e.store.ListSessions(ctx, model.StateConfirmed, model.StateReported, model.StateDisputeReview)
	if err != nil {
		return err
	}
	now := e.now()
	e.mu.Lock()
	for _, s := range sessions {
		if s.ScoringError != "" {
			continue
		}
		ls := &liveSession{session: s}
		e.live[s.ID] = ls
		for _, id := range s.Composition.Participants() {
			e.inGame[id] = s.ID
			e.last[id] = s.ID
		}
		switch s.State {
		case model.StateReported:
			e.armLocked(ls, s.ReportedAt.Add(e.cfg.ResultGrace()).Sub(now), e.scoreAfterGrace)
		case model.StateDisputeReview:
			e.armLocked(ls, s.DisputeDeadline.Sub(now), e.lapseDispute)
		}
	}
	active := len(e.live)
	e.mu.Unlock()
	metrics.UpdateSessionsActive(active)

	journaled, err := e.journal.LoadQueueEntries(ctx)
	if err != nil {
		return err
	}
	busy := e.busySnapshot()
	entries := pie.Filter(journaled, func(q model.QueueEntry) bool {
		_, taken := busy[q.ParticipantID]
		return !taken
	})
	e.queues.Restore(entries)

	for _, ch := range e.queues.Channels() {
		e.updateQueueMetrics(ch)
		cs := e.channel(ch)
		cs.mu.Lock()
		e.matchLocked(ctx, ch)
		cs.mu.Unlock()
	}
	e.resyncJournal(ctx, journaled)
	e.log.Info(ctx, "engine recovered",
		logger.Int("sessions", len(sessions)),
		logger.Int("queue_entries", len(entries)),
		logger.Int("ratings", len(rows)),
	)
	return nil
}

// resyncJournal drops journaled memberships that recovery did not restore,
// such as entries of participants who are back in an unresolved game.
func (e *Engine) resyncJournal(ctx context.Context, journaled []model.QueueEntry) {
	type member struct{ channel, id string }
	kept := make(map[member]struct{})
	for _, ch := range e.queues.Channels() {
		for _, q := range e.queues.Entries(ch) {
			kept[member{q.Channel, q.ParticipantID}] = struct{}{}
		}
	}
	stale := make(map[member]struct{})
	for _, q := range journaled {
		m := member{q.Channel, q.ParticipantID}
		if _, ok := kept[m]; ok {
			continue
		}
		if _, done := stale[m]; done {
			continue
		}
		stale[m] = struct{}{}
		if err := e.journal.RemoveQueueEntries(ctx, m.channel, m.id); err != nil {
			e.log.Warn(ctx, "journal resync failed",
				logger.String("channel", m.channel),
				logger.String("participant", m.id),
				logger.Error(err),
			)
		}
	}
}

// Shutdown cancels pending ready checks, stops result timers and waits for
// in-flight scoring to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	checks := make([]*readycheck.Check, 0, len(e.proposals))
	for _, p := range e.proposals {
		checks = append(checks, p.check)
	}
	for _, ls := range e.live {
		e.stopLocked(ls)
	}
	e.mu.Unlock()

	e.cancel()
	for _, c := range checks {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.log.Info(ctx, "engine stopped", logger.Int("cancelled_checks", len(checks)))
	return nil
}

// runTimer runs fn for a fired timer unless the engine is shutting down.
func (e *Engine) runTimer(fn func(ctx context.Context)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()
	fn(e.ctx)
}

// stopLocked cancels the session's timer and invalidates any callback that
// already fired.
func (e *Engine) stopLocked(ls *liveSession) {
	ls.gen++
	if ls.timer != nil {
		ls.timer.Stop()
		ls.timer = nil
	}
}

func (e *Engine) armLocked(ls *liveSession, d time.Duration, fire func(ctx context.Context, sessionID string, gen uint64)) {
	e.stopLocked(ls)
	gen, sid := ls.gen, ls.session.ID
	if d < 0 {
		d = 0
	}
	ls.timer = time.AfterFunc(d, func() {
		e.runTimer(func(ctx context.Context) { fire(ctx, sid, gen) })
	})
}

// claimLocked reserves ls for scoring. It reports false when scoring already
// started.
func (e *Engine) claimLocked(ls *liveSession) bool {
	if ls.scoring {
		return false
	}
	ls.scoring = true
	e.stopLocked(ls)
	return true
}

func (e *Engine) updateQueueMetrics(channel string) {
	depths := e.queues.Depths(channel)
	for _, r := range model.Roles() {
		metrics.UpdateQueueDepth(channel, r.String(), depths[r])
	}
	metrics.UpdateQueuedParticipants(e.queues.Participants())
}

// Stats summarizes engine state for /stats.
type Stats struct {
	Channels       []string `json:"channels"`
	Queued         int      `json:"queued_participants"`
	PendingChecks  int      `json:"pending_ready_checks"`
	ActiveSessions int      `json:"active_sessions"`
	RatedRoles     []int    `json:"rated_per_role"`
}

// Stats returns a point-in-time summary.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	pending, active := len(e.proposals), len(e.live)
	e.mu.Unlock()

	rated := make([]int, 0, model.NumRoles)
	for _, r := range model.Roles() {
		rated = append(rated, e.board.Count(r))
	}
	return Stats{
		Channels:       e.queues.Channels(),
		Queued:         e.queues.Participants(),
		PendingChecks:  pending,
		ActiveSessions: active,
		RatedRoles:     rated,
	}
}

// OngoingSessions lists proposed and unresolved sessions, oldest first.
func (e *Engine) OngoingSessions() []*model.GameSession {
	e.mu.Lock()
	out := make([]*model.GameSession, 0, len(e.proposals)+len(e.live))
	for _, p := range e.proposals {
		out = append(out, p.session.Clone())
	}
	for _, ls := range e.live {
		out = append(out, ls.session.Clone())
	}
	e.mu.Unlock()

	slices.SortFunc(out, func(a, b *model.GameSession) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Session returns a session by id from memory or storage.
func (e *Engine) Session(ctx context.Context, id string) (*model.GameSession, error) {
	e.mu.Lock()
	if p, ok := e.proposals[id]; ok {
		s := p.session.Clone()
		e.mu.Unlock()
		return s, nil
	}
	if ls, ok := e.live[id]; ok {
		s := ls.session.Clone()
		e.mu.Unlock()
		return s, nil
	}
	e.mu.Unlock()

	s, err := e.store.GetSession(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// LastSession returns the most recent session participant took part in,
// if the engine knows one.
func (e *Engine) LastSession(ctx context.Context, participant string) (*model.GameSession, bool) {
	e.mu.Lock()
	sid, ok := e.inGame[participant]
	if !ok {
		sid, ok = e.last[participant]
	}
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	s, err := e.Session(ctx, sid)
	if err != nil {
		return nil, false
	}
	return s, true
}

// Leaderboard returns the top n participants of role.
func (e *Engine) Leaderboard(ctx context.Context, role model.Role, n int) ([]repository.Entry, error) {
	return e.board.TopN(ctx, role, n)
}

// Rank returns participant's leaderboard entry for role.
func (e *Engine) Rank(ctx context.Context, role model.Role, participant string) (repository.Entry, error) {
	return e.board.Rank(ctx, role, participant)
}

// Ratings returns every role rating of participant.
func (e *Engine) Ratings(ctx context.Context, participant string) ([]model.RoleRating, error) {
	return e.store.GetRatings(ctx, participant)
}
