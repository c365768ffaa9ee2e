package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
)

const (
	workerChannelMultiplier = 2
	pollInterval            = 20 * time.Millisecond
)

// ErrSettleTimeout is returned when a session does not reach the awaited
// state within Config.SettleTimeout.
var ErrSettleTimeout = errors.New("session did not settle in time")

type runner struct {
	cfg     *Config
	client  *Client
	rng     *rand.Rand
	players []Player
	byID    map[string]Player
	stats   *Stats
	log     logger.Logger
}

// Run plays cfg.Rounds rounds against the service and verifies that the
// final leaderboards agree with the players' hidden skill.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Players < 2*model.NumRoles {
		return nil, fmt.Errorf("need at least %d players, got %d", 2*model.NumRoles, cfg.Players)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	r := &runner{
		cfg:     cfg,
		client:  NewClient(cfg.BaseURL, cfg.Timeout),
		rng:     rng,
		players: generatePlayers(cfg.Players, rng),
		byID:    make(map[string]Player, cfg.Players),
		stats:   &Stats{StartTime: time.Now()},
		log:     logger.Get().Named("simulate"),
	}
	for _, p := range r.players {
		r.byID[p.ID] = p
	}

	r.log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers),
		logger.Float64("declineRate", cfg.DeclineRate),
		logger.Float64("disputeRate", cfg.DisputeRate),
	)

	if err := r.client.Health(ctx); err != nil {
		return r.stats, fmt.Errorf("service health check failed: %w", err)
	}

	for i := 0; i < cfg.Rounds; i++ {
		if err := r.round(ctx, i); err != nil {
			return r.stats, fmt.Errorf("round %d: %w", i, err)
		}
		r.stats.Rounds++
	}

	if err := r.verify(ctx); err != nil {
		return r.stats, fmt.Errorf("result verification failed: %w", err)
	}

	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	r.displayFinalStats(ctx)
	return r.stats, nil
}

// round queues every idle player, answers the ready checks that formed and
// plays out every game that confirmed.
func (r *runner) round(ctx context.Context, n int) error {
	r.enqueueAll(ctx)

	sessions, err := r.client.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	var proposed []model.GameSession
	for _, s := range sessions {
		if s.State == model.StateProposed {
			proposed = append(proposed, s)
		}
	}
	r.stats.GamesProposed += len(proposed)
	r.log.Info(ctx, "round started", logger.Int("round", n), logger.Int("proposed", len(proposed)))

	var confirmed []model.GameSession
	for _, s := range proposed {
		if err := r.answerReadyCheck(ctx, s); err != nil {
			return err
		}
		got, err := r.await(ctx, s.ID, func(st model.SessionState) bool { return st != model.StateProposed })
		if err != nil {
			return err
		}
		if got == nil || got.State == model.StateCancelled || got.State == model.StateVoided {
			r.stats.GamesCancelled++
			continue
		}
		r.stats.GamesConfirmed++
		confirmed = append(confirmed, *got)
	}

	for _, s := range confirmed {
		if err := r.play(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// enqueueAll queues every player through a worker pool. Players already in
// a ready check or a game answer 409 and are skipped.
func (r *runner) enqueueAll(ctx context.Context) {
	var ok, failed int64
	work := make(chan Player, r.cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				err := r.client.Enqueue(ctx, p, r.cfg.Channel)
				switch {
				case err == nil:
					atomic.AddInt64(&ok, 1)
				case isStatus(err, http.StatusConflict):
				default:
					atomic.AddInt64(&failed, 1)
					if r.cfg.Verbose {
						r.log.Warn(ctx, "enqueue failed", logger.String("participant", p.ID), logger.Error(err))
					}
				}
			}
		}()
	}
	go func() {
		defer close(work)
		for _, p := range r.players {
			select {
			case <-ctx.Done():
				return
			case work <- p:
			}
		}
	}()
	wg.Wait()

	r.stats.Enqueued += int(ok)
	r.stats.EnqueueFailed += int(failed)
}

// answerReadyCheck accepts for all ten, or has one random participant
// decline at the configured rate.
func (r *runner) answerReadyCheck(ctx context.Context, s model.GameSession) error {
	ids := s.Composition.Participants()
	if r.rng.Float64() < r.cfg.DeclineRate {
		decliner := ids[r.rng.IntN(len(ids))]
		if err := r.client.ReadyCheck(ctx, decliner, s.CheckID, false); err != nil {
			return fmt.Errorf("decline %s: %w", s.ID, err)
		}
		return nil
	}
	for _, id := range ids {
		if err := r.client.ReadyCheck(ctx, id, s.CheckID, true); err != nil {
			return fmt.Errorf("accept %s by %s: %w", s.ID, id, err)
		}
	}
	return nil
}

// play reports the result of a confirmed game, optionally through a
// dispute, and waits for it to be scored.
func (r *runner) play(ctx context.Context, s model.GameSession) error {
	winner := pickWinner(s.Composition, r.byID, r.rng)
	winners := s.Composition.Team(winner)
	losers := s.Composition.Team(winner.Opponent())

	if r.rng.Float64() < r.cfg.DisputeRate {
		// A loser claims the win first, then a winner contradicts.
		if _, err := r.client.Report(ctx, losers[0], true); err != nil {
			return fmt.Errorf("report %s: %w", s.ID, err)
		}
		out, err := r.client.Report(ctx, winners[0], true)
		switch {
		case isStatus(err, http.StatusConflict):
			r.stats.ReportsRejected++
		case err != nil:
			return fmt.Errorf("contradict %s: %w", s.ID, err)
		case out.Disputed:
			r.stats.Disputes++
			if err := r.client.Override(ctx, winners[1]); err != nil && !isStatus(err, http.StatusNotFound) {
				return fmt.Errorf("override %s: %w", s.ID, err)
			}
		}
	} else if _, err := r.client.Report(ctx, winners[0], true); err != nil {
		return fmt.Errorf("report %s: %w", s.ID, err)
	}

	got, err := r.await(ctx, s.ID, func(st model.SessionState) bool {
		return st == model.StateScored || st == model.StateVoided
	})
	if err != nil {
		return err
	}
	if got != nil && got.State == model.StateScored {
		r.stats.GamesScored++
		if r.cfg.Verbose {
			r.log.Info(ctx, "game scored",
				logger.String("session", got.ID),
				logger.String("winner", got.Winner.String()),
				logger.Bool("overridden", got.Overridden),
			)
		}
	}
	return nil
}

// await polls a session until done reports true. A session that is gone
// returns nil. Sessions whose scoring failed return as they are.
func (r *runner) await(ctx context.Context, id string, done func(model.SessionState) bool) (*model.GameSession, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		s, err := r.client.Session(ctx, id)
		switch {
		case isStatus(err, http.StatusNotFound):
			return nil, nil
		case err != nil && ctx.Err() == nil:
			return nil, fmt.Errorf("get session %s: %w", id, err)
		case err == nil && (done(s.State) || s.ScoringError != ""):
			return &s, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", id, ErrSettleTimeout)
		case <-ticker.C:
		}
	}
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (r *runner) displayFinalStats(ctx context.Context) {
	var gamesPerSecond float64
	if r.stats.Duration > 0 {
		gamesPerSecond = float64(r.stats.GamesScored) / r.stats.Duration.Seconds()
	}
	r.log.Info(ctx, "final statistics",
		logger.Int("rounds", r.stats.Rounds),
		logger.Int("enqueued", r.stats.Enqueued),
		logger.Int("enqueueFailed", r.stats.EnqueueFailed),
		logger.Int("gamesProposed", r.stats.GamesProposed),
		logger.Int("gamesConfirmed", r.stats.GamesConfirmed),
		logger.Int("gamesCancelled", r.stats.GamesCancelled),
		logger.Int("gamesScored", r.stats.GamesScored),
		logger.Int("disputes", r.stats.Disputes),
		logger.Int("reportsRejected", r.stats.ReportsRejected),
		logger.Float64("skillAgreement", r.stats.SkillAgreement),
		logger.Duration("duration", r.stats.Duration),
		logger.Float64("gamesPerSecond", gamesPerSecond),
	)
}
