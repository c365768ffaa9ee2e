package app

import (
	"time"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/pkg/logger"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithPublisher sets where outbound events go.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.pub = p
		}
	}
}

// WithQueueJournal journals queue membership somewhere other than the store.
func WithQueueJournal(j repository.QueueStore) EngineOption {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

// WithLeaderboard shares a leaderboard index with the engine.
func WithLeaderboard(lb *repository.Leaderboard) EngineOption {
	return func(e *Engine) {
		if lb != nil {
			e.board = lb
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
