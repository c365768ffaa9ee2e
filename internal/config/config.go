// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config populated with defaults.
// - Load layers defaults, an optional YAML file and INHOUSE_ env vars.
// - Validate reports ErrInvalidConfig wrapped with the offending key.
package config

import (
	"fmt"
	"time"

	"github.com/okian/inhouse/internal/domain/fuzzy"
	"github.com/okian/inhouse/internal/domain/rating"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"

	QueueBackendStore = "store"
	QueueBackendRedis = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Storage selects the durable store: memory or sqlite.
	Storage    string `koanf:"storage"`
	SQLitePath string `koanf:"sqlite_path"`
	// QueueBackend selects where queue membership is journaled for restart
	// recovery: store (same as Storage) or redis.
	QueueBackend string `koanf:"queue_backend"`
	RedisAddr    string `koanf:"redis_addr"`
	RedisPrefix  string `koanf:"redis_prefix"`

	// ReadyCheckTimeoutMS bounds how long a proposed game waits for ten accepts.
	ReadyCheckTimeoutMS int `koanf:"ready_check_timeout_ms"`
	// ResultGraceMS delays scoring after the first result report so that a
	// contradicting report can still open a dispute. Zero scores immediately.
	ResultGraceMS int `koanf:"result_grace_ms"`
	// DisputeWindowMS is how long an override may arrive once disputed.
	DisputeWindowMS int `koanf:"dispute_window_ms"`

	GoodMatchThreshold       float64 `koanf:"good_match_threshold"`
	AcceptableMatchThreshold float64 `koanf:"acceptable_match_threshold"`
	// MaxCandidates caps the raw composition product the matchmaker will enumerate.
	MaxCandidates int `koanf:"max_candidates"`

	DefaultMu       float64 `koanf:"default_mu"`
	DefaultSigma    float64 `koanf:"default_sigma"`
	DrawProbability float64 `koanf:"draw_probability"`

	// EventQueueSize bounds the outbound event queue.
	EventQueueSize int `koanf:"event_queue_size"`
	// EventWorkerCount sets the number of outbound event workers.
	EventWorkerCount int `koanf:"event_worker_count"`
	// DedupeSize sets the size of the idempotency cache for inbound requests.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxLeaderboardLimit caps GET /leaderboard/{role}?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	RoleConfidence     float64  `koanf:"role_confidence"`
	ChampionConfidence float64  `koanf:"champion_confidence"`
	Champions          []string `koanf:"champions"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		Storage:                  StorageMemory,
		SQLitePath:               "inhouse.db",
		QueueBackend:             QueueBackendStore,
		RedisAddr:                "localhost:6379",
		RedisPrefix:              "inhouse",
		ReadyCheckTimeoutMS:      120_000,
		ResultGraceMS:            60_000,
		DisputeWindowMS:          30_000,
		GoodMatchThreshold:       -0.1,
		AcceptableMatchThreshold: -0.2,
		MaxCandidates:            5_000_000,
		DefaultMu:                rating.DefaultMu,
		DefaultSigma:             rating.DefaultSigma,
		DrawProbability:          rating.DefaultDrawProbability,
		EventQueueSize:           10_000,
		EventWorkerCount:         4,
		DedupeSize:               50_000,
		MaxLeaderboardLimit:      100,
		RoleConfidence:           fuzzy.RoleThreshold,
		ChampionConfidence:       fuzzy.ChampionThreshold,
	}
}

// ReadyCheckTimeout returns the ready check deadline as a duration.
func (c *Config) ReadyCheckTimeout() time.Duration {
	return time.Duration(c.ReadyCheckTimeoutMS) * time.Millisecond
}

// ResultGrace returns the scoring delay after the first report.
func (c *Config) ResultGrace() time.Duration {
	return time.Duration(c.ResultGraceMS) * time.Millisecond
}

// DisputeWindow returns the override window.
func (c *Config) DisputeWindow() time.Duration {
	return time.Duration(c.DisputeWindowMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ReadyCheckTimeoutMS <= 0:
		return fmt.Errorf("%w: ready_check_timeout_ms must be positive", ErrInvalidConfig)
	case c.ResultGraceMS < 0:
		return fmt.Errorf("%w: result_grace_ms must not be negative", ErrInvalidConfig)
	case c.DisputeWindowMS <= 0:
		return fmt.Errorf("%w: dispute_window_ms must be positive", ErrInvalidConfig)
	case c.GoodMatchThreshold > 0:
		return fmt.Errorf("%w: good_match_threshold must not be positive", ErrInvalidConfig)
	case c.AcceptableMatchThreshold >= c.GoodMatchThreshold:
		return fmt.Errorf("%w: acceptable_match_threshold must be below good_match_threshold", ErrInvalidConfig)
	case c.DefaultSigma <= 0:
		return fmt.Errorf("%w: default_sigma must be positive", ErrInvalidConfig)
	case c.DrawProbability < 0 || c.DrawProbability >= 1:
		return fmt.Errorf("%w: draw_probability must be in [0, 1)", ErrInvalidConfig)
	}
	switch c.Storage {
	case StorageMemory:
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage %q", ErrInvalidConfig, c.Storage)
	}
	switch c.QueueBackend {
	case QueueBackendStore:
	case QueueBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown queue_backend %q", ErrInvalidConfig, c.QueueBackend)
	}
	return nil
}
