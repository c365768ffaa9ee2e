package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	eventqueue "github.com/okian/inhouse/internal/adapters/mq/queue"
	workerpool "github.com/okian/inhouse/internal/adapters/mq/worker"
	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/adapters/repository/redisqueue"
	"github.com/okian/inhouse/internal/adapters/repository/sqlite"
	"github.com/okian/inhouse/internal/config"
	"github.com/okian/inhouse/internal/domain/dedupe"
	"github.com/okian/inhouse/pkg/logger"
	"github.com/okian/inhouse/pkg/metrics"
)

// Service owns the engine and its supporting infrastructure: the store, the
// queue journal, the outbound event queue with its worker pool and the
// idempotency tracker used by the HTTP layer.
type Service struct {
	mu sync.RWMutex

	cfg     *config.Config
	store   repository.Store
	journal *redisqueue.Store
	engine  *Engine
	deduper dedupe.Tracker

	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	sinks      []workerpool.Sink

	clock   func() time.Time
	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses an already opened store instead of the configured one.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSinks adds outbound event sinks next to the log sink.
func WithSinks(sinks ...workerpool.Sink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithServiceClock overrides the clock handed to the engine.
func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// New constructs a Service from cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens storage, starts the event workers and recovers the engine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting matchmaking service...")

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = store
	}

	engineOpts := []EngineOption{WithEngineLogger(s.logger.Named("engine"))}
	if s.cfg.QueueBackend == config.QueueBackendRedis {
		journal, err := redisqueue.Dial(ctx, s.cfg.RedisAddr, redisqueue.WithPrefix(s.cfg.RedisPrefix))
		if err != nil {
			return fmt.Errorf("open redis queue journal: %w", err)
		}
		s.journal = journal
		engineOpts = append(engineOpts, WithQueueJournal(journal))
		s.logger.Info(ctx, "using redis queue journal", logger.String("addr", s.cfg.RedisAddr))
	}

	s.deduper = dedupe.NewInMemoryTracker(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.EventQueueSize))
	sinks := append([]workerpool.Sink{workerpool.NewLogSink(s.logger.Named("events"))}, s.sinks...)
	s.workerPool = workerpool.NewPool(s.cfg.EventWorkerCount, s.eventQueue, sinks, workerpool.WithPoolLogger(s.logger.Named("worker-pool")))
	s.workerPool.Start(context.WithoutCancel(ctx))

	engineOpts = append(engineOpts, WithPublisher(s.eventQueue))
	if s.clock != nil {
		engineOpts = append(engineOpts, WithClock(s.clock))
	}
	s.engine = NewEngine(s.cfg, s.store, engineOpts...)
	if err := s.engine.Recover(ctx); err != nil {
		return fmt.Errorf("recover engine: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "matchmaking service started",
		logger.String("storage", s.cfg.Storage),
		logger.String("queue_backend", s.cfg.QueueBackend),
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("eventQueueSize", s.cfg.EventQueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	switch s.cfg.Storage {
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, s.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.cfg.SQLitePath))
		return store, nil
	default:
		s.logger.Info(ctx, "using in-memory store")
		return repository.NewMemoryStore(), nil
	}
}

// Stop shuts the engine down, drains outbound events and closes storage.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping matchmaking service...")

	if err := s.engine.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "engine shutdown incomplete", logger.Error(err))
	}
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "matchmaking service stopped")
	return nil
}

// Engine returns the running engine. It is nil before Start.
func (s *Service) Engine() *Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Claim reserves an idempotency key. When the key was already completed the
// recorded response is returned with ok false.
func (s *Service) Claim(ctx context.Context, key string) (dedupe.Entry, bool) {
	entry, ok := s.deduper.Claim(ctx, key)
	if !ok {
		metrics.RecordDuplicateRequest()
	}
	return entry, ok
}

// Record stores the response for a claimed key.
func (s *Service) Record(ctx context.Context, key string, entry dedupe.Entry) {
	s.deduper.Record(ctx, key, entry)
}

// Release forgets a claimed key so the request can be retried.
func (s *Service) Release(ctx context.Context, key string) {
	s.deduper.Release(ctx, key)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"storage":      s.cfg.Storage,
		"queueBackend": s.cfg.QueueBackend,
	}
	if s.started {
		stats["engine"] = s.engine.Stats()
		stats["eventQueueLength"] = s.eventQueue.Len()
		stats["workers"] = s.workerPool.Size()
		stats["dedupeSize"] = s.deduper.Size()
	}
	return stats
}
