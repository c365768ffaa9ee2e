// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/app"
	"github.com/okian/inhouse/internal/domain/dedupe"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
)

const defaultMaxLimit = 100

// Engine is the inbound API and read views the handlers call into.
type Engine interface {
	OnEnqueueRequest(ctx context.Context, req app.EnqueueRequest) ([]model.QueueEntry, error)
	OnDequeueRequest(ctx context.Context, participant, channel string) error
	Snapshot(ctx context.Context, channel string) map[model.Role][]model.Participant
	OnReadyCheckSignal(ctx context.Context, participant, checkID string, accept bool) error
	OnResultReport(ctx context.Context, participant string, win bool) (app.ReportOutcome, error)
	OnOverrideSignal(ctx context.Context, participant string) error
	SetChampion(ctx context.Context, participant, sessionID, text string) (string, error)
	OngoingSessions() []*model.GameSession
	Session(ctx context.Context, id string) (*model.GameSession, error)
	VoidSession(ctx context.Context, id string) error
	ResetParticipant(ctx context.Context, participant string) error
	Leaderboard(ctx context.Context, role model.Role, n int) ([]repository.Entry, error)
	Ratings(ctx context.Context, participant string) ([]model.RoleRating, error)
}

// Idempotency reserves and records Idempotency-Key values.
type Idempotency interface {
	Claim(ctx context.Context, key string) (dedupe.Entry, bool)
	Record(ctx context.Context, key string, entry dedupe.Entry)
	Release(ctx context.Context, key string)
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// Option configures a Server.
type Option func(*Server)

// WithMaxLimit caps the leaderboard limit parameter.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithStreamHandler mounts h at /ws.
func WithStreamHandler(h http.Handler) Option {
	return func(s *Server) { s.stream = h }
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the matchmaking API.
type Server struct {
	engine   Engine
	idem     Idempotency
	stats    StatsProvider
	stream   http.Handler
	maxLimit int
	logger   logger.Logger
}

// NewServer creates a new API server.
func NewServer(engine Engine, idem Idempotency, stats StatsProvider, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		idem:     idem,
		stats:    stats,
		maxLimit: defaultMaxLimit,
		logger:   logger.Get().Named("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.handleStats, "stats"))

	mux.HandleFunc("POST /queue", s.mutating("queue_join", s.handleEnqueue))
	mux.HandleFunc("DELETE /queue", s.mutating("queue_leave", s.handleDequeue))
	mux.HandleFunc("GET /queue/{channel}", MetricsMiddleware(s.handleQueueSnapshot, "queue_view"))

	mux.HandleFunc("POST /ready-check", s.mutating("ready_check", s.handleReadyCheck))
	mux.HandleFunc("POST /results", s.mutating("results", s.handleResult))
	mux.HandleFunc("POST /results/override", s.mutating("override", s.handleOverride))
	mux.HandleFunc("POST /champions", s.mutating("champions", s.handleChampion))

	mux.HandleFunc("GET /sessions", MetricsMiddleware(s.handleListSessions, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.handleGetSession, "session"))
	mux.HandleFunc("DELETE /sessions/{id}", s.mutating("session_void", s.handleVoidSession))
	mux.HandleFunc("POST /admin/reset", s.mutating("admin_reset", s.handleReset))

	mux.HandleFunc("GET /leaderboard/{role}", MetricsMiddleware(s.handleLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /ratings/{participant}", MetricsMiddleware(s.handleRatings, "ratings"))

	if s.stream != nil {
		mux.Handle("GET /ws", s.stream)
	}
}

// mutating wraps inbound POST/DELETE handlers with metrics and idempotency.
func (s *Server) mutating(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return MetricsMiddleware(IdempotencyMiddleware(s.idem, endpoint, h), endpoint)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, code, Wrap(op, err))
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrBadRequest
		}
		return WrapKind("decode", ErrBadRequest, err)
	}
	return nil
}
