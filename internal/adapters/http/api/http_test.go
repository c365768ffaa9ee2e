package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/inhouse/internal/adapters/http/api"
	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/app"
	"github.com/okian/inhouse/internal/domain/dedupe"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

// mockEngine records calls and returns canned results.
type mockEngine struct {
	mu sync.Mutex

	enqueued  []app.EnqueueRequest
	dequeued  []string
	signals   []string
	reports   int
	err       error
	outcome   app.ReportOutcome
	sessions  []*model.GameSession
	session   *model.GameSession
	entries   []repository.Entry
	ratings   []model.RoleRating
	snapshot  map[model.Role][]model.Participant
	champion  string
	lastLimit int
}

func (m *mockEngine) OnEnqueueRequest(_ context.Context, req app.EnqueueRequest) ([]model.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.enqueued = append(m.enqueued, req)
	out := make([]model.QueueEntry, 0, len(req.Roles))
	for _, r := range req.Roles {
		out = append(out, model.QueueEntry{Channel: req.Channel, Role: r, ParticipantID: req.ParticipantID})
	}
	return out, nil
}

func (m *mockEngine) OnDequeueRequest(_ context.Context, participant, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dequeued = append(m.dequeued, participant+"@"+channel)
	return m.err
}

func (m *mockEngine) Snapshot(context.Context, string) map[model.Role][]model.Participant {
	return m.snapshot
}

func (m *mockEngine) OnReadyCheckSignal(_ context.Context, participant, checkID string, accept bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, fmt.Sprintf("%s/%s/%t", participant, checkID, accept))
	return m.err
}

func (m *mockEngine) OnResultReport(context.Context, string, bool) (app.ReportOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports++
	return m.outcome, m.err
}

func (m *mockEngine) OnOverrideSignal(context.Context, string) error { return m.err }

func (m *mockEngine) SetChampion(context.Context, string, string, string) (string, error) {
	return m.champion, m.err
}

func (m *mockEngine) OngoingSessions() []*model.GameSession { return m.sessions }

func (m *mockEngine) Session(context.Context, string) (*model.GameSession, error) {
	return m.session, m.err
}

func (m *mockEngine) VoidSession(context.Context, string) error { return m.err }

func (m *mockEngine) ResetParticipant(context.Context, string) error { return m.err }

func (m *mockEngine) Leaderboard(_ context.Context, _ model.Role, n int) ([]repository.Entry, error) {
	m.lastLimit = n
	return m.entries, m.err
}

func (m *mockEngine) Ratings(context.Context, string) ([]model.RoleRating, error) {
	return m.ratings, m.err
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any { return m.stats }

func newMux(engine api.Engine) *http.ServeMux {
	server := api.NewServer(engine, dedupe.NewInMemoryTracker(),
		&mockStatsProvider{stats: map[string]any{"started": true}},
		api.WithMaxLimit(50),
		api.WithLogger(logger.Nop()),
	)
	mux := http.NewServeMux()
	server.Register(mux)
	return mux
}

func do(mux http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		engine := &mockEngine{}
		mux := newMux(engine)

		Convey("Health, stats and metrics respond", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)

			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)

			So(do(mux, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Unknown methods are rejected by the router", func() {
			So(do(mux, http.MethodPut, "/queue", `{}`).Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestQueueHandlers(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		engine := &mockEngine{}
		mux := newMux(engine)

		Convey("Joining with role names queues the participant", func() {
			w := do(mux, http.MethodPost, "/queue", `{"participant_id":"p1","name":"Ann","channel_id":"c1","roles":["top","jg"]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(engine.enqueued, ShouldHaveLength, 1)
			So(engine.enqueued[0].Roles, ShouldResemble, []model.Role{model.RoleTop, model.RoleJungle})
			So(engine.enqueued[0].Name, ShouldEqual, "Ann")
			So(w.Body.String(), ShouldContainSubstring, `"role":"jungle"`)
		})

		Convey("Role text is passed through for fuzzy resolution", func() {
			w := do(mux, http.MethodPost, "/queue", `{"participant_id":"p1","channel_id":"c1","role_text":"mid supp"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(engine.enqueued[0].RoleText, ShouldEqual, "mid supp")
		})

		Convey("Missing fields and unknown roles are bad requests", func() {
			So(do(mux, http.MethodPost, "/queue", `{"participant_id":"p1","channel_id":"c1"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/queue", `{"channel_id":"c1","roles":["top"]}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/queue", `not json`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/queue", `{"participant_id":"p1","channel_id":"c1","bogus":1}`).Code, ShouldEqual, http.StatusBadRequest)

			w := do(mux, http.MethodPost, "/queue", `{"participant_id":"p1","channel_id":"c1","roles":["goalie"]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "unknown_role")
		})

		Convey("A participant in a game gets a conflict", func() {
			engine.err = app.ErrParticipantInGame
			w := do(mux, http.MethodPost, "/queue", `{"participant_id":"p1","channel_id":"c1","roles":["top"]}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(errorCode(w), ShouldEqual, "in_game")
		})

		Convey("Leaving without a channel leaves everywhere", func() {
			So(do(mux, http.MethodDelete, "/queue", `{"participant_id":"p1"}`).Code, ShouldEqual, http.StatusOK)
			So(engine.dequeued, ShouldResemble, []string{"p1@"})
		})

		Convey("The queue view lists every role", func() {
			engine.snapshot = map[model.Role][]model.Participant{model.RoleMid: {{ID: "p1", Name: "Ann"}}}
			w := do(mux, http.MethodGet, "/queue/c1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body map[string][]model.Participant
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body, ShouldHaveLength, model.NumRoles)
			So(body["mid"][0].Name, ShouldEqual, "Ann")
			So(body["top"], ShouldBeEmpty)
		})
	})
}

func TestGameHandlers(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		engine := &mockEngine{}
		mux := newMux(engine)

		Convey("Ready check signals require accept", func() {
			So(do(mux, http.MethodPost, "/ready-check", `{"participant_id":"p1"}`).Code, ShouldEqual, http.StatusBadRequest)

			w := do(mux, http.MethodPost, "/ready-check", `{"participant_id":"p1","check_id":"k","accept":false}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "declined")
			So(engine.signals, ShouldResemble, []string{"p1/k/false"})
		})

		Convey("Stale signals are conflicts", func() {
			engine.err = fmt.Errorf("%w: participant p1", app.ErrStaleReadyCheckSignal)
			w := do(mux, http.MethodPost, "/ready-check", `{"participant_id":"p1","accept":true}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(errorCode(w), ShouldEqual, "stale_signal")
		})

		Convey("Result reports return the outcome", func() {
			engine.outcome = app.ReportOutcome{SessionID: "s1", State: model.StateReported, Winner: model.TeamBlue}
			w := do(mux, http.MethodPost, "/results", `{"participant_id":"p1","win":true}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"state":"reported"`)
		})

		Convey("Reports without a game are not found", func() {
			engine.err = app.ErrNoUnresolvedSession
			w := do(mux, http.MethodPost, "/results", `{"participant_id":"p1","win":false}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Scored sessions reject voids as already scored", func() {
			engine.err = fmt.Errorf("%w: %w", app.ErrSessionAlreadyScored, model.ErrInvalidTransition)
			w := do(mux, http.MethodDelete, "/sessions/s1", "")
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(errorCode(w), ShouldEqual, "already_scored")
		})

		Convey("Overrides without a dispute are not found", func() {
			engine.err = app.ErrNoDispute
			So(do(mux, http.MethodPost, "/results/override", `{"participant_id":"p1"}`).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Champions come back resolved", func() {
			engine.champion = "Kai'Sa"
			w := do(mux, http.MethodPost, "/champions", `{"participant_id":"p1","champion":"kaisa"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Kai'Sa")
		})

		Convey("Sessions are listed and fetched", func() {
			engine.sessions = []*model.GameSession{{ID: "s1", State: model.StateProposed}}
			w := do(mux, http.MethodGet, "/sessions", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"state":"proposed"`)

			engine.err = app.ErrSessionNotFound
			So(do(mux, http.MethodGet, "/sessions/missing", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Unexpected errors are internal", func() {
			engine.err = fmt.Errorf("disk on fire")
			So(do(mux, http.MethodPost, "/admin/reset", `{"participant_id":"p1"}`).Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestReadHandlers(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		engine := &mockEngine{entries: []repository.Entry{{Rank: 1, ParticipantID: "p1", Role: model.RoleMid}}}
		mux := newMux(engine)

		Convey("The leaderboard defaults its limit", func() {
			w := do(mux, http.MethodGet, "/leaderboard/mid", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(engine.lastLimit, ShouldEqual, 10)
			So(w.Body.String(), ShouldContainSubstring, `"participant_id":"p1"`)
		})

		Convey("Limits are validated", func() {
			So(do(mux, http.MethodGet, "/leaderboard/mid?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/leaderboard/mid?limit=51", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/leaderboard/mid?limit=5", "").Code, ShouldEqual, http.StatusOK)
			So(engine.lastLimit, ShouldEqual, 5)
		})

		Convey("Unknown roles are bad requests", func() {
			So(do(mux, http.MethodGet, "/leaderboard/goalie", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Ratings of unknown participants are not found", func() {
			So(do(mux, http.MethodGet, "/ratings/nobody", "").Code, ShouldEqual, http.StatusNotFound)

			engine.ratings = []model.RoleRating{{ParticipantID: "p1", Role: model.RoleMid, Rating: model.Rating{Mu: 25, Sigma: 8}}}
			w := do(mux, http.MethodGet, "/ratings/p1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"mu":25`)
		})
	})
}

func TestIdempotency(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		engine := &mockEngine{outcome: app.ReportOutcome{SessionID: "s1", State: model.StateReported}}
		mux := newMux(engine)
		body := `{"participant_id":"p1","win":true}`

		Convey("A repeated key replays the first response without calling the engine", func() {
			first := do(mux, http.MethodPost, "/results", body, api.IdempotencyKeyHeader, "k1")
			second := do(mux, http.MethodPost, "/results", body, api.IdempotencyKeyHeader, "k1")
			So(first.Code, ShouldEqual, http.StatusOK)
			So(second.Code, ShouldEqual, http.StatusOK)
			So(second.Body.String(), ShouldEqual, first.Body.String())
			So(second.Header().Get(api.ReplayedHeader), ShouldEqual, "true")
			So(engine.reports, ShouldEqual, 1)
		})

		Convey("Keys are scoped per endpoint", func() {
			do(mux, http.MethodPost, "/results", body, api.IdempotencyKeyHeader, "k2")
			w := do(mux, http.MethodPost, "/ready-check", `{"participant_id":"p1","accept":true}`, api.IdempotencyKeyHeader, "k2")
			So(w.Header().Get(api.ReplayedHeader), ShouldBeEmpty)
			So(engine.signals, ShouldHaveLength, 1)
		})

		Convey("Client errors are recorded too", func() {
			engine.err = app.ErrNoUnresolvedSession
			do(mux, http.MethodPost, "/results", body, api.IdempotencyKeyHeader, "k3")
			engine.err = nil
			w := do(mux, http.MethodPost, "/results", body, api.IdempotencyKeyHeader, "k3")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(engine.reports, ShouldEqual, 1)
		})

		Convey("Server errors release the key for a retry", func() {
			engine.err = fmt.Errorf("transient")
			So(do(mux, http.MethodPost, "/results", body, api.IdempotencyKeyHeader, "k4").Code, ShouldEqual, http.StatusInternalServerError)
			engine.err = nil
			So(do(mux, http.MethodPost, "/results", body, api.IdempotencyKeyHeader, "k4").Code, ShouldEqual, http.StatusOK)
			So(engine.reports, ShouldEqual, 2)
		})

		Convey("Requests without a key are never deduplicated", func() {
			do(mux, http.MethodPost, "/results", body)
			do(mux, http.MethodPost, "/results", body)
			So(engine.reports, ShouldEqual, 2)
		})
	})
}
