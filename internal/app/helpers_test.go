package app_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/app"
	"github.com/okian/inhouse/internal/config"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

// recorder is a Publisher that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(_ context.Context, e model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) all(kind model.EventKind) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// waitFor polls until at least n events of kind were published and returns
// the nth.
func (r *recorder) waitFor(t *testing.T, kind model.EventKind, n int) model.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if evs := r.all(kind); len(evs) >= n {
			return evs[n-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s events", n, kind)
	return model.Event{}
}

type fixture struct {
	t      *testing.T
	engine *app.Engine
	store  *repository.MemoryStore
	events *recorder
	cfg    *config.Config
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.ReadyCheckTimeoutMS = 5_000
	cfg.ResultGraceMS = 0
	cfg.DisputeWindowMS = 5_000
	cfg.Champions = []string{"Ahri", "Kai'Sa", "Lee Sin", "Thresh"}
	return cfg
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := repository.NewMemoryStore()
	return newFixtureWithStore(t, cfg, store)
}

func newFixtureWithStore(t *testing.T, cfg *config.Config, store *repository.MemoryStore) *fixture {
	t.Helper()
	rec := &recorder{}
	e := app.NewEngine(cfg, store, app.WithPublisher(rec), app.WithEngineLogger(logger.Nop()))
	if err := e.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	return &fixture{t: t, engine: e, store: store, events: rec, cfg: cfg}
}

var errDiskFull = errors.New("disk full")

// diskFullStore refuses every rating write.
type diskFullStore struct {
	*repository.MemoryStore
}

func (diskFullStore) PutRatings(context.Context, []model.RoleRating) error { return errDiskFull }

// newDiskFullFixture builds an engine whose rating writes always fail.
// f.store is the wrapped store, so reads still work.
func newDiskFullFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	store := repository.NewMemoryStore()
	rec := &recorder{}
	e := app.NewEngine(cfg, diskFullStore{store}, app.WithPublisher(rec), app.WithEngineLogger(logger.Nop()))
	if err := e.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	return &fixture{t: t, engine: e, store: store, events: rec, cfg: cfg}
}

func (f *fixture) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = f.engine.Shutdown(ctx)
}

// players returns ids prefix0..prefix9; player i queues for role i/2.
func players(prefix string) []string {
	out := make([]string, 10)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func (f *fixture) enqueueAll(channel string, ids []string) {
	ctx := context.Background()
	for i, id := range ids {
		_, err := f.engine.OnEnqueueRequest(ctx, app.EnqueueRequest{
			ParticipantID: id,
			Name:          "Name " + id,
			Channel:       channel,
			Roles:         []model.Role{model.Role(i / 2)},
		})
		So(err, ShouldBeNil)
	}
}

func (f *fixture) acceptAll(ids []string) {
	for _, id := range ids {
		So(f.engine.OnReadyCheckSignal(context.Background(), id, "", true), ShouldBeNil)
	}
}

// confirmGame queues ten players in channel, accepts the proposal and waits
// for the confirmation. It returns the session id.
func (f *fixture) confirmGame(channel string, ids []string) string {
	n := len(f.events.all(model.EventSessionConfirmed))
	f.enqueueAll(channel, ids)
	f.acceptAll(ids)
	ev := f.events.waitFor(f.t, model.EventSessionConfirmed, n+1)
	return ev.SessionID
}

func ratingOf(store repository.Store, id string, role model.Role) model.RoleRating {
	rows, err := store.GetRatings(context.Background(), id)
	So(err, ShouldBeNil)
	for _, r := range rows {
		if r.Role == role {
			return r
		}
	}
	return model.RoleRating{}
}
