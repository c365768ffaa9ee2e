package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/app"
	"github.com/okian/inhouse/internal/domain/dedupe"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
)

// sinkRecorder is a worker.Sink that keeps delivered event kinds.
type sinkRecorder struct {
	mu    sync.Mutex
	kinds []model.EventKind
}

func (s *sinkRecorder) Name() string { return "recorder" }

func (s *sinkRecorder) Deliver(_ context.Context, e model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, e.Kind)
	return nil
}

func (s *sinkRecorder) count(kind model.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestService(t *testing.T) {
	Convey("Given a service over a memory store", t, func() {
		ctx := context.Background()
		sink := &sinkRecorder{}
		svc := app.New(testConfig(),
			app.WithStore(repository.NewMemoryStore()),
			app.WithSinks(sink),
			app.WithLogger(logger.Nop()),
		)
		So(svc.Engine(), ShouldBeNil)
		So(svc.GetStats()["started"], ShouldBeFalse)

		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(context.Background()) })

		Convey("Start is idempotent and exposes the engine", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Engine(), ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["storage"], ShouldEqual, "memory")
		})

		Convey("Engine events reach the configured sinks", func() {
			for i, id := range players("s") {
				_, err := svc.Engine().OnEnqueueRequest(ctx, app.EnqueueRequest{
					ParticipantID: id,
					Channel:       "lobby",
					Roles:         []model.Role{model.Role(i / 2)},
				})
				So(err, ShouldBeNil)
			}
			deadline := time.Now().Add(3 * time.Second)
			for sink.count(model.EventCompositionProposed) == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(sink.count(model.EventCompositionProposed), ShouldEqual, 1)
		})

		Convey("Idempotency keys are claimed once", func() {
			_, ok := svc.Claim(ctx, "key-1")
			So(ok, ShouldBeTrue)

			_, ok = svc.Claim(ctx, "key-1")
			So(ok, ShouldBeFalse)

			svc.Record(ctx, "key-1", dedupe.Entry{Status: 200, Body: []byte(`{"ok":true}`)})
			entry, ok := svc.Claim(ctx, "key-1")
			So(ok, ShouldBeFalse)
			So(entry.Status, ShouldEqual, 200)
			So(string(entry.Body), ShouldEqual, `{"ok":true}`)

			_, ok = svc.Claim(ctx, "key-2")
			So(ok, ShouldBeTrue)
			svc.Release(ctx, "key-2")
			_, ok = svc.Claim(ctx, "key-2")
			So(ok, ShouldBeTrue)
		})

		Convey("Stop is idempotent", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldBeFalse)
		})
	})
}
