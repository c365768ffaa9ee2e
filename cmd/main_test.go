package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/inhouse/internal/adapters/http/ws"
	"github.com/okian/inhouse/internal/app"
	"github.com/okian/inhouse/internal/config"
	"github.com/okian/inhouse/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			t.Setenv("INHOUSE_ADDR", ":8080")
			t.Setenv("INHOUSE_EVENT_QUEUE_SIZE", "1000")
			t.Setenv("INHOUSE_EVENT_WORKER_COUNT", "2")

			convey.Convey("Then it overrides the defaults", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.EventWorkerCount, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When runtime collectors are registered twice", func() {
			convey.Convey("Then nothing panics", func() {
				convey.So(registerRuntimeCollectors, convey.ShouldNotPanic)
				convey.So(registerRuntimeCollectors, convey.ShouldNotPanic)
			})
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given a started service and its HTTP server", t, func() {
		ctx := context.Background()
		cfg := config.New()
		hub := ws.NewHub()
		svc := app.New(cfg, app.WithSinks(hub))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		convey.Reset(func() {
			_ = svc.Stop(context.Background())
			hub.Close()
		})

		srv := newHTTPServer(cfg, svc, hub)
		convey.So(srv.Addr, convey.ShouldEqual, cfg.Addr)

		convey.Convey("Then health and queueing are served", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

			w = httptest.NewRecorder()
			body := strings.NewReader(`{"participant_id":"p1","name":"Ann","channel_id":"c1","roles":["mid"]}`)
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/queue", body))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

			w = httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queue/c1", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "Ann")
		})

		convey.Convey("Then the dashboard and API docs are served", func() {
			for _, path := range []string{"/", "/api-docs", "/openapi.yaml"} {
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}
