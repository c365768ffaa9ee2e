package ws_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/inhouse/internal/adapters/http/ws"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

func dial(srv *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil) //nolint:bodyclose // upgraded connection
	So(err, ShouldBeNil)
	return conn
}

func waitClients(h *ws.Hub, n int) {
	deadline := time.Now().Add(3 * time.Second)
	for h.Clients() != n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	So(h.Clients(), ShouldEqual, n)
}

func readEvent(conn *websocket.Conn) (model.Event, error) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return model.Event{}, err
	}
	var e model.Event
	err = json.Unmarshal(msg, &e)
	return e, err
}

func TestHub(t *testing.T) {
	Convey("Given a hub behind a test server", t, func() {
		ctx := context.Background()
		hub := ws.NewHub(ws.WithLogger(logger.Nop()))
		srv := httptest.NewServer(hub)
		Reset(func() {
			hub.Close()
			srv.Close()
		})
		So(hub.Name(), ShouldEqual, "ws")

		Convey("Events reach every subscriber", func() {
			a := dial(srv, "")
			defer a.Close()
			b := dial(srv, "")
			defer b.Close()
			waitClients(hub, 2)

			So(hub.Deliver(ctx, model.Event{ID: "e1", Kind: model.EventSessionConfirmed, Channel: "c1"}), ShouldBeNil)
			for _, conn := range []*websocket.Conn{a, b} {
				e, err := readEvent(conn)
				So(err, ShouldBeNil)
				So(e.ID, ShouldEqual, "e1")
				So(e.Kind, ShouldEqual, model.EventSessionConfirmed)
			}
		})

		Convey("A channel filter only passes that channel", func() {
			conn := dial(srv, "?channel=c2")
			defer conn.Close()
			waitClients(hub, 1)

			So(hub.Deliver(ctx, model.Event{ID: "skip", Channel: "c1"}), ShouldBeNil)
			So(hub.Deliver(ctx, model.Event{ID: "keep", Channel: "c2"}), ShouldBeNil)
			e, err := readEvent(conn)
			So(err, ShouldBeNil)
			So(e.ID, ShouldEqual, "keep")
		})

		Convey("Disconnected clients are forgotten", func() {
			conn := dial(srv, "")
			waitClients(hub, 1)
			So(conn.Close(), ShouldBeNil)
			waitClients(hub, 0)
		})

		Convey("Closing the hub drops clients and rejects deliveries", func() {
			conn := dial(srv, "")
			defer conn.Close()
			waitClients(hub, 1)

			hub.Close()
			So(hub.Clients(), ShouldEqual, 0)
			So(hub.Deliver(ctx, model.Event{ID: "late"}), ShouldEqual, ws.ErrClosed)
			_, err := readEvent(conn)
			So(err, ShouldNotBeNil)
		})
	})
}
