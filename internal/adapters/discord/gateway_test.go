package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeGateway upgrades the connection, completes the hello/identify
// handshake, and then drives the connection from the test's script.
type fakeGateway struct {
	upgrader websocket.Upgrader
	script   func(conn *websocket.Conn)
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// 1ms heartbeat interval keeps the client's own ticker firing during
	// the scripted traffic
	_ = conn.WriteJSON(gatewayPayload{Op: 10, D: json.RawMessage(`{"heartbeat_interval":1}`)})

	var identify gatewayPayload
	if err := conn.ReadJSON(&identify); err != nil || identify.Op != 2 {
		return
	}
	g.script(conn)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGatewayHeartbeatRepliesDoNotOverlapTickerWrites(t *testing.T) {
	var replies atomic.Int64

	gw := &fakeGateway{script: func(conn *websocket.Conn) {
		// drain everything the client writes; its heartbeat ticker is
		// firing every millisecond while we flood op-1 requests, so the
		// reply path and the ticker path write concurrently
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var p gatewayPayload
				if err := conn.ReadJSON(&p); err != nil {
					return
				}
				if p.Op == 1 {
					replies.Add(1)
				}
			}
		}()

		for i := 0; i < 200; i++ {
			if err := conn.WriteJSON(gatewayPayload{Op: 1}); err != nil {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_ = conn.Close()
		<-done
	}}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	s := NewSession(GatewayOptions{URL: wsURL(srv), Token: "t"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runOnce(ctx); err == nil {
		t.Fatal("expected an error once the server hangs up")
	}
	if ctx.Err() != nil {
		t.Fatal("session did not return after the server hung up")
	}
	if replies.Load() == 0 {
		t.Fatal("no heartbeats reached the server")
	}
}

func TestGatewayDispatchesEventsAndTracksSequence(t *testing.T) {
	type dispatched struct {
		event string
		data  string
	}
	got := make(chan dispatched, 1)

	gw := &fakeGateway{script: func(conn *websocket.Conn) {
		_ = conn.WriteJSON(gatewayPayload{
			Op: 0, S: 7, T: "GUILD_MEMBER_ADD",
			D: json.RawMessage(`{"guild_id":"g1"}`),
		})
		time.Sleep(20 * time.Millisecond)
		_ = conn.Close()
	}}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	s := NewSession(GatewayOptions{URL: wsURL(srv), Token: "t"}, func(_ context.Context, event string, data json.RawMessage) {
		select {
		case got <- dispatched{event: event, data: string(data)}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.runOnce(ctx)

	select {
	case d := <-got:
		if d.event != "GUILD_MEMBER_ADD" || d.data != `{"guild_id":"g1"}` {
			t.Fatalf("dispatched %+v", d)
		}
	default:
		t.Fatal("event was not dispatched")
	}
	if s.seq.Load() != 7 {
		t.Fatalf("seq = %d, want 7", s.seq.Load())
	}
}
