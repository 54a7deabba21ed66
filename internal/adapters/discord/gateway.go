package discord

// Minimal gateway session: identify, heartbeat, and event dispatch. The bot
// only listens for lifecycle events here; interactions arrive over the HTTP
// endpoint instead.

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	perr "warden/internal/platform/errors"
	"warden/internal/platform/logger"
)

const gatewayURLDefault = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway intents (subset)
const (
	IntentGuilds        = 1 << 0
	IntentGuildMembers  = 1 << 1
	IntentGuildBans     = 1 << 2
	IntentGuildInvites  = 1 << 6
	IntentGuildMessages = 1 << 9
)

// EventHandler receives dispatched gateway events by name
type EventHandler func(ctx context.Context, event string, data json.RawMessage)

// GatewayOptions configures a Session
type GatewayOptions struct {
	URL     string
	Token   string
	Intents int
}

// Session is a single gateway connection with automatic reconnect
type Session struct {
	opts    GatewayOptions
	handler EventHandler
	log     logger.Logger
	seq     atomic.Int64
}

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// gatewayConn serializes writes: the read loop and the heartbeat goroutine
// both send frames, and the websocket allows only one writer at a time
type gatewayConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *gatewayConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// NewSession creates a gateway session; Run connects it
func NewSession(opts GatewayOptions, handler EventHandler) *Session {
	if opts.URL == "" {
		opts.URL = gatewayURLDefault
	}
	return &Session{
		opts:    opts,
		handler: handler,
		log:     *logger.Named("gateway"),
	}
}

// Run connects and processes events until ctx is cancelled, reconnecting
// with backoff on connection loss
func (s *Session) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Dur("reconnect_in", backoff).Msg("gateway connection lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Session) runOnce(ctx context.Context) error {
	raw, _, err := websocket.DefaultDialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "gateway dial")
	}
	defer raw.Close()
	conn := &gatewayConn{conn: raw}

	// hello frame carries the heartbeat interval
	var hello gatewayPayload
	if err := raw.ReadJSON(&hello); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "gateway hello")
	}
	if hello.Op != 10 {
		return perr.Unavailablef("gateway expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "gateway hello decode")
	}

	identify := map[string]any{
		"token":   s.opts.Token,
		"intents": s.opts.Intents,
		"properties": map[string]string{
			"os": "linux", "browser": "warden", "device": "warden",
		},
	}
	if err := conn.writeJSON(gatewayPayload{Op: 2, D: mustJSON(identify)}); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "gateway identify")
	}

	hbCtx, stopHB := context.WithCancel(ctx)
	defer stopHB()
	go s.heartbeat(hbCtx, conn, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)

	for {
		var p gatewayPayload
		if err := raw.ReadJSON(&p); err != nil {
			return perr.Wrap(err, perr.ErrorCodeUnavailable, "gateway read")
		}
		switch p.Op {
		case 0: // dispatch
			s.seq.Store(p.S)
			if s.handler != nil {
				s.handler(ctx, p.T, p.D)
			}
		case 1: // server requested heartbeat
			_ = conn.writeJSON(gatewayPayload{Op: 1, D: mustJSON(s.seq.Load())})
		case 7, 9: // reconnect / invalid session
			return perr.Unavailablef("gateway asked for reconnect (op %d)", p.Op)
		}
	}
}

func (s *Session) heartbeat(ctx context.Context, conn *gatewayConn, every time.Duration) {
	if every <= 0 {
		every = 41 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.writeJSON(gatewayPayload{Op: 1, D: mustJSON(s.seq.Load())}); err != nil {
				return
			}
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
