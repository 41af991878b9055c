// Package ws owns the persistent duplex connection to the backend for one
// room. It decodes tagged JSON envelopes, hands them to a caller-supplied
// handler, and redials after abnormal closures.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultReconnectDelay is the fixed wait before redialing after an
// abnormal close.
const DefaultReconnectDelay = 3 * time.Second

// Message is one inbound envelope of shape {type, ...payload}. Raw is the
// full envelope so handlers can decode type-specific fields.
type Message struct {
	Type string
	Raw  []byte
}

// Handler receives every successfully decoded inbound message, in arrival
// order, from a single goroutine.
type Handler func(Message)

// Adapter maintains one websocket connection to a room endpoint. A clean
// Close suppresses reconnection and defuses any pending retry timer; only
// abnormal closures trigger the redial loop.
type Adapter struct {
	url            string
	handler        Handler
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	retry  *time.Timer
	closed bool
}

// Option adjusts adapter construction.
type Option func(*Adapter)

// WithReconnectDelay overrides the fixed redial delay.
func WithReconnectDelay(d time.Duration) Option {
	return func(a *Adapter) { a.reconnectDelay = d }
}

// WithLogger attaches a logger for connection diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New builds an adapter for one room URL. Connect must be called to dial.
func New(url string, handler Handler, opts ...Option) *Adapter {
	a := &Adapter{
		url:            url,
		handler:        handler,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect dials the endpoint and starts the read loop. The first dial's
// error is returned to the caller; later redials are retried internally.
func (a *Adapter) Connect() error {
	conn, _, err := a.dialer.Dial(a.url, nil)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return nil
	}
	a.conn = conn
	a.mu.Unlock()
	go a.readLoop(conn)
	return nil
}

// Send marshals payload and writes it to the connection. When the connection
// is not open it logs a diagnostic and silently no-ops; callers rely on the
// next room snapshot rather than on delivery guarantees.
func (a *Adapter) Send(payload any) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		a.log.Debug().Str("url", a.url).Msg("ws send skipped: connection not open")
		return nil
	}
	return conn.WriteJSON(payload)
}

// Close cleanly shuts the connection down and forbids further reconnection
// attempts, cancelling any retry already scheduled.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.closed = true
	if a.retry != nil {
		a.retry.Stop()
		a.retry = nil
	}
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
}

func (a *Adapter) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.handleClosed(conn, err)
			return
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if jerr := json.Unmarshal(data, &envelope); jerr != nil || envelope.Type == "" {
			// Malformed envelopes are dropped; the connection stays up.
			a.log.Warn().Err(jerr).Msg("ws message dropped: undecodable envelope")
			continue
		}
		a.handler(Message{Type: envelope.Type, Raw: data})
	}
}

// handleClosed decides whether the closure was clean. Caller-initiated Close
// and normal close frames end the adapter; anything else schedules one redial
// after the configured delay, repeating until a dial sticks or Close is
// called.
func (a *Adapter) handleClosed(conn *websocket.Conn, err error) {
	conn.Close()

	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	closed := a.closed
	a.mu.Unlock()

	if closed || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		a.log.Debug().Str("url", a.url).Msg("ws closed cleanly")
		return
	}

	a.log.Warn().Err(err).Dur("retry_in", a.reconnectDelay).Msg("ws closed abnormally, scheduling reconnect")
	a.scheduleReconnect()
}

func (a *Adapter) scheduleReconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.retry = time.AfterFunc(a.reconnectDelay, func() {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return
		}
		a.retry = nil
		a.mu.Unlock()

		if err := a.Connect(); err != nil {
			a.log.Warn().Err(err).Msg("ws reconnect failed, retrying")
			a.scheduleReconnect()
		}
	})
}
