// Package connection owns the single physical WebSocket: its lifecycle
// state machine, reconnection policy, and the read loop that feeds the
// dispatch layer. Exactly one underlying socket is open at a time.
package connection

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classwire/internal/codec"
	"classwire/pkg/types"
)

// State is the connection lifecycle state, surfaced to the UI layer
// instead of exceptions for routine network flakiness.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// CloseAuthRejected is the server's close code for a rejected token.
// Retrying with the same credentials is pointless, so it is terminal.
const CloseAuthRejected = 4001

// Dialer abstracts socket establishment so tests can substitute a
// failing or in-process dialer.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config controls the connection manager.
type Config struct {
	URL               string
	ReconnectAttempts int           // failed opens before giving up
	ReconnectInterval time.Duration // delay between attempts
	PingInterval      time.Duration // heartbeat period, 0 disables
	WriteTimeout      time.Duration
	DialTimeout       time.Duration
	Dialer            Dialer
}

func (c *Config) applyDefaults() {
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// Manager is the singleton connection owner for one logical session.
// Callbacks fire serially on the read-loop goroutine; no module may
// block delivery of the next message.
type Manager struct {
	cfg Config
	id  string

	mu           sync.RWMutex
	state        State
	conn         *websocket.Conn
	gen          int  // socket generation, guards stale read loops
	dialing      bool // a dial is in flight; no second dial may start
	attempt      int
	lastErr      error
	suppressed   bool // clean close requested; no reconnection
	timer        *time.Timer
	serverConnID string
	features     []string

	writeMu sync.Mutex

	onOpen    func()
	onMessage func(*types.Envelope)
	onClose   func(code int, reason string)
	onError   func(error)
}

// NewManager creates a connection manager. No socket is opened until
// Connect is called.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	cfg.applyDefaults()

	return &Manager{
		cfg:   cfg,
		id:    "conn_" + uuid.New().String(),
		state: StateDisconnected,
	}, nil
}

// Callback setters. Set before Connect; they are read without locking
// once the read loop starts.
func (m *Manager) OnOpen(f func())                         { m.onOpen = f }
func (m *Manager) OnMessage(f func(*types.Envelope))       { m.onMessage = f }
func (m *Manager) OnClose(f func(code int, reason string)) { m.onClose = f }
func (m *Manager) OnError(f func(error))                   { m.onError = f }

// ID returns the client-assigned connection id.
func (m *Manager) ID() string { return m.id }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether sends will reach the wire.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// ReconnectAttempt returns the current failed-open count. It resets to
// zero on a clean open.
func (m *Manager) ReconnectAttempt() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempt
}

// LastError returns the most recent transport error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Welcome returns the server-assigned connection id and feature list
// from the connected frame, when one has been received.
func (m *Manager) Welcome() (string, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serverConnID, append([]string(nil), m.features...)
}

// Connect opens the socket. It is a no-op while already connecting or
// connected, while a dial is in flight, or while a reconnect timer is
// armed. Dialing happens on a background goroutine; the outcome is
// surfaced through state and the OnOpen/OnError callbacks.
func (m *Manager) Connect() {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected, StateReconnecting:
		m.mu.Unlock()
		return
	}
	if m.dialing || m.timer != nil {
		// An attempt is already pending; a second dial here would open
		// a second socket.
		m.mu.Unlock()
		return
	}
	m.suppressed = false
	m.state = StateConnecting
	m.dialing = true
	m.mu.Unlock()

	go m.dial()
}

// Reconnect forces a fresh attempt regardless of the attempt count,
// resetting backoff.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	m.suppressed = false
	m.attempt = 0
	m.stopTimerLocked()
	old := m.conn
	m.conn = nil
	m.gen++ // read loop on the old socket is now stale
	m.state = StateConnecting
	m.dialing = true
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	go m.dial()
}

// Close performs the explicit clean disconnect: close code 1000, no
// reconnection. Any scheduled reconnect timer is stopped synchronously.
func (m *Manager) Close(reason string) error {
	m.mu.Lock()
	m.suppressed = true
	m.stopTimerLocked()
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn == nil {
		return nil
	}

	m.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	m.writeMu.Unlock()

	return conn.Close()
}

// Send serializes and writes an outbound command. While not connected
// it is a silent no-op by contract: callers check IsConnected or buffer
// themselves.
func (m *Manager) Send(v interface{}) error {
	m.mu.RLock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.RUnlock()

	if !connected || conn == nil {
		return nil
	}

	data, err := codec.Encode(v)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// dial opens the socket and, on success, becomes the read loop.
func (m *Manager) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	conn, _, err := m.cfg.Dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.handleDialFailure(err)
		return
	}

	m.mu.Lock()
	m.dialing = false
	if m.suppressed || m.conn != nil {
		// Shut down, or another socket won the race. Either way this
		// one must not become a second live connection.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.gen++
	gen := m.gen
	m.state = StateConnected
	m.attempt = 0
	m.lastErr = nil
	m.mu.Unlock()

	if m.onOpen != nil {
		m.onOpen()
	}

	if m.cfg.PingInterval > 0 {
		go m.pingLoop(gen)
	}
	m.readLoop(conn, gen)
}

// handleDialFailure counts the failed open and either schedules the
// next attempt or gives up, leaving the state for the UI to observe.
func (m *Manager) handleDialFailure(err error) {
	m.mu.Lock()
	m.dialing = false
	m.lastErr = err
	m.attempt++
	exhausted := m.attempt >= m.cfg.ReconnectAttempts
	suppressed := m.suppressed
	if suppressed {
		m.state = StateDisconnected
	} else if exhausted {
		m.state = StateError
	} else {
		m.state = StateConnecting
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	log.Printf("Connection attempt failed (attempt %d): %v", m.ReconnectAttempt(), err)
	if m.onError != nil && !suppressed {
		m.onError(err)
	}
}

// scheduleReconnectLocked arms the single reconnect timer. Caller holds mu.
func (m *Manager) scheduleReconnectLocked() {
	m.stopTimerLocked()
	var t *time.Timer
	t = time.AfterFunc(m.cfg.ReconnectInterval, func() {
		m.mu.Lock()
		if m.timer == t {
			m.timer = nil
		}
		if m.suppressed || m.state == StateConnected || m.dialing {
			m.mu.Unlock()
			return
		}
		m.state = StateReconnecting
		m.dialing = true
		m.mu.Unlock()
		m.dial()
	})
	m.timer = t
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// readLoop consumes frames until the socket dies. Decode failures are
// contained here: logged, dropped, connection unaffected.
func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(err, gen)
			return
		}

		env, derr := codec.Decode(raw)
		if derr != nil {
			log.Printf("Dropping undecodable frame: %v", derr)
			continue
		}

		switch env.Type {
		case types.MessageTypePong:
			continue
		case types.MessageTypeConnected:
			m.recordWelcome(env)
		}

		if m.onMessage != nil {
			m.onMessage(env)
		}
	}
}

// handleReadError classifies the socket failure: clean close stays
// down, auth rejection is terminal, everything else reconnects.
func (m *Manager) handleReadError(err error, gen int) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer socket has replaced this one; nothing to do.
		m.mu.Unlock()
		return
	}
	suppressed := m.suppressed
	m.conn = nil

	code := -1
	reason := ""
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
		reason = ce.Text
	}

	switch {
	case suppressed:
		m.state = StateDisconnected
		code = websocket.CloseNormalClosure
	case code == websocket.CloseNormalClosure:
		m.state = StateDisconnected
	case code == CloseAuthRejected:
		m.state = StateError
		m.lastErr = ErrAuthRejected
	case ce != nil:
		// Unexpected close: reconnect per policy.
		m.state = StateConnecting
		m.scheduleReconnectLocked()
	default:
		// Transport-level error, distinct from a close frame. Surfaced
		// as error state while reconnection continues.
		m.state = StateError
		m.lastErr = err
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	if !suppressed && ce == nil && code != CloseAuthRejected && m.onError != nil {
		m.onError(err)
	}
	if m.onClose != nil {
		m.onClose(code, reason)
	}
}

// recordWelcome captures the server-assigned connection id and feature
// list from the connected frame.
func (m *Manager) recordWelcome(env *types.Envelope) {
	var welcome struct {
		ConnectionID string   `json:"connection_id"`
		Features     []string `json:"features"`
	}
	if err := env.Payload(&welcome); err != nil {
		return
	}

	m.mu.Lock()
	m.serverConnID = welcome.ConnectionID
	m.features = welcome.Features
	m.mu.Unlock()
}

// pingLoop emits heartbeat frames while this socket generation is live.
func (m *Manager) pingLoop(gen int) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.RLock()
		live := m.gen == gen && m.state == StateConnected
		m.mu.RUnlock()
		if !live {
			return
		}
		if err := m.Send(map[string]string{"type": types.MessageTypePing}); err != nil {
			return
		}
	}
}
