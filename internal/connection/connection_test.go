package connection

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classwire/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer starts a websocket endpoint that hands each accepted
// connection to handle on its own goroutine.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func testConfig(url string) Config {
	return Config{
		URL:               url,
		ReconnectAttempts: 3,
		ReconnectInterval: 20 * time.Millisecond,
		DialTimeout:       time.Second,
		WriteTimeout:      time.Second,
	}
}

func TestManager_ConnectAndReceive(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"connected","connection_id":"srv-1","features":["chat","notifications"]}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"message","content":"hello"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	m, err := NewManager(testConfig(url))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	var mu sync.Mutex
	var gotTypes []string
	opened := make(chan struct{})
	m.OnOpen(func() { close(opened) })
	m.OnMessage(func(env *types.Envelope) {
		mu.Lock()
		gotTypes = append(gotTypes, env.Type)
		mu.Unlock()
	})

	m.Connect()
	defer m.Close("test done")

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen never fired")
	}

	if m.State() != StateConnected {
		t.Errorf("Expected connected state, got %s", m.State())
	}

	waitFor(t, 2*time.Second, "message delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotTypes) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if gotTypes[0] != "connected" || gotTypes[1] != "message" {
		t.Errorf("Unexpected delivery order: %v", gotTypes)
	}

	connID, features := m.Welcome()
	if connID != "srv-1" {
		t.Errorf("Expected server connection id srv-1, got %q", connID)
	}
	if len(features) != 2 {
		t.Errorf("Expected 2 features, got %v", features)
	}
}

func TestManager_CleanCloseNoReconnect(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	m, err := NewManager(testConfig(url))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Connect()

	waitFor(t, 2*time.Second, "connection", m.IsConnected)

	if err := m.Close("user logout"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("Expected disconnected immediately after Close, got %s", m.State())
	}

	// Wait past several reconnect intervals; the state must not move.
	time.Sleep(100 * time.Millisecond)
	if m.State() != StateDisconnected {
		t.Errorf("Reconnect ran after clean close, state %s", m.State())
	}
}

func TestManager_ServerNormalCloseStaysDown(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), deadline)
		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	})

	m, err := NewManager(testConfig(url))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	closed := make(chan int, 1)
	m.OnClose(func(code int, reason string) { closed <- code })
	m.Connect()

	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Errorf("Expected close code 1000, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose never fired")
	}

	waitFor(t, time.Second, "disconnected state", func() bool {
		return m.State() == StateDisconnected
	})
	time.Sleep(100 * time.Millisecond)
	if m.State() != StateDisconnected {
		t.Errorf("Reconnect ran after server 1000 close, state %s", m.State())
	}
}

func TestManager_AuthRejectedTerminal(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseAuthRejected, "invalid token"), deadline)
		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	})

	m, err := NewManager(testConfig(url))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Connect()

	waitFor(t, 2*time.Second, "error state", func() bool {
		return m.State() == StateError
	})
	if !errors.Is(m.LastError(), ErrAuthRejected) {
		t.Errorf("Expected ErrAuthRejected, got %v", m.LastError())
	}

	// Terminal: no further attempts.
	time.Sleep(100 * time.Millisecond)
	if m.State() != StateError {
		t.Errorf("Reconnect ran after auth rejection, state %s", m.State())
	}
}

func TestManager_AbnormalCloseReconnects(t *testing.T) {
	var conns int32
	url := newWSServer(t, func(conn *websocket.Conn) {
		n := atomic.AddInt32(&conns, 1)
		if n == 1 {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseServiceRestart, "restarting"), deadline)
			_ = conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	m, err := NewManager(testConfig(url))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Connect()
	defer m.Close("test done")

	waitFor(t, 2*time.Second, "reconnection", func() bool {
		return atomic.LoadInt32(&conns) >= 2 && m.IsConnected()
	})

	if m.ReconnectAttempt() != 0 {
		t.Errorf("Attempt counter should reset on clean open, got %d", m.ReconnectAttempt())
	}
}

type failingDialer struct {
	calls int32
}

func (d *failingDialer) DialContext(ctx context.Context, urlStr string, h http.Header) (*websocket.Conn, *http.Response, error) {
	atomic.AddInt32(&d.calls, 1)
	return nil, nil, errors.New("connection refused")
}

func TestManager_DialFailureBounded(t *testing.T) {
	dialer := &failingDialer{}
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.Dialer = dialer

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	var errCount int32
	m.OnError(func(err error) { atomic.AddInt32(&errCount, 1) })
	m.Connect()

	waitFor(t, 2*time.Second, "exhausted attempts", func() bool {
		return m.State() == StateError
	})

	if got := atomic.LoadInt32(&dialer.calls); got != 3 {
		t.Errorf("Expected exactly 3 dial attempts, got %d", got)
	}
	if m.ReconnectAttempt() != 3 {
		t.Errorf("Expected attempt count 3, got %d", m.ReconnectAttempt())
	}
	if m.LastError() == nil {
		t.Error("Expected a recorded last error")
	}
	if atomic.LoadInt32(&errCount) == 0 {
		t.Error("OnError should fire for failed attempts")
	}

	// Give the scheduler time to prove no further attempts happen.
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&dialer.calls); got != 3 {
		t.Errorf("Attempts continued past the bound: %d", got)
	}
}

type countingDialer struct {
	calls int32
}

func (d *countingDialer) DialContext(ctx context.Context, urlStr string, h http.Header) (*websocket.Conn, *http.Response, error) {
	atomic.AddInt32(&d.calls, 1)
	return websocket.DefaultDialer.DialContext(ctx, urlStr, h)
}

func TestManager_ConnectDuringReconnectWindowIsNoop(t *testing.T) {
	var conns int32
	url := newWSServer(t, func(conn *websocket.Conn) {
		if atomic.AddInt32(&conns, 1) == 1 {
			// Kill the TCP stream without a close frame so the client
			// sees a transport error and schedules a reconnect. A plain
			// Close sends a FIN, which gorilla reports as CloseError
			// 1006; SetLinger(0) forces an RST so the client gets a
			// genuine transport error.
			if tc, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
				_ = tc.SetLinger(0)
			}
			_ = conn.UnderlyingConn().Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	dialer := &countingDialer{}
	cfg := testConfig(url)
	cfg.ReconnectInterval = 100 * time.Millisecond
	cfg.Dialer = dialer

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Connect()
	defer m.Close("test done")

	waitFor(t, 2*time.Second, "error state with reconnect pending", func() bool {
		return m.State() == StateError
	})

	// The reconnect timer is armed. Extra Connect calls in this window
	// must not start a second dial alongside the timer's own.
	for i := 0; i < 5; i++ {
		m.Connect()
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, "reconnection", func() bool {
		return atomic.LoadInt32(&conns) >= 2 && m.IsConnected()
	})
	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&dialer.calls); got != 2 {
		t.Errorf("Expected exactly 2 dials (initial + scheduled), got %d", got)
	}
	if got := atomic.LoadInt32(&conns); got != 2 {
		t.Errorf("Expected exactly 2 server connections, got %d", got)
	}
}

func TestManager_SendWhileDisconnected(t *testing.T) {
	m, err := NewManager(testConfig("ws://127.0.0.1:1/ws"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	// Silent no-op by contract.
	if err := m.Send(map[string]string{"type": "message"}); err != nil {
		t.Errorf("Send while disconnected should be a no-op, got %v", err)
	}
}

func TestManager_MalformedFrameDropped(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{broken json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"content":"no type"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","content":"still alive"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	m, err := NewManager(testConfig(url))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	got := make(chan *types.Envelope, 4)
	m.OnMessage(func(env *types.Envelope) { got <- env })
	m.Connect()
	defer m.Close("test done")

	select {
	case env := <-got:
		if env.Type != "message" {
			t.Errorf("Expected the valid frame, got type %q", env.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Valid frame after malformed ones was never delivered")
	}

	if m.State() != StateConnected {
		t.Errorf("Malformed frames must not kill the connection, state %s", m.State())
	}
}

func TestManager_Heartbeat(t *testing.T) {
	pings := make(chan string, 4)
	url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			pings <- string(raw)
		}
	})

	cfg := testConfig(url)
	cfg.PingInterval = 20 * time.Millisecond

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Connect()
	defer m.Close("test done")

	select {
	case frame := <-pings:
		if !strings.Contains(frame, `"ping"`) {
			t.Errorf("Expected a ping frame, got %s", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No heartbeat frame arrived")
	}
}

func TestNewManager_RequiresURL(t *testing.T) {
	if _, err := NewManager(Config{}); err != ErrMissingURL {
		t.Errorf("Expected ErrMissingURL, got %v", err)
	}
}
