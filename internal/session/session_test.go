package session

import (
	"encoding/json"
	"sync"
	"testing"

	"classwire/pkg/types"
)

// fakeSender records outbound payloads and lets a test flip the
// connection state.
type fakeSender struct {
	mu        sync.Mutex
	connected bool
	sent      []interface{}
	sendErr   error
}

func (f *fakeSender) Send(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeSender) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSender) setConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) lastSent(t *testing.T) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("Nothing was sent")
	}

	data, err := json.Marshal(f.sent[len(f.sent)-1])
	if err != nil {
		t.Fatalf("Failed to re-marshal sent payload: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to decode sent payload: %v", err)
	}
	return out
}

// wire builds an inbound envelope from a raw frame string.
func wire(t *testing.T, raw string) *types.Envelope {
	t.Helper()
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &header); err != nil {
		t.Fatalf("Bad test frame %s: %v", raw, err)
	}
	return &types.Envelope{Type: header.Type, Raw: json.RawMessage(raw)}
}

// noticeRecorder captures notices for assertions.
type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) record(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}
