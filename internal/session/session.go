// Package session holds the per-feature state containers derived from
// the envelope stream: chat, notifications, code execution, AI tutor,
// peer review, mentorship, and collaboration/presence. Each module owns
// its state exclusively; cross-module communication happens only through
// the dispatch layer re-broadcasting the same inbound envelope.
package session

import "sync"

// Sender is the narrow view of the connection a feature session needs.
type Sender interface {
	Send(v interface{}) error
	IsConnected() bool
}

// NoticeLevel classifies a one-shot user-visible signal.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a one-shot user-visible signal: a domain-level failure, a
// confirmation, or a client-misuse rejection. Notices never affect
// connection state.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// notifier is embedded by every session to surface notices and the most
// recent user-visible error.
type notifier struct {
	nmu      sync.RWMutex
	onNotice func(Notice)
	lastErr  string
}

// SetOnNotice registers the consumer's notice callback.
func (n *notifier) SetOnNotice(f func(Notice)) {
	n.nmu.Lock()
	defer n.nmu.Unlock()
	n.onNotice = f
}

// LastError returns the most recent error-level notice message.
func (n *notifier) LastError() string {
	n.nmu.RLock()
	defer n.nmu.RUnlock()
	return n.lastErr
}

func (n *notifier) notify(level NoticeLevel, message string) {
	n.nmu.Lock()
	if level == NoticeError {
		n.lastErr = message
	}
	cb := n.onNotice
	n.nmu.Unlock()

	if cb != nil {
		cb(Notice{Level: level, Message: message})
	}
}
