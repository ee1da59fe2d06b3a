package session

import (
	"sync"

	"classwire/internal/dispatch"
	"classwire/pkg/types"
)

// Alerts surfaces the server's generic error frames. The backend
// reports domain failures for execution, tutor, review, mentorship, and
// collaboration requests as {"type":"error","message":...} with no
// correlation key, so the message is surfaced as a user-visible notice
// instead of being resolved against a specific request.
type Alerts struct {
	notifier

	mu       sync.RWMutex
	messages []string
}

// NewAlerts creates the server error surface.
func NewAlerts(router *dispatch.Router) *Alerts {
	a := &Alerts{}
	router.Subscribe(a.reduce, types.MessageTypeError)
	return a
}

// Messages returns the received server error messages, oldest first.
func (a *Alerts) Messages() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.messages...)
}

func (a *Alerts) reduce(env *types.Envelope) {
	var body struct {
		Message string `json:"message"`
	}
	if err := env.Payload(&body); err != nil {
		return
	}
	if body.Message == "" {
		body.Message = "server error"
	}

	a.mu.Lock()
	a.messages = append(a.messages, body.Message)
	a.mu.Unlock()

	a.notify(NoticeError, body.Message)
}
