package session

import (
	"sync"

	"github.com/google/uuid"

	"classwire/internal/dispatch"
	"classwire/internal/history"
	"classwire/pkg/types"
)

// Notifications keeps the ordered notification feed. The unread count
// is always derived from the Read flags, never stored, so it cannot
// drift.
type Notifications struct {
	notifier
	store *history.Store

	mu             sync.RWMutex
	items          []types.Notification
	onNotification func(types.Notification)
}

// NewNotifications creates the notification session.
func NewNotifications(router *dispatch.Router, store *history.Store) *Notifications {
	n := &Notifications{store: store}
	router.Subscribe(n.reduce, types.MessageTypeNotification)
	return n
}

// SetOnNotification registers a callback fired per inbound notification.
func (n *Notifications) SetOnNotification(f func(types.Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onNotification = f
}

// Notifications returns a copy of the feed, oldest first.
func (n *Notifications) Notifications() []types.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]types.Notification(nil), n.items...)
}

// UnreadCount counts notifications with Read == false.
func (n *Notifications) UnreadCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	count := 0
	for i := range n.items {
		if !n.items[i].Read {
			count++
		}
	}
	return count
}

// MarkAsRead flips the matching record's Read flag locally. Server sync
// is the caller's concern, out of scope here.
func (n *Notifications) MarkAsRead(id string) bool {
	n.mu.Lock()
	changed := false
	for i := range n.items {
		if n.items[i].ID == id && !n.items[i].Read {
			n.items[i].Read = true
			changed = true
			break
		}
	}
	n.mu.Unlock()

	if changed && n.store != nil {
		n.store.MarkNotificationRead(id)
	}
	return changed
}

// ClearAll empties the feed and purges the persisted rows, so cleared
// notifications do not come back on the next start.
func (n *Notifications) ClearAll() {
	n.mu.Lock()
	n.items = nil
	n.mu.Unlock()

	if n.store != nil {
		if err := n.store.ClearNotifications(); err != nil {
			n.notify(NoticeError, "failed to clear stored notifications: "+err.Error())
		}
	}
}

func (n *Notifications) reduce(env *types.Envelope) {
	var item types.Notification
	if err := env.DataPayload(&item); err != nil {
		return
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	n.mu.Lock()
	n.items = append(n.items, item)
	cb := n.onNotification
	n.mu.Unlock()

	if n.store != nil {
		n.store.SaveNotification(item)
	}
	if cb != nil {
		cb(item)
	}
}
