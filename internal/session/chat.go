package session

import (
	"fmt"
	"sync"

	"classwire/internal/dispatch"
	"classwire/internal/history"
	"classwire/pkg/types"
)

// Chat message kinds.
const (
	chatKindText   = "text"
	chatKindSystem = "system"
)

// Chat keeps the ordered log of received chat messages for one group.
// There is no local echo suppression: the sender's own message arrives
// back through the stream before it appears in Messages.
type Chat struct {
	notifier
	sender   Sender
	identity types.Identity
	store    *history.Store

	mu        sync.RWMutex
	messages  []types.ChatMessage
	typing    map[int]string // userID -> username of peers currently typing
	onMessage func(types.ChatMessage)
}

// NewChat creates a chat session and registers its message interests.
func NewChat(sender Sender, router *dispatch.Router, identity types.Identity, store *history.Store) *Chat {
	c := &Chat{
		sender:   sender,
		identity: identity,
		store:    store,
		typing:   make(map[int]string),
	}

	router.Subscribe(c.reduce,
		types.MessageTypeChatMessage,
		types.MessageTypeSystem,
		types.MessageTypeJoin,
		types.MessageTypeLeave,
		types.MessageTypeTyping,
	)
	router.SubscribeLifecycle(c.onLifecycle)

	return c
}

// SetOnMessage registers a callback fired for each appended entry.
func (c *Chat) SetOnMessage(f func(types.ChatMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = f
}

type chatOut struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Username string `json:"username"`
	UserID   int    `json:"user_id"`
	IsTyping *bool  `json:"is_typing,omitempty"`
}

// SendMessage emits a chat message. State only updates when the echoed
// envelope arrives back; nothing is appended here.
func (c *Chat) SendMessage(text string) error {
	if err := types.ValidateContent(text); err != nil {
		return err
	}
	if !c.sender.IsConnected() {
		c.notify(NoticeError, "cannot send message: not connected")
		return ErrNotConnected
	}

	return c.sender.Send(chatOut{
		Type:     types.MessageTypeChatMessage,
		Content:  text,
		Username: c.identity.Username,
		UserID:   c.identity.UserID,
	})
}

// JoinGroup announces this user to the group.
func (c *Chat) JoinGroup() error {
	return c.sendPresence(types.MessageTypeJoin)
}

// LeaveGroup announces departure from the group.
func (c *Chat) LeaveGroup() error {
	return c.sendPresence(types.MessageTypeLeave)
}

func (c *Chat) sendPresence(msgType string) error {
	if !c.sender.IsConnected() {
		c.notify(NoticeError, "cannot update presence: not connected")
		return ErrNotConnected
	}
	return c.sender.Send(chatOut{
		Type:     msgType,
		Username: c.identity.Username,
		UserID:   c.identity.UserID,
	})
}

// SendTyping emits the typing indicator.
func (c *Chat) SendTyping(isTyping bool) error {
	if !c.sender.IsConnected() {
		return ErrNotConnected
	}
	return c.sender.Send(chatOut{
		Type:     types.MessageTypeTyping,
		Username: c.identity.Username,
		UserID:   c.identity.UserID,
		IsTyping: &isTyping,
	})
}

// Messages returns a copy of the ordered chat log.
func (c *Chat) Messages() []types.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.ChatMessage(nil), c.messages...)
}

// TypingUsers returns usernames of peers currently typing.
func (c *Chat) TypingUsers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.typing))
	for _, name := range c.typing {
		names = append(names, name)
	}
	return names
}

// IsConnected mirrors the connection state for the chat panel.
func (c *Chat) IsConnected() bool {
	return c.sender.IsConnected()
}

func (c *Chat) reduce(env *types.Envelope) {
	switch env.Type {
	case types.MessageTypeChatMessage:
		var msg types.ChatMessage
		if err := env.Payload(&msg); err != nil {
			return
		}
		msg.Kind = chatKindText
		c.append(msg)

	case types.MessageTypeSystem:
		var msg types.ChatMessage
		if err := env.Payload(&msg); err != nil {
			return
		}
		msg.Kind = chatKindSystem
		c.append(msg)

	case types.MessageTypeJoin, types.MessageTypeLeave:
		var body struct {
			Username  string `json:"username"`
			Timestamp string `json:"timestamp"`
		}
		if err := env.Payload(&body); err != nil {
			return
		}
		verb := "joined"
		if env.Type == types.MessageTypeLeave {
			verb = "left"
		}
		c.append(types.ChatMessage{
			Kind:      chatKindSystem,
			Content:   fmt.Sprintf("%s %s the chat", body.Username, verb),
			Timestamp: body.Timestamp,
		})

	case types.MessageTypeTyping:
		var body struct {
			UserID   int    `json:"user_id"`
			Username string `json:"username"`
			IsTyping bool   `json:"is_typing"`
		}
		if err := env.Payload(&body); err != nil {
			return
		}
		c.mu.Lock()
		if body.IsTyping && body.UserID != c.identity.UserID {
			c.typing[body.UserID] = body.Username
		} else {
			delete(c.typing, body.UserID)
		}
		c.mu.Unlock()
	}
}

func (c *Chat) append(msg types.ChatMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	cb := c.onMessage
	c.mu.Unlock()

	if c.store != nil {
		c.store.SaveChatMessage(msg)
	}
	if cb != nil {
		cb(msg)
	}
}

// onLifecycle freezes derived presence state when the connection drops.
func (c *Chat) onLifecycle(ev dispatch.Event) {
	if ev.Kind == dispatch.EventClose || ev.Kind == dispatch.EventError {
		c.mu.Lock()
		c.typing = make(map[int]string)
		c.mu.Unlock()
	}
}
