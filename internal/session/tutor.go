package session

import (
	"strings"
	"sync"

	"classwire/internal/dispatch"
	"classwire/pkg/types"
)

// Tutor keeps one AI tutor conversation: an ordered turn sequence, the
// server-assigned conversation id, and a typing flag while a response
// is pending. Unlike chat, the user turn is appended optimistically.
type Tutor struct {
	notifier
	sender Sender

	mu             sync.RWMutex
	turns          []types.TutorTurn
	conversationID string
	isTyping       bool
	courseID       int
	lessonID       int
}

// NewTutor creates the AI tutor session.
func NewTutor(sender Sender, router *dispatch.Router) *Tutor {
	t := &Tutor{sender: sender}

	router.Subscribe(t.reduce, types.MessageTypeTutorResponse, types.MessageTypeError)
	router.SubscribeLifecycle(t.onLifecycle)

	return t
}

// SetLessonContext scopes subsequent questions to a course and lesson.
func (t *Tutor) SetLessonContext(courseID, lessonID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.courseID = courseID
	t.lessonID = lessonID
}

type tutorOut struct {
	Type string    `json:"type"`
	Data tutorData `json:"data"`
}

type tutorData struct {
	Question       string `json:"question"`
	CourseID       int    `json:"course_id,omitempty"`
	LessonID       int    `json:"lesson_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// SendMessageToTutor submits a question. Whitespace-only input is
// rejected with no network call and no state change. Follow-up turns
// reuse the conversation id once the server has assigned one.
func (t *Tutor) SendMessageToTutor(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyQuestion
	}
	if !t.sender.IsConnected() {
		t.notify(NoticeError, "cannot reach tutor: not connected")
		return ErrNotConnected
	}

	t.mu.Lock()
	t.turns = append(t.turns, types.TutorTurn{
		Role:    types.TurnRoleUser,
		Content: trimmed,
	})
	t.isTyping = true
	out := tutorOut{
		Type: types.MessageTypeTutorChat,
		Data: tutorData{
			Question:       trimmed,
			CourseID:       t.courseID,
			LessonID:       t.lessonID,
			ConversationID: t.conversationID,
		},
	}
	t.mu.Unlock()

	return t.sender.Send(out)
}

// ClearConversation resets the turn sequence and conversation id.
func (t *Tutor) ClearConversation() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
	t.conversationID = ""
	t.isTyping = false
}

// Turns returns a copy of the conversation.
func (t *Tutor) Turns() []types.TutorTurn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]types.TutorTurn(nil), t.turns...)
}

// ConversationID returns the server-assigned conversation id, or "".
func (t *Tutor) ConversationID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conversationID
}

// IsTyping reports whether a tutor response is pending.
func (t *Tutor) IsTyping() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isTyping
}

func (t *Tutor) reduce(env *types.Envelope) {
	if env.Type == types.MessageTypeError {
		// A failed query never produces a tutor response; the server's
		// generic error frame ends the pending turn.
		t.mu.Lock()
		t.isTyping = false
		t.mu.Unlock()
		return
	}

	var resp types.TutorResponse
	if err := env.DataPayload(&resp); err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = append(t.turns, types.TutorTurn{
		Role:        types.TurnRoleAssistant,
		Content:     resp.Response,
		CodeExample: resp.CodeExample,
		Resources:   resp.Resources,
	})
	if t.conversationID == "" && resp.QueryID != "" {
		t.conversationID = resp.QueryID
	}
	t.isTyping = false
}

func (t *Tutor) onLifecycle(ev dispatch.Event) {
	if ev.Kind == dispatch.EventClose || ev.Kind == dispatch.EventError {
		t.mu.Lock()
		t.isTyping = false
		t.mu.Unlock()
	}
}
