package types

import (
	"encoding/json"
)

// Inbound and outbound message type tags. Every envelope on the wire
// carries exactly one of these in its "type" field; the dispatch layer
// routes on string equality.
const (
	// Chat
	MessageTypeChatMessage = "message"
	MessageTypeSystem      = "system"
	MessageTypeJoin        = "join"
	MessageTypeLeave       = "leave"
	MessageTypeTyping      = "typing"

	// Notifications
	MessageTypeNotification = "notification"

	// Code execution
	MessageTypeCodeExecution     = "code_execution"
	MessageTypeExecutionStart    = "code_execution_start"
	MessageTypeExecutionOutput   = "execution_output"
	MessageTypeExecutionComplete = "execution_complete"
	MessageTypeExecutionError    = "execution_error"

	// AI tutor
	MessageTypeTutorChat     = "ai_tutor_chat"
	MessageTypeTutorResponse = "ai_tutor_response"

	// Peer review
	MessageTypePeerReview                  = "peer_review"
	MessageTypePeerReviewSubmitted         = "peer_review_submitted"
	MessageTypePeerReviewFeedbackSubmitted = "peer_review_feedback_submitted"
	MessageTypePeerReviewData              = "peer_review_data"

	// Mentorship
	MessageTypeMentorship          = "mentorship"
	MessageTypeMentorSearchResults = "mentor_search_results"
	MessageTypeMentorshipRequested = "mentorship_requested"
	MessageTypeMentorshipDashboard = "mentorship_dashboard"

	// Collaboration / presence
	MessageTypeJoinRoom         = "join_room"
	MessageTypeLeaveRoom        = "leave_room"
	MessageTypeRoomJoined       = "room_joined"
	MessageTypeRoomLeft         = "room_left"
	MessageTypeUserJoined       = "user_joined"
	MessageTypeUserLeft         = "user_left"
	MessageTypeCollaboration    = "collaboration"
	MessageTypeCodeChange       = "code_change"
	MessageTypeWorkspaceUpdate  = "workspace_update"
	MessageTypeStudyGroupJoined = "study_group_joined"

	// Connection-level
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
)

// Secondary action discriminants carried inside a "data" payload for
// the message types that multiplex several operations under one tag.
const (
	ReviewActionSubmitCode     = "submit_code"
	ReviewActionSubmitFeedback = "submit_feedback"
	ReviewActionGetReviews     = "get_reviews"
	ReviewActionGetDashboard   = "get_dashboard"

	MentorshipActionFindMentors    = "find_mentors"
	MentorshipActionRequestSession = "request_session"
	MentorshipActionGetDashboard   = "get_dashboard"

	CollabActionCodeCollaboration = "code_collaboration"
	CollabActionSharedWorkspace   = "shared_workspace"
	CollabActionStudyGroup        = "study_group"
)

// Envelope is the top-level wire unit: a type tag plus the raw frame it
// arrived in. Feature payloads are decoded lazily by the module that
// claimed the type.
type Envelope struct {
	Type string
	Raw  json.RawMessage
}

// Payload decodes the envelope's full frame into v.
func (e *Envelope) Payload(v interface{}) error {
	return json.Unmarshal(e.Raw, v)
}

// DataPayload decodes the nested "data" object carried by envelopes that
// wrap their payload one level down (notification, ai_tutor_response,
// peer_review_*, mentorship_*).
func (e *Envelope) DataPayload(v interface{}) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(e.Raw, &wrapper); err != nil {
		return err
	}
	if wrapper.Data == nil {
		return ErrMissingData
	}
	return json.Unmarshal(wrapper.Data, v)
}

// Identity is the authenticated user context supplied by the auth
// collaborator at connection construction time.
type Identity struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Token    string `json:"-"`
}

// ChatMessage is one entry in a chat session's ordered log.
type ChatMessage struct {
	ID        string `json:"id,omitempty"`
	Kind      string `json:"kind"` // "text" or "system"
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	UserID    int    `json:"user_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Notification carries a server-pushed notification. The unread count is
// never stored alongside these; it is derived from the Read flags.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Category  string `json:"category,omitempty"`
	Read      bool   `json:"read"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Execution statuses. Pending through terminal states; Interrupted is
// client-assigned when the connection drops mid-run.
const (
	ExecutionStatusPending     = "pending"
	ExecutionStatusRunning     = "running"
	ExecutionStatusSuccess     = "success"
	ExecutionStatusError       = "error"
	ExecutionStatusTimeout     = "timeout"
	ExecutionStatusInterrupted = "interrupted"
)

// ExecutionRecord tracks one code run, keyed by the server-assigned
// execution id. Output accumulates streamed chunks in arrival order.
type ExecutionRecord struct {
	ID            string `json:"execution_id"`
	Language      string `json:"language,omitempty"`
	Status        string `json:"status"`
	Output        string `json:"output"`
	Stdout        string `json:"stdout,omitempty"`
	Stderr        string `json:"stderr,omitempty"`
	Error         string `json:"error,omitempty"`
	ExecutionTime int    `json:"execution_time,omitempty"` // milliseconds
}

// Terminal reports whether the record can no longer change.
func (r *ExecutionRecord) Terminal() bool {
	switch r.Status {
	case ExecutionStatusSuccess, ExecutionStatusError, ExecutionStatusTimeout, ExecutionStatusInterrupted:
		return true
	}
	return false
}

// ExecutionRequest is the client side of a code run.
type ExecutionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	LessonID int    `json:"lesson_id,omitempty"`
	Timeout  int    `json:"timeout,omitempty"` // seconds, server-enforced
}

// Tutor turn roles.
const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

// TutorTurn is one turn in an AI tutor conversation.
type TutorTurn struct {
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	CodeExample string   `json:"code_example,omitempty"`
	Resources   []string `json:"resources,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

// TutorResponse is the nested data payload of an ai_tutor_response.
type TutorResponse struct {
	Response    string   `json:"response"`
	CodeExample string   `json:"code_example,omitempty"`
	Resources   []string `json:"resources,omitempty"`
	QueryID     string   `json:"query_id,omitempty"`
}

// ReviewSubmission is a confirmed peer review submission.
type ReviewSubmission struct {
	ID       string `json:"submission_id"`
	LessonID int    `json:"lesson_id,omitempty"`
	Title    string `json:"title"`
	Language string `json:"language,omitempty"`
	Status   string `json:"status,omitempty"`
}

// SubmitCodeRequest is the payload for the submit_code review action.
type SubmitCodeRequest struct {
	LessonID    int    `json:"lesson_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code"`
	Language    string `json:"language"`
	ReviewType  string `json:"review_type,omitempty"`
}

// ReviewFeedback is the payload for the submit_feedback review action.
type ReviewFeedback struct {
	ReviewRequestID  string            `json:"review_request_id"`
	OverallScore     int               `json:"overall_score"`
	DetailedFeedback map[string]string `json:"detailed_feedback,omitempty"`
	Strengths        []string          `json:"strengths,omitempty"`
	Improvements     []string          `json:"improvements,omitempty"`
}

// Mentor is one entry in a mentor search result.
type Mentor struct {
	ID             int      `json:"mentor_id"`
	Name           string   `json:"name"`
	ExpertiseAreas []string `json:"expertise_areas,omitempty"`
	Rating         float64  `json:"rating,omitempty"`
	HourlyRate     float64  `json:"hourly_rate,omitempty"`
}

// MentorSearch is the payload for the find_mentors action.
type MentorSearch struct {
	ExpertiseAreas []string `json:"expertise_areas,omitempty"`
	SessionType    string   `json:"session_type,omitempty"`
	Budget         float64  `json:"budget,omitempty"`
}

// SessionRequest is the payload for the request_session action.
type SessionRequest struct {
	ExpertiseAreas    []string `json:"expertise_areas,omitempty"`
	Goals             []string `json:"goals,omitempty"`
	SessionType       string   `json:"session_type,omitempty"`
	DurationMinutes   int      `json:"duration_minutes,omitempty"`
	PreferredMentorID int      `json:"mentor_id,omitempty"`
}

// MentorshipSessionInfo is one upcoming session derived from the
// mentorship dashboard payload.
type MentorshipSessionInfo struct {
	ID          string `json:"session_id"`
	MentorName  string `json:"mentor_name,omitempty"`
	Topic       string `json:"topic,omitempty"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
}

// CodeChange is a collaborative editing delta broadcast to a room.
type CodeChange struct {
	UserID  int             `json:"user_id"`
	Changes json.RawMessage `json:"changes"`
}

// Result is the shared shape of domain-level outcomes delivered inside
// otherwise well-formed envelopes. Success false is a business outcome,
// not a transport fault.
type Result struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
