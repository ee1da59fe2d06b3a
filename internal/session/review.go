package session

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"classwire/internal/dispatch"
	"classwire/pkg/types"
)

// Review tracks peer review submissions and in-flight requests. A
// single outbound message type multiplexes several actions through a
// secondary discriminant; the client-assigned request id is echoed by
// the responder and used to match responses to their request.
type Review struct {
	notifier
	sender Sender

	mu          sync.RWMutex
	submissions []types.ReviewSubmission
	pending     map[string]string // request id -> action
	reviews     json.RawMessage   // latest get_reviews payload
	dashboard   json.RawMessage   // latest reviewer dashboard payload
}

// NewReview creates the peer review session.
func NewReview(sender Sender, router *dispatch.Router) *Review {
	r := &Review{
		sender:  sender,
		pending: make(map[string]string),
	}

	router.Subscribe(r.reduce,
		types.MessageTypePeerReviewSubmitted,
		types.MessageTypePeerReviewFeedbackSubmitted,
		types.MessageTypePeerReviewData,
	)

	return r
}

type reviewOut struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type submitCodeData struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	types.SubmitCodeRequest
}

type submitFeedbackData struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	types.ReviewFeedback
}

type reviewQueryData struct {
	Action       string `json:"action"`
	RequestID    string `json:"request_id"`
	SubmissionID string `json:"submission_id,omitempty"`
}

// SubmitForReview submits code for peer review and returns the
// client-assigned request id.
func (r *Review) SubmitForReview(req types.SubmitCodeRequest) (string, error) {
	if err := types.ValidateContent(req.Code); err != nil {
		return "", err
	}
	return r.send(types.ReviewActionSubmitCode, func(id string) interface{} {
		return submitCodeData{Action: types.ReviewActionSubmitCode, RequestID: id, SubmitCodeRequest: req}
	})
}

// SubmitFeedback submits review feedback for a pending request.
func (r *Review) SubmitFeedback(feedback types.ReviewFeedback) (string, error) {
	if err := feedback.Validate(); err != nil {
		return "", err
	}
	return r.send(types.ReviewActionSubmitFeedback, func(id string) interface{} {
		return submitFeedbackData{Action: types.ReviewActionSubmitFeedback, RequestID: id, ReviewFeedback: feedback}
	})
}

// GetSubmissionReviews requests the reviews for one submission.
func (r *Review) GetSubmissionReviews(submissionID string) (string, error) {
	return r.send(types.ReviewActionGetReviews, func(id string) interface{} {
		return reviewQueryData{Action: types.ReviewActionGetReviews, RequestID: id, SubmissionID: submissionID}
	})
}

// GetReviewerDashboard requests this user's reviewer dashboard.
func (r *Review) GetReviewerDashboard() (string, error) {
	return r.send(types.ReviewActionGetDashboard, func(id string) interface{} {
		return reviewQueryData{Action: types.ReviewActionGetDashboard, RequestID: id}
	})
}

func (r *Review) send(action string, build func(requestID string) interface{}) (string, error) {
	if !r.sender.IsConnected() {
		r.notify(NoticeError, "peer review unavailable: not connected")
		return "", ErrNotConnected
	}

	requestID := uuid.New().String()
	r.mu.Lock()
	r.pending[requestID] = action
	r.mu.Unlock()

	err := r.sender.Send(reviewOut{
		Type: types.MessageTypePeerReview,
		Data: build(requestID),
	})
	if err != nil {
		r.mu.Lock()
		delete(r.pending, requestID)
		r.mu.Unlock()
		return "", err
	}
	return requestID, nil
}

// Submissions returns a copy of confirmed submissions.
func (r *Review) Submissions() []types.ReviewSubmission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.ReviewSubmission(nil), r.submissions...)
}

// Reviews returns the latest reviews payload, if any.
func (r *Review) Reviews() json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reviews
}

// Dashboard returns the latest reviewer dashboard payload, if any.
func (r *Review) Dashboard() json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dashboard
}

// PendingCount returns the number of requests awaiting a response.
func (r *Review) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

func (r *Review) reduce(env *types.Envelope) {
	switch env.Type {
	case types.MessageTypePeerReviewSubmitted:
		var res struct {
			types.Result
			types.ReviewSubmission
		}
		if err := env.DataPayload(&res); err != nil {
			return
		}
		r.resolve(res.RequestID)
		if !res.Success {
			r.notify(NoticeError, "submission rejected: "+res.Error)
			return
		}
		r.mu.Lock()
		r.submissions = append(r.submissions, res.ReviewSubmission)
		r.mu.Unlock()
		r.notify(NoticeInfo, "code submitted for review")

	case types.MessageTypePeerReviewFeedbackSubmitted:
		var res types.Result
		if err := env.DataPayload(&res); err != nil {
			return
		}
		r.resolve(res.RequestID)
		if !res.Success {
			r.notify(NoticeError, "feedback rejected: "+res.Error)
			return
		}
		r.notify(NoticeInfo, "feedback submitted")

	case types.MessageTypePeerReviewData:
		var res struct {
			RequestID string `json:"request_id"`
		}
		if err := env.DataPayload(&res); err != nil {
			return
		}
		var raw struct {
			Data json.RawMessage `json:"data"`
		}
		if err := env.Payload(&raw); err != nil {
			return
		}

		r.mu.Lock()
		action, ok := r.pending[res.RequestID]
		if !ok {
			// Not a response to anything this client asked for.
			r.mu.Unlock()
			return
		}
		delete(r.pending, res.RequestID)
		if action == types.ReviewActionGetDashboard {
			r.dashboard = raw.Data
		} else {
			r.reviews = raw.Data
		}
		r.mu.Unlock()
	}
}

// resolve clears a pending request once its response arrives.
func (r *Review) resolve(requestID string) {
	if requestID == "" {
		return
	}
	r.mu.Lock()
	delete(r.pending, requestID)
	r.mu.Unlock()
}
