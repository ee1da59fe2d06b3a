package session

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"classwire/internal/dispatch"
	"classwire/pkg/types"
)

// Mentorship tracks mentor search results, session requests, and the
// mentorship dashboard. Like peer review, one outbound type multiplexes
// actions through a secondary discriminant.
type Mentorship struct {
	notifier
	sender Sender

	mu        sync.RWMutex
	mentors   []types.Mentor
	dashboard json.RawMessage
	sessions  []types.MentorshipSessionInfo
}

// NewMentorship creates the mentorship session.
func NewMentorship(sender Sender, router *dispatch.Router) *Mentorship {
	m := &Mentorship{sender: sender}

	router.Subscribe(m.reduce,
		types.MessageTypeMentorSearchResults,
		types.MessageTypeMentorshipRequested,
		types.MessageTypeMentorshipDashboard,
	)

	return m
}

type mentorshipOut struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type findMentorsData struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	types.MentorSearch
}

type requestSessionData struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	types.SessionRequest
}

type dashboardQueryData struct {
	Action        string `json:"action"`
	RequestID     string `json:"request_id"`
	DashboardType string `json:"dashboard_type,omitempty"`
}

// FindMentors searches for mentors matching the criteria.
func (m *Mentorship) FindMentors(criteria types.MentorSearch) (string, error) {
	return m.send(func(id string) interface{} {
		return findMentorsData{Action: types.MentorshipActionFindMentors, RequestID: id, MentorSearch: criteria}
	})
}

// RequestSession requests a mentorship session.
func (m *Mentorship) RequestSession(req types.SessionRequest) (string, error) {
	return m.send(func(id string) interface{} {
		return requestSessionData{Action: types.MentorshipActionRequestSession, RequestID: id, SessionRequest: req}
	})
}

// GetDashboard requests the mentor or mentee dashboard.
func (m *Mentorship) GetDashboard(dashboardType string) (string, error) {
	return m.send(func(id string) interface{} {
		return dashboardQueryData{Action: types.MentorshipActionGetDashboard, RequestID: id, DashboardType: dashboardType}
	})
}

func (m *Mentorship) send(build func(requestID string) interface{}) (string, error) {
	if !m.sender.IsConnected() {
		m.notify(NoticeError, "mentorship unavailable: not connected")
		return "", ErrNotConnected
	}

	requestID := uuid.New().String()
	err := m.sender.Send(mentorshipOut{
		Type: types.MessageTypeMentorship,
		Data: build(requestID),
	})
	if err != nil {
		return "", err
	}
	return requestID, nil
}

// Mentors returns the latest search results.
func (m *Mentorship) Mentors() []types.Mentor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Mentor(nil), m.mentors...)
}

// Sessions returns upcoming sessions derived from the dashboard.
func (m *Mentorship) Sessions() []types.MentorshipSessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.MentorshipSessionInfo(nil), m.sessions...)
}

// Dashboard returns the latest dashboard payload, if any.
func (m *Mentorship) Dashboard() json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dashboard
}

func (m *Mentorship) reduce(env *types.Envelope) {
	switch env.Type {
	case types.MessageTypeMentorSearchResults:
		var res struct {
			Mentors []types.Mentor `json:"mentors"`
		}
		if err := env.DataPayload(&res); err != nil {
			return
		}
		m.mu.Lock()
		m.mentors = res.Mentors
		m.mu.Unlock()

	case types.MessageTypeMentorshipRequested:
		var res types.Result
		if err := env.DataPayload(&res); err != nil {
			return
		}
		if !res.Success {
			m.notify(NoticeError, "mentorship request denied: "+res.Error)
			return
		}
		m.notify(NoticeInfo, "mentorship session requested")

	case types.MessageTypeMentorshipDashboard:
		var raw struct {
			Data json.RawMessage `json:"data"`
		}
		if err := env.Payload(&raw); err != nil || raw.Data == nil {
			return
		}
		var dashboard struct {
			UpcomingSessions []types.MentorshipSessionInfo `json:"upcoming_sessions"`
		}
		if err := json.Unmarshal(raw.Data, &dashboard); err != nil {
			return
		}

		m.mu.Lock()
		m.dashboard = raw.Data
		m.sessions = dashboard.UpcomingSessions
		m.mu.Unlock()
	}
}
