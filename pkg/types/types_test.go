package types

import (
	"strings"
	"testing"
)

func TestEnvelope_Payload(t *testing.T) {
	env := &Envelope{
		Type: MessageTypeChatMessage,
		Raw:  []byte(`{"type":"message","content":"hello","username":"alice","user_id":7}`),
	}

	var msg ChatMessage
	if err := env.Payload(&msg); err != nil {
		t.Fatalf("Payload failed: %v", err)
	}
	if msg.Content != "hello" {
		t.Errorf("Expected content 'hello', got %q", msg.Content)
	}
	if msg.Username != "alice" || msg.UserID != 7 {
		t.Errorf("Expected alice/7, got %s/%d", msg.Username, msg.UserID)
	}
}

func TestEnvelope_DataPayload(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"nested data object", `{"type":"notification","data":{"id":"n1","title":"Hi","message":"there"}}`, false},
		{"missing data key", `{"type":"notification","title":"Hi"}`, true},
		{"null data", `{"type":"notification","data":null}`, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := &Envelope{Type: MessageTypeNotification, Raw: []byte(tc.raw)}
			var n Notification
			err := env.DataPayload(&n)
			if tc.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DataPayload failed: %v", err)
			}
			if n.ID != "n1" || n.Title != "Hi" {
				t.Errorf("Unexpected notification: %+v", n)
			}
		})
	}
}

func TestValidateContent(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr error
	}{
		{"valid content", "print('hi')", nil},
		{"empty string", "", ErrEmptyContent},
		{"whitespace only", "   \n\t", ErrEmptyContent},
		{"oversized content", strings.Repeat("a", 64*1024+1), ErrContentTooLarge},
		{"at size limit", strings.Repeat("a", 64*1024), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateContent(tc.content); err != tc.wantErr {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateRoomID(t *testing.T) {
	if err := ValidateRoomID("lesson-42"); err != nil {
		t.Errorf("Expected valid room id, got %v", err)
	}
	if err := ValidateRoomID(""); err != ErrInvalidRoomID {
		t.Errorf("Expected ErrInvalidRoomID for empty id, got %v", err)
	}
	if err := ValidateRoomID(strings.Repeat("r", 101)); err != ErrInvalidRoomID {
		t.Errorf("Expected ErrInvalidRoomID for long id, got %v", err)
	}
}

func TestExecutionRequest_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		req     ExecutionRequest
		wantErr error
	}{
		{"valid request", ExecutionRequest{Code: "print(1)", Language: "python"}, nil},
		{"empty code", ExecutionRequest{Code: "", Language: "python"}, ErrEmptyContent},
		{"missing language", ExecutionRequest{Code: "print(1)", Language: " "}, ErrInvalidLanguage},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.req.Validate(); err != tc.wantErr {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestReviewFeedback_Validate(t *testing.T) {
	valid := ReviewFeedback{ReviewRequestID: "rr1", OverallScore: 7}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid feedback, got %v", err)
	}

	for _, score := range []int{0, -1, 11} {
		f := ReviewFeedback{ReviewRequestID: "rr1", OverallScore: score}
		if err := f.Validate(); err != ErrInvalidScore {
			t.Errorf("Score %d: expected ErrInvalidScore, got %v", score, err)
		}
	}

	noID := ReviewFeedback{OverallScore: 5}
	if err := noID.Validate(); err != ErrEmptyContent {
		t.Errorf("Expected ErrEmptyContent for missing request id, got %v", err)
	}
}

func TestExecutionRecord_Terminal(t *testing.T) {
	terminal := []string{ExecutionStatusSuccess, ExecutionStatusError, ExecutionStatusTimeout, ExecutionStatusInterrupted}
	for _, s := range terminal {
		rec := ExecutionRecord{Status: s}
		if !rec.Terminal() {
			t.Errorf("Status %s should be terminal", s)
		}
	}

	for _, s := range []string{ExecutionStatusPending, ExecutionStatusRunning, ""} {
		rec := ExecutionRecord{Status: s}
		if rec.Terminal() {
			t.Errorf("Status %q should not be terminal", s)
		}
	}
}
