package types

import "strings"

// maxContentSize bounds any single outbound payload field.
const maxContentSize = 64 * 1024

// ValidateContent checks an outbound chat or code payload for size and
// emptiness. Rejection here is a programmer/caller error, not a
// transport fault.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len(content) > maxContentSize {
		return ErrContentTooLarge
	}
	return nil
}

// ValidateRoomID checks a collaboration room identifier.
func ValidateRoomID(roomID string) error {
	if len(roomID) == 0 || len(roomID) > 100 {
		return ErrInvalidRoomID
	}
	return nil
}

// Validate checks an execution request before it is sent.
func (r *ExecutionRequest) Validate() error {
	if err := ValidateContent(r.Code); err != nil {
		return err
	}
	if strings.TrimSpace(r.Language) == "" {
		return ErrInvalidLanguage
	}
	return nil
}

// Validate checks review feedback before it is sent.
func (f *ReviewFeedback) Validate() error {
	if f.OverallScore < 1 || f.OverallScore > 10 {
		return ErrInvalidScore
	}
	if strings.TrimSpace(f.ReviewRequestID) == "" {
		return ErrEmptyContent
	}
	return nil
}
