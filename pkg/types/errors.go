package types

import "errors"

var (
	ErrMissingData     = errors.New("envelope has no data payload")
	ErrMissingType     = errors.New("envelope missing type field")
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrContentTooLarge = errors.New("message content exceeds 64KB limit")
	ErrInvalidRoomID   = errors.New("room id must be 1-100 characters")
	ErrInvalidLanguage = errors.New("execution language cannot be empty")
	ErrInvalidScore    = errors.New("overall score must be between 1 and 10")
)
