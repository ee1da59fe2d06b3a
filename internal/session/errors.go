package session

import "errors"

var (
	ErrNotConnected  = errors.New("not connected")
	ErrEmptyQuestion = errors.New("question cannot be empty")
	ErrNoActiveRoom  = errors.New("no active collaboration room")
)
