package connection

import "errors"

var (
	ErrMissingURL   = errors.New("connection URL cannot be empty")
	ErrAuthRejected = errors.New("authentication rejected by server")
)
