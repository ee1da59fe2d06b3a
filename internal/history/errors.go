package history

import "errors"

var (
	// ErrWriteTimeout indicates the writer goroutine did not confirm a
	// synchronous operation in time.
	ErrWriteTimeout = errors.New("history write timed out")
)
