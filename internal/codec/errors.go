package codec

import "errors"

var (
	ErrEncodeFailed   = errors.New("failed to encode outbound envelope")
	ErrMalformedFrame = errors.New("malformed frame")
)
