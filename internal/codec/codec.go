// Package codec serializes and deserializes the wire envelope. It is
// the single point where malformed server output is contained: a frame
// that fails to decode is logged and discarded, never treated as a
// close condition.
package codec

import (
	"encoding/json"
	"strings"

	"classwire/pkg/types"
)

// Encode serializes an outbound command to a JSON text frame.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, ErrEncodeFailed
	}
	return data, nil
}

// Decode parses a raw frame into an Envelope. The full frame is kept on
// the envelope so the claiming module can decode its own payload shape.
func Decode(raw []byte) (*types.Envelope, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, ErrMalformedFrame
	}
	if strings.TrimSpace(header.Type) == "" {
		return nil, types.ErrMissingType
	}
	return &types.Envelope{
		Type: header.Type,
		Raw:  json.RawMessage(raw),
	}, nil
}
