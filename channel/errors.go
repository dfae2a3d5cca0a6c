package channel

import "errors"

var (
	// ErrNotConnected means the operation requires an open channel
	ErrNotConnected = errors.New("channel not connected")

	// ErrInvalidEncoding means a hex or binary send payload is malformed
	ErrInvalidEncoding = errors.New("invalid payload encoding")
)
