package channel

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ChannelError.
var (
	// ErrNotConnected is returned by Send before the target has connected.
	ErrNotConnected = errors.New("channel not connected")

	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("channel closed")

	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = errors.New("channel already serving")
)

// BindError is returned when the listening socket cannot be created.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ChannelError describes a failed channel operation.
type ChannelError struct {
	Op  string // "serve", "accept", "receive", "send"
	Err error

	// Dead is true when the connection can no longer be used.
	Dead bool
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// IsDead reports whether err indicates the connection is unusable.
func IsDead(err error) bool {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Dead
	}
	return false
}
