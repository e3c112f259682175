package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below.
var (
	// ErrUnknownMessage matches any *UnknownMessageError.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrProtocolViolation matches any *ProtocolError.
	ErrProtocolViolation = errors.New("protocol violation")
)

// UnknownMessageError is returned for a well-formed frame whose type tag
// is not recognized. The stream stays aligned, so reading can continue.
type UnknownMessageError struct {
	Type string
	Seq  int
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// Is reports whether target is ErrUnknownMessage.
func (e *UnknownMessageError) Is(target error) bool {
	return target == ErrUnknownMessage
}

// ProtocolError is returned for frames that cannot be parsed. After a
// ProtocolError the framing of the rest of the stream is not trustworthy.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol violation: %s: %v", e.Reason, e.Err)
	}
	return "protocol violation: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is reports whether target is ErrProtocolViolation.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}
