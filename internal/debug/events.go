package debug

import (
	"github.com/dshills/moaidebug/internal/project"
)

// Notification topics published by the Controller.
const (
	// TopicSessionStarted is published once per fresh launch.
	TopicSessionStarted = "debug.session.started"

	// TopicSessionPaused is published when the target reports a break.
	TopicSessionPaused = "debug.session.paused"

	// TopicSessionContinued is published when a paused target is resumed.
	TopicSessionContinued = "debug.session.continued"

	// TopicSessionStopped is published when a session ends for any reason.
	TopicSessionStopped = "debug.session.stopped"

	// TopicExceptionRaised is published for internal and user exceptions.
	TopicExceptionRaised = "debug.exception.raised"

	// TopicMessageUnknown is published for messages the controller cannot
	// act on.
	TopicMessageUnknown = "debug.message.unknown"

	// TopicResultReceived is published for Result messages.
	TopicResultReceived = "debug.result.received"

	// TopicChannelError is published for non-fatal channel problems.
	TopicChannelError = "debug.channel.error"
)

// StopReason describes why a session ended.
type StopReason string

// Stop reasons.
const (
	StopReasonRequested    StopReason = "requested"
	StopReasonExited       StopReason = "exited"
	StopReasonDisconnected StopReason = "disconnected"
	StopReasonProtocol     StopReason = "protocol"
	StopReasonChannelLost  StopReason = "channel_lost"
	StopReasonClosed       StopReason = "closed"
)

// StartedEvent is the payload of TopicSessionStarted.
type StartedEvent struct {
	SessionID string
	Debugging bool
	// Addr is the control channel address, empty without debugging.
	Addr string
}

// PausedEvent is the payload of TopicSessionPaused.
type PausedEvent struct {
	SessionID string
	Location  Location
}

// ContinuedEvent is the payload of TopicSessionContinued.
type ContinuedEvent struct {
	SessionID string
}

// StoppedEvent is the payload of TopicSessionStopped.
type StoppedEvent struct {
	SessionID string
	Reason    StopReason
	// ExitCode is the target exit code, or -1 if it is unknown.
	ExitCode int
	Err      error
}

// ExceptionEvent is the payload of TopicExceptionRaised.
type ExceptionEvent struct {
	SessionID string
	// Internal distinguishes runtime-internal failures from user errors.
	Internal bool
	Message  string
	Detail   string
}

// UnknownMessageEvent is the payload of TopicMessageUnknown.
type UnknownMessageEvent struct {
	SessionID string
	Type      string
	Err       error
}

// ResultEvent is the payload of TopicResultReceived.
type ResultEvent struct {
	SessionID string
	Seq       int
	Payload   []byte
}

// ChannelErrorEvent is the payload of TopicChannelError.
type ChannelErrorEvent struct {
	SessionID string
	Err       error
}

// Location is a break location.
type Location struct {
	// File is the resolved file. When resolution failed only Rel and Path
	// carry the name reported by the target.
	File project.File
	Line int
	// Resolved reports whether File was found in the project.
	Resolved bool
}
