// Package wire defines the messages exchanged with a debug target and
// their encoding on the control channel.
package wire

// EnvAddr is the environment variable through which a launched target
// learns the host:port of the control channel. An empty or missing value
// means the target runs without debugging.
const EnvAddr = "MOAI_DEBUG_ADDR"

// Kind is the stable type tag of a message on the wire.
type Kind string

// Message kinds. The tag values are part of the protocol and must not change.
const (
	KindWait              Kind = "wait"
	KindContinue          Kind = "continue"
	KindPause             Kind = "pause"
	KindBreak             Kind = "break"
	KindExceptionInternal Kind = "excp_internal"
	KindExceptionUser     Kind = "excp_user"
	KindResult            Kind = "result"
)

// String returns the wire tag.
func (k Kind) String() string {
	return string(k)
}

// Known reports whether k is one of the defined message kinds.
func (k Kind) Known() bool {
	switch k {
	case KindWait, KindContinue, KindPause, KindBreak,
		KindExceptionInternal, KindExceptionUser, KindResult:
		return true
	default:
		return false
	}
}

// Message is a decoded wire message.
//
// The set of implementations is closed: only the types in this package
// satisfy the interface, so a type switch over them covers every kind.
type Message interface {
	// Kind returns the message type tag.
	Kind() Kind

	// Seq returns the correlation slot. It is carried on the wire but
	// nothing pairs directives with results yet.
	Seq() int

	isMessage()
}

// Header holds the fields shared by every message.
type Header struct {
	// Sequence is the reserved correlation number (0 when unused).
	Sequence int
}

// Seq returns the correlation number.
func (h Header) Seq() int { return h.Sequence }

func (Header) isMessage() {}

// Wait is sent by the target when it is ready and blocked until it
// receives a Continue directive.
type Wait struct {
	Header
}

// Kind implements Message.
func (Wait) Kind() Kind { return KindWait }

// Continue tells the target to resume execution.
type Continue struct {
	Header
}

// Kind implements Message.
func (Continue) Kind() Kind { return KindContinue }

// Pause asks the target to stop at the next opportunity.
type Pause struct {
	Header
}

// Kind implements Message.
func (Pause) Kind() Kind { return KindPause }

// Break reports that the target stopped at a source location.
type Break struct {
	Header

	// FileName identifies the source file as the target knows it.
	FileName string

	// LineNumber is the 1-based line the target stopped at.
	LineNumber int
}

// Kind implements Message.
func (Break) Kind() Kind { return KindBreak }

// ExceptionInternal reports a failure inside the runtime itself.
type ExceptionInternal struct {
	Header

	// Message is the diagnostic text.
	Message string

	// Detail carries stack or context information.
	Detail string
}

// Kind implements Message.
func (ExceptionInternal) Kind() Kind { return KindExceptionInternal }

// ExceptionUser reports an error raised by the user's script.
type ExceptionUser struct {
	Header

	// Message is the user-level error text.
	Message string

	// Detail carries stack or context information.
	Detail string
}

// Kind implements Message.
func (ExceptionUser) Kind() Kind { return KindExceptionUser }

// Result carries an opaque reply payload from the target.
type Result struct {
	Header

	// Payload is passed through unchanged.
	Payload []byte
}

// Kind implements Message.
func (Result) Kind() Kind { return KindResult }
