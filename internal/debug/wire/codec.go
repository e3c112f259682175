package wire

import (
	"encoding/json"
	"fmt"
)

// envelope is the JSON body of every frame.
type envelope struct {
	Type string          `json:"type"`
	Seq  int             `json:"seq,omitempty"`
	Body json.RawMessage `json:"body,omitempty"`
}

type breakBody struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// exceptionBody carries text as bytes so invalid UTF-8 survives the JSON
// envelope unchanged.
type exceptionBody struct {
	Message []byte `json:"message"`
	Detail  []byte `json:"detail,omitempty"`
}

type resultBody struct {
	Payload []byte `json:"payload"`
}

// Encode serializes a message into a frame body.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}

	var body any
	switch msg := m.(type) {
	case Wait, Continue, Pause:
		// no payload
	case Break:
		body = breakBody{File: msg.FileName, Line: msg.LineNumber}
	case ExceptionInternal:
		body = exceptionBody{Message: []byte(msg.Message), Detail: []byte(msg.Detail)}
	case ExceptionUser:
		body = exceptionBody{Message: []byte(msg.Message), Detail: []byte(msg.Detail)}
	case Result:
		body = resultBody{Payload: msg.Payload}
	default:
		return nil, fmt.Errorf("encode: unsupported message type %T", m)
	}

	env := envelope{Type: string(m.Kind()), Seq: m.Seq()}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", m.Kind(), err)
		}
		env.Body = raw
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return data, nil
}

// Decode parses a frame body into a message.
//
// An unrecognized type tag returns an *UnknownMessageError; anything that
// cannot be parsed as an envelope returns a *ProtocolError.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Reason: "malformed envelope", Err: err}
	}
	if env.Type == "" {
		return nil, &ProtocolError{Reason: "missing message type"}
	}

	h := Header{Sequence: env.Seq}

	switch Kind(env.Type) {
	case KindWait:
		return Wait{Header: h}, nil
	case KindContinue:
		return Continue{Header: h}, nil
	case KindPause:
		return Pause{Header: h}, nil
	case KindBreak:
		var b breakBody
		if err := decodeBody(env, &b); err != nil {
			return nil, err
		}
		return Break{Header: h, FileName: b.File, LineNumber: b.Line}, nil
	case KindExceptionInternal:
		var b exceptionBody
		if err := decodeBody(env, &b); err != nil {
			return nil, err
		}
		return ExceptionInternal{Header: h, Message: string(b.Message), Detail: string(b.Detail)}, nil
	case KindExceptionUser:
		var b exceptionBody
		if err := decodeBody(env, &b); err != nil {
			return nil, err
		}
		return ExceptionUser{Header: h, Message: string(b.Message), Detail: string(b.Detail)}, nil
	case KindResult:
		var b resultBody
		if err := decodeBody(env, &b); err != nil {
			return nil, err
		}
		// A result always carries a payload, empty or not.
		if b.Payload == nil {
			b.Payload = []byte{}
		}
		return Result{Header: h, Payload: b.Payload}, nil
	default:
		return nil, &UnknownMessageError{Type: env.Type, Seq: env.Seq}
	}
}

func decodeBody(env envelope, v any) error {
	if len(env.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Body, v); err != nil {
		return &ProtocolError{Reason: fmt.Sprintf("malformed %s body", env.Type), Err: err}
	}
	return nil
}
