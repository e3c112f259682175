package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxContentLength is the largest frame body accepted (10MB).
const MaxContentLength = 10 * 1024 * 1024

// MaxHeaderLine is the longest header line accepted, terminator included.
const MaxHeaderLine = 4096

// WriteFrame writes body as a single Content-Length framed message.
func WriteFrame(w io.Writer, body []byte) error {
	header := "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"

	// One write keeps the frame contiguous on the socket.
	buf := make([]byte, 0, len(header)+len(body))
	buf = append(buf, header...)
	buf = append(buf, body...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one framed body.
//
// A clean end of stream before any header byte returns io.EOF. Framing
// that cannot be trusted returns a *ProtocolError; other read failures are
// returned wrapped.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	first := true

	for {
		line, err := readHeaderLine(r)
		if errors.Is(err, ErrProtocolViolation) {
			return nil, err
		}
		if err != nil {
			if first && line == "" && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		first = false

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &ProtocolError{Reason: fmt.Sprintf("invalid header %q", line)}
		}

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-length":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, &ProtocolError{Reason: "invalid content-length", Err: err}
			}
			if n < 0 || n > MaxContentLength {
				return nil, &ProtocolError{Reason: fmt.Sprintf("content-length %d out of range", n)}
			}
			contentLength = n
		case "content-type":
			// accepted, not interpreted
		}
	}

	if contentLength < 0 {
		return nil, &ProtocolError{Reason: "missing Content-Length header"}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// readHeaderLine reads through the next newline, failing once the line
// grows past MaxHeaderLine.
func readHeaderLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > MaxHeaderLine {
			return "", &ProtocolError{Reason: fmt.Sprintf("header line exceeds %d bytes", MaxHeaderLine)}
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m Message) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, body)
}

// ReadMessage reads and decodes one frame.
func ReadMessage(r *bufio.Reader) (Message, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(body)
}
