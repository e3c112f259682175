// Package output holds the text log that mirrors a target's output.
package output

import (
	"strings"
	"sync"
	"time"
)

// DefaultMaxLines bounds the number of retained lines.
const DefaultMaxLines = 10000

// Stream identifies the source of a line.
type Stream int

const (
	// StreamLog is a line appended by the debugger itself.
	StreamLog Stream = iota
	// StreamStdout is target standard output.
	StreamStdout
	// StreamStderr is target standard error.
	StreamStderr
)

// String returns the stream name.
func (s Stream) String() string {
	switch s {
	case StreamLog:
		return "log"
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Line is a single line of output.
type Line struct {
	// Content is the line content (without newline).
	Content string

	// Stream identifies the source.
	Stream Stream

	// Timestamp is when the line was appended.
	Timestamp time.Time

	// Number is the sequential line number since the last Clear (1-based).
	Number int
}

// Log is a bounded, append-only line buffer.
//
// Log is safe for concurrent use. Listeners are called synchronously on
// the appending goroutine, outside the lock.
type Log struct {
	mu        sync.RWMutex
	lines     []Line
	count     int
	maxLines  int
	listeners []func(Line)
	onClear   []func()
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithMaxLines sets how many lines are retained. Older lines are dropped.
func WithMaxLines(n int) LogOption {
	return func(l *Log) {
		l.maxLines = n
	}
}

// NewLog creates an empty log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{maxLines: DefaultMaxLines}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnAppend registers fn to be called for every appended line.
func (l *Log) OnAppend(fn func(Line)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// OnClear registers fn to be called after the log is cleared.
func (l *Log) OnClear(fn func()) {
	l.mu.Lock()
	l.onClear = append(l.onClear, fn)
	l.mu.Unlock()
}

// Clear removes every line and resets numbering.
func (l *Log) Clear() {
	l.mu.Lock()
	l.lines = nil
	l.count = 0
	fns := append([]func(){}, l.onClear...)
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Append adds a debugger log line.
func (l *Log) Append(content string) {
	l.AppendStream(StreamLog, content)
}

// AppendStream adds a line from the given stream. Embedded newlines
// split the content into several lines.
func (l *Log) AppendStream(stream Stream, content string) {
	for _, part := range strings.Split(strings.TrimRight(content, "\r\n"), "\n") {
		l.appendLine(stream, strings.TrimSuffix(part, "\r"))
	}
}

func (l *Log) appendLine(stream Stream, content string) {
	l.mu.Lock()
	l.count++
	line := Line{
		Content:   content,
		Stream:    stream,
		Timestamp: time.Now(),
		Number:    l.count,
	}
	l.lines = append(l.lines, line)
	if l.maxLines > 0 && len(l.lines) > l.maxLines {
		l.lines = append([]Line(nil), l.lines[len(l.lines)-l.maxLines:]...)
	}
	fns := append([]func(Line){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range fns {
		fn(line)
	}
}

// Lines returns the retained lines.
func (l *Log) Lines() []Line {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Line, len(l.lines))
	copy(result, l.lines)
	return result
}

// LastLines returns the last n retained lines.
func (l *Log) LastLines(n int) []Line {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.lines) == 0 {
		return nil
	}
	if n > len(l.lines) {
		n = len(l.lines)
	}
	result := make([]Line, n)
	copy(result, l.lines[len(l.lines)-n:])
	return result
}

// Len returns the number of retained lines.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.lines)
}

// Content returns the retained lines joined by newlines.
func (l *Log) Content() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var b strings.Builder
	for _, line := range l.lines {
		b.WriteString(line.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
