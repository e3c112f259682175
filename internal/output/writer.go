package output

import (
	"bytes"
	"sync"
)

// maxPending bounds a line that never sees a newline.
const maxPending = 64 * 1024

// LineWriter is an io.Writer that splits written bytes into lines and
// hands each complete line, without its terminator, to emit.
type LineWriter struct {
	mu      sync.Mutex
	emit    func(line string)
	pending []byte
}

// NewLineWriter creates a writer calling emit once per line.
func NewLineWriter(emit func(line string)) *LineWriter {
	return &LineWriter{emit: emit}
}

// Writer returns a LineWriter appending to l as stream.
func (l *Log) Writer(stream Stream) *LineWriter {
	return NewLineWriter(func(line string) { l.appendLine(stream, line) })
}

// Write implements io.Writer. It never fails.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.flushLine(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) >= maxPending {
		w.flushLine(w.pending)
		w.pending = nil
	}
	return len(p), nil
}

// Flush appends any incomplete trailing line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) > 0 {
		w.flushLine(w.pending)
		w.pending = nil
	}
}

// Close flushes the writer.
func (w *LineWriter) Close() error {
	w.Flush()
	return nil
}

func (w *LineWriter) flushLine(b []byte) {
	w.emit(string(bytes.TrimSuffix(b, []byte{'\r'})))
}
