package worker

import (
	"bytes"
	"sync"
)

// OutputBuffer is a thread-safe ring buffer of recent output lines.
type OutputBuffer struct {
	lines    []string
	capacity int
	start    int // Index of oldest line
	count    int // Number of lines stored
	mu       sync.RWMutex
}

// NewOutputBuffer creates a buffer holding at most capacity lines (minimum 1).
func NewOutputBuffer(capacity int) *OutputBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &OutputBuffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Append adds a line, overwriting the oldest when full.
func (b *OutputBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < b.capacity {
		b.lines[b.count] = line
		b.count++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % b.capacity
}

// Lines returns the stored lines oldest first.
func (b *OutputBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.lines[(b.start+i)%b.capacity]
	}
	return result
}

// LastN returns up to n of the most recent lines.
func (b *OutputBuffer) LastN(n int) []string {
	lines := b.Lines()
	if n <= 0 {
		return nil
	}
	if n > len(lines) {
		n = len(lines)
	}
	return lines[len(lines)-n:]
}

// lineWriter splits a byte stream into lines and appends them to a buffer.
// A trailing partial line is kept until the next newline or Flush.
type lineWriter struct {
	buf     *OutputBuffer
	pending []byte
	mu      sync.Mutex
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.buf.Append(string(bytes.TrimRight(w.pending[:i], "\r")))
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.buf.Append(string(w.pending))
		w.pending = nil
	}
}
