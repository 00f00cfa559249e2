package interp

import (
	"bytes"
	"sync"
)

// DefaultCaptureLimit bounds the capture buffer when nobody drains it.
const DefaultCaptureLimit = 1 << 20

// Buffer accumulates the interpreter's merged stdout/stderr. Writes come
// from the process reader goroutines; Drain and Reset come from turns.
type Buffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

// NewBuffer returns a buffer that keeps at most limit bytes, dropping the
// oldest output first. A limit <= 0 means unbounded.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

// Write appends p. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if b.limit > 0 && b.buf.Len() > b.limit {
		b.buf.Next(b.buf.Len() - b.limit)
	}
	return len(p), nil
}

// Drain returns everything captured so far and empties the buffer.
func (b *Buffer) Drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

// Reset discards captured output.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}

// Len reports the number of unconsumed bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
