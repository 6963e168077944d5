// Package buffer implements the owning, growable byte container used as
// the payload carrier for the wire protocol in pkg/netmsg.
package buffer

import "errors"

// ErrEmpty is returned where an operation requires a non-empty buffer.
var ErrEmpty = errors.New("buffer: empty")

// Buffer is a length-counted owned sequence of octets. Written tracks how
// many of the underlying bytes are meaningful; Capacity is len(data).
// A zero-value Buffer is empty (capacity 0, no data).
type Buffer struct {
	data    []byte
	written int
}

// New wraps data as a Buffer, fully written (capacity == written == len(data)).
func New(data []byte) *Buffer {
	return &Buffer{data: data, written: len(data)}
}

// WithCapacity allocates an empty buffer with room for n bytes but nothing
// written yet.
func WithCapacity(n int) *Buffer {
	return &Buffer{data: make([]byte, n), written: 0}
}

// FromString wraps s's bytes as a fully-written Buffer.
func FromString(s string) *Buffer {
	return New([]byte(s))
}

// Bytes returns the written portion of the buffer.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.data == nil {
		return nil
	}
	return b.data[:b.written]
}

// String returns the written portion interpreted as a printable string.
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Written returns the number of meaningful bytes.
func (b *Buffer) Written() int {
	if b == nil {
		return 0
	}
	return b.written
}

// Capacity returns the size of the underlying allocation.
func (b *Buffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Empty reports whether the buffer carries zero written bytes.
func (b *Buffer) Empty() bool {
	return b.Written() == 0
}

// Append grows the buffer, appending p and advancing Written by len(p).
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data[:b.written], p...)
	b.written = len(b.data)
}

// Clone returns a deep copy, matching the ownership-transfer discipline
// broadcast relies on (spec.md §4.3: "duplicating the buffer per recipient").
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	cp := make([]byte, b.written)
	copy(cp, b.data[:b.written])
	return &Buffer{data: cp, written: b.written}
}
