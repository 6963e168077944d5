// Package netmsg implements the typed-message codec: encoding and decoding
// an ordered tuple of {signed 32-bit integers, IEEE-754 doubles, owned
// byte-buffers} into a single wire buffer, big-endian throughout (spec.md
// §4.2, §6). The codec is generic; pkg/netmsg/shapes.go fixes the specific
// field layouts used by the reference applications in this repository.
package netmsg

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
)

// ErrUnderflow is returned by the Pop* accessors when a sub-sequence has
// been exhausted.
var ErrUnderflow = errors.New("netmsg: underflow")

// ErrProtocol is returned by Decode when the header counts don't match the
// bytes actually present in the payload.
var ErrProtocol = errors.New("netmsg: malformed payload")

const headerWords = 3 // n_int, n_flt, n_buf

// Message is the logical typed message: three ordered sub-sequences
// (integers, doubles, byte-buffers) that producers append to in any
// interleaving and consumers pop FIFO-independently.
type Message struct {
	ints    []int32
	floats  []float64
	buffers []*buffer.Buffer

	intPos int
	fltPos int
	bufPos int
}

// New returns an empty Message ready for AddInt/AddFloat/AddBuffer.
func New() *Message {
	return &Message{}
}

// AddInt appends an integer to the integer sub-sequence.
func (m *Message) AddInt(v int32) { m.ints = append(m.ints, v) }

// AddFloat appends a double to the float sub-sequence.
func (m *Message) AddFloat(v float64) { m.floats = append(m.floats, v) }

// AddBuffer appends a byte-buffer to the buffer sub-sequence.
func (m *Message) AddBuffer(b *buffer.Buffer) { m.buffers = append(m.buffers, b) }

// AddString is a convenience wrapper over AddBuffer(buffer.FromString(s)).
func (m *Message) AddString(s string) { m.AddBuffer(buffer.FromString(s)) }

// PopInt returns the next unread integer in FIFO order.
func (m *Message) PopInt() (int32, error) {
	if m.intPos >= len(m.ints) {
		return 0, ErrUnderflow
	}
	v := m.ints[m.intPos]
	m.intPos++
	return v, nil
}

// PopFloat returns the next unread double in FIFO order.
func (m *Message) PopFloat() (float64, error) {
	if m.fltPos >= len(m.floats) {
		return 0, ErrUnderflow
	}
	v := m.floats[m.fltPos]
	m.fltPos++
	return v, nil
}

// PopBuffer returns the next unread byte-buffer in FIFO order.
func (m *Message) PopBuffer() (*buffer.Buffer, error) {
	if m.bufPos >= len(m.buffers) {
		return nil, ErrUnderflow
	}
	b := m.buffers[m.bufPos]
	m.bufPos++
	return b, nil
}

// PopString is a convenience wrapper over PopBuffer returning its string form.
func (m *Message) PopString() (string, error) {
	b, err := m.PopBuffer()
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Counts returns the remaining count of each sub-sequence.
func (m *Message) Counts() (ints, floats, buffers int) {
	return len(m.ints) - m.intPos, len(m.floats) - m.fltPos, len(m.buffers) - m.bufPos
}

// Encode serializes m into a single wire buffer per spec.md §6. Encode is
// pure: it reads the full sub-sequences (not just the unpopped remainder)
// and does not consume m.
func Encode(m *Message) *buffer.Buffer {
	size := headerWords*4 + len(m.ints)*4 + len(m.floats)*8
	for _, b := range m.buffers {
		size += 4 + 4 + b.Written()
	}

	out := make([]byte, size)
	off := 0

	binary.BigEndian.PutUint32(out[off:], uint32(len(m.ints)))
	off += 4
	binary.BigEndian.PutUint32(out[off:], uint32(len(m.floats)))
	off += 4
	binary.BigEndian.PutUint32(out[off:], uint32(len(m.buffers)))
	off += 4

	for _, v := range m.ints {
		binary.BigEndian.PutUint32(out[off:], uint32(v))
		off += 4
	}
	for _, v := range m.floats {
		binary.BigEndian.PutUint64(out[off:], htond(v))
		off += 8
	}
	for _, b := range m.buffers {
		binary.BigEndian.PutUint32(out[off:], uint32(b.Capacity()))
		off += 4
		binary.BigEndian.PutUint32(out[off:], uint32(b.Written()))
		off += 4
		copy(out[off:], b.Bytes())
		off += b.Written()
	}

	return buffer.New(out)
}

// Decode parses a wire buffer produced by Encode back into a Message whose
// three sub-sequences are popped in arrival order (spec.md §8 invariant 1).
func Decode(wire *buffer.Buffer) (*Message, error) {
	data := wire.Bytes()
	if len(data) < headerWords*4 {
		return nil, ErrProtocol
	}

	nInt := int(binary.BigEndian.Uint32(data[0:4]))
	nFlt := int(binary.BigEndian.Uint32(data[4:8]))
	nBuf := int(binary.BigEndian.Uint32(data[8:12]))
	off := 12

	need := off + nInt*4 + nFlt*8
	if need < 0 || len(data) < need {
		return nil, ErrProtocol
	}

	m := &Message{
		ints:   make([]int32, nInt),
		floats: make([]float64, nFlt),
	}

	for i := 0; i < nInt; i++ {
		m.ints[i] = int32(binary.BigEndian.Uint32(data[off:]))
		off += 4
	}
	for i := 0; i < nFlt; i++ {
		m.floats[i] = ntohd(binary.BigEndian.Uint64(data[off:]))
		off += 8
	}

	m.buffers = make([]*buffer.Buffer, nBuf)
	for i := 0; i < nBuf; i++ {
		if len(data) < off+8 {
			return nil, ErrProtocol
		}
		cap_ := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		written := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		if written > cap_ || len(data) < off+written {
			return nil, ErrProtocol
		}
		b := make([]byte, written)
		copy(b, data[off:off+written])
		off += written
		m.buffers[i] = buffer.New(b)
	}

	return m, nil
}

// PeekFirstInt returns the first integer of an encoded message without
// consuming it, skipping the three count words. Used to dispatch by
// message type on receipt (spec.md §4.2).
func PeekFirstInt(wire *buffer.Buffer) (int32, error) {
	data := wire.Bytes()
	if len(data) < headerWords*4 {
		return 0, ErrProtocol
	}
	nInt := int(binary.BigEndian.Uint32(data[0:4]))
	if nInt < 1 || len(data) < headerWords*4+4 {
		return 0, ErrProtocol
	}
	return int32(binary.BigEndian.Uint32(data[headerWords*4:])), nil
}

// htond converts a host double to its network (big-endian) 64-bit pattern.
// math.Float64bits already yields the IEEE-754 bit pattern as a plain
// numeric value, independent of host memory layout, so producing the wire
// form is exactly writing those bits most-significant-byte first — the Go
// equivalent of the original library's explicit byte-swap on little-endian
// hosts (spec.md §9: "do not rely on platform htonl-family coverage of
// 64-bit floats"). No separate reversal step is needed or correct here:
// reversing this value's bytes before a big-endian write would undo the
// network ordering instead of producing it.
func htond(v float64) uint64 {
	return math.Float64bits(v)
}

// ntohd is htond's inverse.
func ntohd(bits uint64) float64 {
	return math.Float64frombits(bits)
}
