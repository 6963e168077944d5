package netmsg

import (
	"math"
	"testing"

	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New()
	m.AddInt(1)
	m.AddInt(-7)
	m.AddFloat(3.5)
	m.AddFloat(-1.25)
	m.AddFloat(0)
	m.AddString("alice")
	m.AddBuffer(buffer.New([]byte{0x00, 0xff, 0x10}))

	wire := Encode(m)
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	wantInts := []int32{1, -7}
	for _, want := range wantInts {
		v, err := got.PopInt()
		if err != nil || v != want {
			t.Fatalf("PopInt = %d, %v; want %d", v, err, want)
		}
	}
	if _, err := got.PopInt(); err != ErrUnderflow {
		t.Fatalf("expected underflow after ints exhausted, got %v", err)
	}

	wantFloats := []float64{3.5, -1.25, 0}
	for _, want := range wantFloats {
		v, err := got.PopFloat()
		if err != nil || v != want {
			t.Fatalf("PopFloat = %v, %v; want %v", v, err, want)
		}
	}

	name, err := got.PopString()
	if err != nil || name != "alice" {
		t.Fatalf("PopString = %q, %v; want alice", name, err)
	}
	buf, err := got.PopBuffer()
	if err != nil {
		t.Fatalf("PopBuffer: %v", err)
	}
	if buf.Written() != 3 || buf.Bytes()[1] != 0xff {
		t.Fatalf("buffer mismatch: %v", buf.Bytes())
	}
}

func TestPeekFirstInt(t *testing.T) {
	m := NewIdentMessage(MsgTypeIdentRequest, 42, "bob", "secret")
	wire := Encode(m)

	typ, err := PeekFirstInt(wire)
	if err != nil {
		t.Fatalf("PeekFirstInt: %v", err)
	}
	if typ != MsgTypeIdentRequest {
		t.Fatalf("got %d, want %d", typ, MsgTypeIdentRequest)
	}

	// Peeking must not consume: a full decode still sees all fields.
	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ident, err := DecodeIdent(decoded)
	if err != nil {
		t.Fatalf("DecodeIdent: %v", err)
	}
	if ident.ID != 42 || ident.Name != "bob" || ident.Password != "secret" {
		t.Fatalf("unexpected ident: %+v", ident)
	}
}

// TestFloatFidelityOppositeEndianHost simulates scenario 5 of spec.md §8:
// doubles must compare bit-equal even when decoded as if on a host of
// opposite endianness. Encode writes each double big-endian and Decode
// reads it back big-endian, whatever the host's byte order, so the test
// round-trips the values through the wire form and compares the decoded
// bit patterns exactly; it performs no manual byte swap.
func TestFloatFidelityOppositeEndianHost(t *testing.T) {
	values := []float64{1.0, -2.5, 3.14159265358979, 0.0, 1e-300, 1e300}

	m := New()
	for _, v := range values {
		m.AddFloat(v)
	}
	wire := Encode(m)

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, want := range values {
		got, err := decoded.PopFloat()
		if err != nil {
			t.Fatalf("PopFloat[%d]: %v", i, err)
		}
		if math.Float64bits(got) != math.Float64bits(want) {
			t.Fatalf("value %d: got %v (bits %x), want %v (bits %x)",
				i, got, math.Float64bits(got), want, math.Float64bits(want))
		}
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	m := New()
	m.AddInt(1)
	wire := Encode(m)
	truncated := buffer.New(wire.Bytes()[:len(wire.Bytes())-2])

	if _, err := Decode(truncated); err != ErrProtocol {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestDecodeRejectsOversizedWrittenField(t *testing.T) {
	m := New()
	m.AddBuffer(buffer.New([]byte("hi")))
	wire := Encode(m)
	raw := wire.Bytes()
	// Corrupt the buffer's "written" field (bytes 16:20) to exceed capacity.
	raw[19] = 0xff

	if _, err := Decode(buffer.New(raw)); err != ErrProtocol {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}
