package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Writer appends wire values into a fixed-capacity buffer.
//
// The capacity is len(dst) of the slice passed to NewWriter; the Writer never
// grows or reallocates it. A sizing Writer (NewSizer) stores nothing and only
// counts, which is how nested messages learn their length before the prefix
// is written.
type Writer struct {
	buf    []byte
	n      int
	sizing bool
}

// NewWriter returns a Writer that fills dst from the start.
func NewWriter(dst []byte) Writer {
	return Writer{buf: dst[:0:len(dst)]}
}

// NewSizer returns a Writer with unbounded capacity that only counts bytes.
func NewSizer() Writer {
	return Writer{sizing: true}
}

// Len reports the number of bytes written (or counted).
func (w *Writer) Len() int { return w.n }

// Available reports the remaining capacity, or -1 for a sizer.
func (w *Writer) Available() int {
	if w.sizing {
		return -1
	}
	return cap(w.buf) - len(w.buf)
}

// Fits reports whether n more bytes can be written.
func (w *Writer) Fits(n int) bool {
	return w.sizing || n <= cap(w.buf)-len(w.buf)
}

// Written returns the bytes written so far. It is nil for a sizer.
func (w *Writer) Written() []byte { return w.buf }

func (w *Writer) grow(n int) bool {
	if !w.Fits(n) {
		return false
	}
	w.n += n
	return true
}

// Tag writes a field key.
func (w *Writer) Tag(num Number, typ Type) error {
	return w.Varint(protowire.EncodeTag(num, typ))
}

// Varint writes an unsigned varint.
func (w *Writer) Varint(v uint64) error {
	if !w.grow(protowire.SizeVarint(v)) {
		return ErrBufferFull
	}
	if !w.sizing {
		w.buf = protowire.AppendVarint(w.buf, v)
	}
	return nil
}

// ZigZag writes a zig-zag encoded signed varint.
func (w *Writer) ZigZag(v int64) error {
	return w.Varint(protowire.EncodeZigZag(v))
}

// Fixed32 writes four little-endian bytes.
func (w *Writer) Fixed32(v uint32) error {
	if !w.grow(protowire.SizeFixed32()) {
		return ErrBufferFull
	}
	if !w.sizing {
		w.buf = protowire.AppendFixed32(w.buf, v)
	}
	return nil
}

// Fixed64 writes eight little-endian bytes.
func (w *Writer) Fixed64(v uint64) error {
	if !w.grow(protowire.SizeFixed64()) {
		return ErrBufferFull
	}
	if !w.sizing {
		w.buf = protowire.AppendFixed64(w.buf, v)
	}
	return nil
}

// Float32 writes an IEEE-754 single precision value.
func (w *Writer) Float32(v float32) error {
	return w.Fixed32(math.Float32bits(v))
}

// Float64 writes an IEEE-754 double precision value.
func (w *Writer) Float64(v float64) error {
	return w.Fixed64(math.Float64bits(v))
}

// Bytes writes b with its length prefix.
func (w *Writer) Bytes(b []byte) error {
	if !w.grow(protowire.SizeBytes(len(b))) {
		return ErrBufferFull
	}
	if !w.sizing {
		w.buf = protowire.AppendBytes(w.buf, b)
	}
	return nil
}

// String writes s with its length prefix.
func (w *Writer) String(s string) error {
	if !w.grow(protowire.SizeBytes(len(s))) {
		return ErrBufferFull
	}
	if !w.sizing {
		w.buf = protowire.AppendString(w.buf, s)
	}
	return nil
}

// LengthPrefix writes the length of a nested message of n bytes. It fails
// unless the prefix and all n body bytes fit, so the body writes that follow
// cannot run out of room.
func (w *Writer) LengthPrefix(n int) error {
	if !w.Fits(protowire.SizeBytes(n)) {
		return ErrBufferFull
	}
	return w.Varint(uint64(n))
}
