package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Reader is a forward-only cursor over a resident buffer.
//
// A Reader returned by Sub is framed: reads that would run past the end of
// its region fail with ErrFraming rather than ErrUnexpectedEnd, because the
// enclosing message declared a shorter length than its fields need.
type Reader struct {
	buf    []byte
	off    int
	base   int
	framed bool
}

// NewReader returns a Reader over b.
func NewReader(b []byte) Reader {
	return Reader{buf: b}
}

// Len reports the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Done reports whether every byte has been consumed.
func (r *Reader) Done() bool { return r.off >= len(r.buf) }

// Offset reports the absolute position of the cursor within the outermost
// buffer.
func (r *Reader) Offset() int { return r.base + r.off }

func (r *Reader) short() error {
	if r.framed {
		return ErrFraming
	}
	return ErrUnexpectedEnd
}

func (r *Reader) peekVarint() (uint64, int, error) {
	rest := r.buf[r.off:]
	v, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		// Overflow needs all ten bytes present; anything shorter ran out.
		if len(rest) < maxVarintLen {
			return 0, 0, r.short()
		}
		return 0, 0, ErrMalformedVarint
	}
	return v, n, nil
}

// Tag reads a field key.
func (r *Reader) Tag() (Number, Type, error) {
	v, n, err := r.peekVarint()
	if err != nil {
		return 0, 0, err
	}
	num, typ := protowire.DecodeTag(v)
	if !num.IsValid() {
		return 0, 0, ErrInvalidTag
	}
	if !validType(typ) {
		return 0, 0, ErrInvalidWireType
	}
	r.off += n
	return num, typ, nil
}

// Varint reads an unsigned varint.
func (r *Reader) Varint() (uint64, error) {
	v, n, err := r.peekVarint()
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// ZigZag reads a zig-zag encoded signed varint.
func (r *Reader) ZigZag() (int64, error) {
	v, err := r.Varint()
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(v), nil
}

// Fixed32 reads four little-endian bytes.
func (r *Reader) Fixed32() (uint32, error) {
	v, n := protowire.ConsumeFixed32(r.buf[r.off:])
	if n < 0 {
		return 0, r.short()
	}
	r.off += n
	return v, nil
}

// Fixed64 reads eight little-endian bytes.
func (r *Reader) Fixed64() (uint64, error) {
	v, n := protowire.ConsumeFixed64(r.buf[r.off:])
	if n < 0 {
		return 0, r.short()
	}
	r.off += n
	return v, nil
}

// Float32 reads an IEEE-754 single precision value.
func (r *Reader) Float32() (float32, error) {
	v, err := r.Fixed32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// Float64 reads an IEEE-754 double precision value.
func (r *Reader) Float64() (float64, error) {
	v, err := r.Fixed64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Bytes reads a length-delimited value. The returned slice aliases the
// underlying buffer and is capped so appends cannot clobber later fields.
func (r *Reader) Bytes() ([]byte, error) {
	l, n, err := r.peekVarint()
	if err != nil {
		return nil, err
	}
	if l > uint64(len(r.buf)-r.off-n) {
		return nil, r.short()
	}
	start := r.off + n
	end := start + int(l)
	r.off = end
	return r.buf[start:end:end], nil
}

// Sub reads a length-delimited value and returns a framed Reader over it.
func (r *Reader) Sub() (Reader, error) {
	b, err := r.Bytes()
	if err != nil {
		return Reader{}, err
	}
	return Reader{buf: b, base: r.base + r.off - len(b), framed: true}, nil
}

// Skip consumes one value of wire type typ without interpreting it.
func (r *Reader) Skip(typ Type) error {
	var err error
	switch typ {
	case VarintType:
		_, err = r.Varint()
	case Fixed32Type:
		_, err = r.Fixed32()
	case Fixed64Type:
		_, err = r.Fixed64()
	case BytesType:
		_, err = r.Bytes()
	default:
		err = ErrInvalidWireType
	}
	return err
}
