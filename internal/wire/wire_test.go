package wire

import (
	"errors"
	"math"
	"testing"
)

func TestVarint_RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 32, math.MaxUint64}
	for _, v := range values {
		buf := make([]byte, maxVarintLen)
		w := NewWriter(buf)
		if err := w.Varint(v); err != nil {
			t.Fatalf("Varint(%d) error = %v", v, err)
		}
		if w.Len() != SizeVarint(v) {
			t.Errorf("Varint(%d) wrote %d bytes, want %d", v, w.Len(), SizeVarint(v))
		}

		r := NewReader(w.Written())
		got, err := r.Varint()
		if err != nil {
			t.Fatalf("Varint() error = %v", err)
		}
		if got != v {
			t.Errorf("Varint() = %d, want %d", got, v)
		}
		if !r.Done() {
			t.Errorf("reader has %d bytes left", r.Len())
		}
	}
}

func TestVarint_KnownEncoding(t *testing.T) {
	buf := make([]byte, 4)
	w := NewWriter(buf)
	if err := w.Varint(300); err != nil {
		t.Fatalf("Varint() error = %v", err)
	}
	want := []byte{0xAC, 0x02}
	got := w.Written()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Varint(300) = % x, want % x", got, want)
	}
}

func TestZigZag(t *testing.T) {
	tests := []struct {
		in   int64
		want uint64
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{math.MaxInt64, math.MaxUint64 - 1},
		{math.MinInt64, math.MaxUint64},
	}
	for _, tt := range tests {
		if got := ZigZag(tt.in); got != tt.want {
			t.Errorf("ZigZag(%d) = %d, want %d", tt.in, got, tt.want)
		}
		if got := UnZigZag(tt.want); got != tt.in {
			t.Errorf("UnZigZag(%d) = %d, want %d", tt.want, got, tt.in)
		}

		buf := make([]byte, maxVarintLen)
		w := NewWriter(buf)
		if err := w.ZigZag(tt.in); err != nil {
			t.Fatalf("ZigZag() error = %v", err)
		}
		r := NewReader(w.Written())
		got, err := r.ZigZag()
		if err != nil {
			t.Fatalf("ZigZag() read error = %v", err)
		}
		if got != tt.in {
			t.Errorf("ZigZag round trip = %d, want %d", got, tt.in)
		}
	}
}

func TestFixed_RoundTrip(t *testing.T) {
	buf := make([]byte, 24)
	w := NewWriter(buf)
	if err := w.Float32(21.5); err != nil {
		t.Fatalf("Float32() error = %v", err)
	}
	if err := w.Float64(-0.125); err != nil {
		t.Fatalf("Float64() error = %v", err)
	}
	if err := w.Fixed32(0xDEADBEEF); err != nil {
		t.Fatalf("Fixed32() error = %v", err)
	}
	if w.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", w.Len())
	}
	// little-endian
	if got := w.Written()[12]; got != 0xEF {
		t.Errorf("first fixed32 byte = %#x, want 0xef", got)
	}

	r := NewReader(w.Written())
	f, err := r.Float32()
	if err != nil || f != 21.5 {
		t.Errorf("Float32() = %v, %v; want 21.5, nil", f, err)
	}
	d, err := r.Float64()
	if err != nil || d != -0.125 {
		t.Errorf("Float64() = %v, %v; want -0.125, nil", d, err)
	}
	u, err := r.Fixed32()
	if err != nil || u != 0xDEADBEEF {
		t.Errorf("Fixed32() = %#x, %v; want 0xdeadbeef, nil", u, err)
	}
}

func TestReader_TruncationDoesNotAdvance(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(r *Reader) error
	}{
		{"varint", []byte{0x80}, func(r *Reader) error { _, err := r.Varint(); return err }},
		{"tag", []byte{0x80, 0x80}, func(r *Reader) error { _, _, err := r.Tag(); return err }},
		{"fixed32", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.Fixed32(); return err }},
		{"fixed64", []byte{1, 2, 3, 4, 5, 6, 7}, func(r *Reader) error { _, err := r.Fixed64(); return err }},
		{"bytes length", []byte{0x05, 'a', 'b'}, func(r *Reader) error { _, err := r.Bytes(); return err }},
		{"bytes prefix", []byte{0xFF}, func(r *Reader) error { _, err := r.Bytes(); return err }},
		{"empty", nil, func(r *Reader) error { _, err := r.Varint(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			err := tt.read(&r)
			if !errors.Is(err, ErrUnexpectedEnd) {
				t.Fatalf("error = %v, want %v", err, ErrUnexpectedEnd)
			}
			if r.Offset() != 0 {
				t.Errorf("Offset() = %d after failed read, want 0", r.Offset())
			}
		})
	}
}

func TestReader_MalformedVarint(t *testing.T) {
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}
	r := NewReader(data)
	if _, err := r.Varint(); !errors.Is(err, ErrMalformedVarint) {
		t.Fatalf("Varint() error = %v, want %v", err, ErrMalformedVarint)
	}
}

func TestReader_Tag(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		num     Number
		typ     Type
		wantErr error
	}{
		{"field 1 varint", []byte{0x08}, 1, VarintType, nil},
		{"field 2 bytes", []byte{0x12}, 2, BytesType, nil},
		{"field 12 fixed32", []byte{0x65}, 12, Fixed32Type, nil},
		{"field 13 fixed64", []byte{0x69}, 13, Fixed64Type, nil},
		{"field zero", []byte{0x00}, 0, 0, ErrInvalidTag},
		{"start group", []byte{0x0B}, 0, 0, ErrInvalidWireType},
		{"wire type 7", []byte{0x0F}, 0, 0, ErrInvalidWireType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			num, typ, err := r.Tag()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Tag() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Tag() error = %v", err)
			}
			if num != tt.num || typ != tt.typ {
				t.Errorf("Tag() = (%d, %d), want (%d, %d)", num, typ, tt.num, tt.typ)
			}
		})
	}
}

func TestReader_SubFraming(t *testing.T) {
	// field 1, length 2, body {tag 1 varint, truncated varint}
	data := []byte{0x0A, 0x02, 0x08, 0x96, 0x01}
	r := NewReader(data)
	if _, _, err := r.Tag(); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	sub, err := r.Sub()
	if err != nil {
		t.Fatalf("Sub() error = %v", err)
	}
	if sub.Offset() != 2 {
		t.Errorf("sub.Offset() = %d, want 2", sub.Offset())
	}
	if _, _, err := sub.Tag(); err != nil {
		t.Fatalf("sub.Tag() error = %v", err)
	}
	if _, err := sub.Varint(); !errors.Is(err, ErrFraming) {
		t.Fatalf("sub.Varint() error = %v, want %v", err, ErrFraming)
	}
	if r.Len() != 1 {
		t.Errorf("outer Len() = %d, want 1", r.Len())
	}
}

func TestReader_Skip(t *testing.T) {
	data := []byte{
		0x96, 0x01, // varint
		1, 2, 3, 4, // fixed32
		1, 2, 3, 4, 5, 6, 7, 8, // fixed64
		0x02, 'h', 'i', // bytes
	}
	r := NewReader(data)
	for _, typ := range []Type{VarintType, Fixed32Type, Fixed64Type, BytesType} {
		if err := r.Skip(typ); err != nil {
			t.Fatalf("Skip(%d) error = %v", typ, err)
		}
	}
	if !r.Done() {
		t.Errorf("Done() = false, %d bytes left", r.Len())
	}
	if err := r.Skip(3); !errors.Is(err, ErrInvalidWireType) {
		t.Errorf("Skip(3) error = %v, want %v", err, ErrInvalidWireType)
	}
}

func TestWriter_BufferFullIsAtomic(t *testing.T) {
	tests := []struct {
		name  string
		cap   int
		write func(w *Writer) error
	}{
		{"varint", 1, func(w *Writer) error { return w.Varint(300) }},
		{"fixed32", 3, func(w *Writer) error { return w.Fixed32(1) }},
		{"fixed64", 7, func(w *Writer) error { return w.Fixed64(1) }},
		{"bytes", 3, func(w *Writer) error { return w.Bytes([]byte("abc")) }},
		{"string", 3, func(w *Writer) error { return w.String("abc") }},
		{"length prefix", 2, func(w *Writer) error { return w.LengthPrefix(2) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.cap)
			w := NewWriter(buf)
			if err := tt.write(&w); !errors.Is(err, ErrBufferFull) {
				t.Fatalf("error = %v, want %v", err, ErrBufferFull)
			}
			if w.Len() != 0 || len(w.Written()) != 0 {
				t.Errorf("Len() = %d after failed write, want 0", w.Len())
			}
			if w.Available() != tt.cap {
				t.Errorf("Available() = %d, want %d", w.Available(), tt.cap)
			}
		})
	}
}

func TestWriter_LengthPrefixReservesBody(t *testing.T) {
	buf := make([]byte, 3)
	w := NewWriter(buf)
	if err := w.LengthPrefix(2); err != nil {
		t.Fatalf("LengthPrefix() error = %v", err)
	}
	if err := w.Varint(1); err != nil {
		t.Fatalf("Varint() error = %v", err)
	}
	if err := w.Varint(2); err != nil {
		t.Fatalf("Varint() error = %v", err)
	}
	if w.Available() != 0 {
		t.Errorf("Available() = %d, want 0", w.Available())
	}
}

func TestSizer(t *testing.T) {
	s := NewSizer()
	_ = s.Tag(1, VarintType)
	_ = s.Varint(300)
	_ = s.Fixed32(0)
	_ = s.Fixed64(0)
	_ = s.String("temp")
	if want := 1 + 2 + 4 + 8 + 5; s.Len() != want {
		t.Errorf("Len() = %d, want %d", s.Len(), want)
	}
	if s.Written() != nil {
		t.Error("sizer stored bytes")
	}
	if !s.Fits(1 << 30) {
		t.Error("sizer Fits() = false")
	}
}

func TestWireZeroAllocs(t *testing.T) {
	buf := make([]byte, 64)
	allocs := testing.AllocsPerRun(100, func() {
		w := NewWriter(buf)
		_ = w.Tag(1, VarintType)
		_ = w.Varint(1609459200000)
		_ = w.Tag(2, BytesType)
		_ = w.String("temp")
		_ = w.Tag(13, Fixed64Type)
		_ = w.Float64(21.5)

		r := NewReader(w.Written())
		for !r.Done() {
			_, typ, err := r.Tag()
			if err != nil {
				return
			}
			if err := r.Skip(typ); err != nil {
				return
			}
		}
	})
	if allocs != 0 {
		t.Errorf("allocs per run = %v, want 0", allocs)
	}
}
