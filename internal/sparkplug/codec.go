package sparkplug

import (
	"github.com/szibis/sparkplug-edge/internal/catalog"
	"github.com/szibis/sparkplug-edge/internal/wire"
)

// Decoder owns one Payload and decodes into it. A Decoder is not safe for
// concurrent use; use one per goroutine.
type Decoder struct {
	p Payload
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes buf into the decoder's payload and returns it. The payload
// is overwritten by the next call. On error the returned payload holds the
// metrics decoded before the failure.
func (d *Decoder) Decode(buf []byte) (*Payload, error) {
	err := DecodePayload(buf, &d.p)
	return &d.p, err
}

// Payload returns the most recently decoded payload.
func (d *Decoder) Payload() *Payload { return &d.p }

// Encoder owns one Payload that callers fill in and then encode.
type Encoder struct {
	p Payload
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Reset clears the payload and returns it for filling in.
func (e *Encoder) Reset() *Payload {
	e.p.Reset()
	return &e.p
}

// Payload returns the payload without clearing it.
func (e *Encoder) Payload() *Payload { return &e.p }

// Encode writes the payload into dst. See EncodePayload.
func (e *Encoder) Encode(dst []byte) (int, error) {
	return EncodePayload(&e.p, dst)
}

// Each put* helper commits one whole field or nothing: the key and value size
// is checked against the remaining capacity before the key is written.

func putVarint(w *wire.Writer, f catalog.Field, v uint64) error {
	d := catalog.Describe(f)
	if !w.Fits(wire.SizeTag(d.Number) + wire.SizeVarint(v)) {
		return ErrBufferFull
	}
	_ = w.Tag(d.Number, wire.VarintType)
	return w.Varint(v)
}

func putBool(w *wire.Writer, f catalog.Field, v bool) error {
	if v {
		return putVarint(w, f, 1)
	}
	return putVarint(w, f, 0)
}

func putFixed32(w *wire.Writer, f catalog.Field, v uint32) error {
	d := catalog.Describe(f)
	if !w.Fits(wire.SizeTag(d.Number) + wire.SizeFixed32()) {
		return ErrBufferFull
	}
	_ = w.Tag(d.Number, wire.Fixed32Type)
	return w.Fixed32(v)
}

func putFixed64(w *wire.Writer, f catalog.Field, v uint64) error {
	d := catalog.Describe(f)
	if !w.Fits(wire.SizeTag(d.Number) + wire.SizeFixed64()) {
		return ErrBufferFull
	}
	_ = w.Tag(d.Number, wire.Fixed64Type)
	return w.Fixed64(v)
}

func putBytes(w *wire.Writer, f catalog.Field, b []byte) error {
	d := catalog.Describe(f)
	if !w.Fits(wire.SizeTag(d.Number) + wire.SizeBytes(len(b))) {
		return ErrBufferFull
	}
	_ = w.Tag(d.Number, wire.BytesType)
	return w.Bytes(b)
}

func putString(w *wire.Writer, f catalog.Field, s string) error {
	d := catalog.Describe(f)
	if !w.Fits(wire.SizeTag(d.Number) + wire.SizeBytes(len(s))) {
		return ErrBufferFull
	}
	_ = w.Tag(d.Number, wire.BytesType)
	return w.String(s)
}

// putMessage writes the key and length prefix of a nested message of size
// bytes, after checking the whole message fits.
func putMessage(w *wire.Writer, f catalog.Field, size int) error {
	d := catalog.Describe(f)
	if !w.Fits(wire.SizeTag(d.Number) + wire.SizeBytes(size)) {
		return ErrBufferFull
	}
	_ = w.Tag(d.Number, wire.BytesType)
	return w.LengthPrefix(size)
}
