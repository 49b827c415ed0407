package sparkplug

import (
	"github.com/szibis/sparkplug-edge/internal/catalog"
	"github.com/szibis/sparkplug-edge/internal/wire"
)

// Payload is the Sparkplug B envelope with a fixed number of metric slots.
// Len counts the slots holding a fully decoded or deliberately added metric;
// every slot past Len is zero.
type Payload struct {
	Timestamp    uint64
	HasTimestamp bool

	Seq    uint64
	HasSeq bool

	UUID    UUID
	HasUUID bool

	Body    Body
	HasBody bool

	metrics [MaxMetrics]Metric
	n       int
}

// Reset returns p to the empty payload.
func (p *Payload) Reset() {
	*p = Payload{}
}

// Len returns the number of metrics.
func (p *Payload) Len() int { return p.n }

// Metrics returns the metrics in order. The slice aliases the payload.
func (p *Payload) Metrics() []Metric { return p.metrics[:p.n] }

// Metric returns metric i, or nil if i is out of range.
func (p *Payload) Metric(i int) *Metric {
	if i < 0 || i >= p.n {
		return nil
	}
	return &p.metrics[i]
}

// AddMetric appends an empty metric and returns it for filling in.
func (p *Payload) AddMetric() (*Metric, error) {
	if p.n == MaxMetrics {
		return nil, ErrMetricCapacityExceeded
	}
	m := &p.metrics[p.n]
	*m = Metric{}
	p.n++
	return m, nil
}

// Find returns the first metric named name, or nil.
func (p *Payload) Find(name string) *Metric {
	for i := 0; i < p.n; i++ {
		if p.metrics[i].HasName && p.metrics[i].Name.Equal(name) {
			return &p.metrics[i]
		}
	}
	return nil
}

// SetTimestamp sets the payload timestamp in milliseconds since the epoch.
func (p *Payload) SetTimestamp(ms uint64) {
	p.Timestamp, p.HasTimestamp = ms, true
}

// SetSeq sets the message sequence number.
func (p *Payload) SetSeq(seq uint64) {
	p.Seq, p.HasSeq = seq, true
}

// SetUUID sets the payload uuid. It fails with ErrFieldTooLong past the inline capacity.
func (p *Payload) SetUUID(s string) error {
	if err := p.UUID.Set(s); err != nil {
		return err
	}
	p.HasUUID = true
	return nil
}

// SetBody copies b into the payload body. It fails with ErrFieldTooLong past the inline capacity.
func (p *Payload) SetBody(b []byte) error {
	if err := p.Body.Set(b); err != nil {
		return err
	}
	p.HasBody = true
	return nil
}

// DecodePayload resets p and decodes buf into it in a single pass.
//
// On failure p keeps the metrics decoded before the failing one, Len counts
// exactly those, and the slot being filled is zeroed.
func DecodePayload(buf []byte, p *Payload) error {
	p.Reset()
	r := wire.NewReader(buf)
	for !r.Done() {
		off := r.Offset()
		num, typ, err := r.Tag()
		if err != nil {
			return decodeErr(catalog.KindPayload, 0, off, err)
		}
		d, ok := catalog.Lookup(catalog.KindPayload, num)
		if !ok {
			if err := r.Skip(typ); err != nil {
				return decodeErr(catalog.KindPayload, num, off, err)
			}
			continue
		}
		if typ != d.WireType() {
			return decodeErr(catalog.KindPayload, num, off, ErrWireTypeMismatch)
		}

		switch d.Field {
		case catalog.PayloadTimestamp, catalog.PayloadSeq:
			v, err := r.Varint()
			if err != nil {
				return decodeErr(catalog.KindPayload, num, off, err)
			}
			if d.Field == catalog.PayloadTimestamp {
				p.SetTimestamp(v)
			} else {
				p.SetSeq(v)
			}

		case catalog.PayloadMetrics:
			if p.n == MaxMetrics {
				return decodeErr(catalog.KindPayload, num, off, ErrMetricCapacityExceeded)
			}
			sub, err := r.Sub()
			if err != nil {
				return decodeErr(catalog.KindPayload, num, off, err)
			}
			m := &p.metrics[p.n]
			if err := decodeMetric(&sub, m); err != nil {
				*m = Metric{}
				return err
			}
			p.n++

		case catalog.PayloadUUID:
			b, err := r.Bytes()
			if err == nil {
				err = p.UUID.setBytes(b)
			}
			if err != nil {
				return decodeErr(catalog.KindPayload, num, off, err)
			}
			p.HasUUID = true

		case catalog.PayloadBody:
			b, err := r.Bytes()
			if err == nil {
				err = p.Body.Set(b)
			}
			if err != nil {
				return decodeErr(catalog.KindPayload, num, off, err)
			}
			p.HasBody = true
		}
	}
	return nil
}

// EncodePayload writes p into dst, whose length is the capacity. It returns
// the number of bytes written. On ErrBufferFull n covers exactly the fields
// that were committed whole before the one that did not fit.
func EncodePayload(p *Payload, dst []byte) (int, error) {
	w := wire.NewWriter(dst)
	err := encodePayload(&w, p)
	return w.Len(), err
}

// Size returns the encoded size of p.
func (p *Payload) Size() (int, error) {
	s := wire.NewSizer()
	if err := encodePayload(&s, p); err != nil {
		return 0, err
	}
	return s.Len(), nil
}

// Fields are written in field-number order, matching the reference
// protobuf serializer byte for byte.
func encodePayload(w *wire.Writer, p *Payload) error {
	if p.HasTimestamp {
		if err := putVarint(w, catalog.PayloadTimestamp, p.Timestamp); err != nil {
			return err
		}
	}
	for i := 0; i < p.n; i++ {
		m := &p.metrics[i]
		size, err := sizeMetric(m)
		if err != nil {
			return err
		}
		if err := putMessage(w, catalog.PayloadMetrics, size); err != nil {
			return err
		}
		if err := encodeMetric(w, m); err != nil {
			return err
		}
	}
	if p.HasSeq {
		if err := putVarint(w, catalog.PayloadSeq, p.Seq); err != nil {
			return err
		}
	}
	if p.HasUUID {
		if err := putBytes(w, catalog.PayloadUUID, p.UUID.Bytes()); err != nil {
			return err
		}
	}
	if p.HasBody {
		if err := putBytes(w, catalog.PayloadBody, p.Body.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
