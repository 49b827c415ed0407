package sparkplug

import (
	"github.com/szibis/sparkplug-edge/internal/catalog"
	"github.com/szibis/sparkplug-edge/internal/wire"
)

// Metric is one named, typed value. Optional fields carry a Has flag so that
// an absent field is distinguishable from its zero value.
type Metric struct {
	Name    Name
	HasName bool

	Alias    uint64
	HasAlias bool

	Timestamp    uint64
	HasTimestamp bool

	Datatype    DataType
	HasDatatype bool

	IsHistorical    bool
	HasIsHistorical bool
	IsTransient     bool
	HasIsTransient  bool
	IsNull          bool
	HasIsNull       bool

	Value Value
}

// SetName sets the metric name.
func (m *Metric) SetName(s string) error {
	if err := m.Name.Set(s); err != nil {
		return err
	}
	m.HasName = true
	return nil
}

// SetAlias sets the metric alias.
func (m *Metric) SetAlias(alias uint64) {
	m.Alias, m.HasAlias = alias, true
}

// SetTimestamp sets the metric timestamp in milliseconds since the epoch.
func (m *Metric) SetTimestamp(ms uint64) {
	m.Timestamp, m.HasTimestamp = ms, true
}

// SetDatatype sets the datatype without touching the value.
func (m *Metric) SetDatatype(t DataType) {
	m.Datatype, m.HasDatatype = t, true
}

// SetHistorical marks the metric as historical data.
func (m *Metric) SetHistorical(v bool) {
	m.IsHistorical, m.HasIsHistorical = v, true
}

// SetTransient marks the metric as transient.
func (m *Metric) SetTransient(v bool) {
	m.IsTransient, m.HasIsTransient = v, true
}

// SetNull marks the metric null and clears its value.
func (m *Metric) SetNull(v bool) {
	m.IsNull, m.HasIsNull = v, true
	if v {
		m.Value = Value{}
	}
}

// The typed setters set the value and its datatype together.

func (m *Metric) SetInt32(v int32) {
	m.Value = Int32Value(v)
	m.SetDatatype(DataTypeInt32)
}

func (m *Metric) SetInt64(v int64) {
	m.Value = Int64Value(v)
	m.SetDatatype(DataTypeInt64)
}

func (m *Metric) SetUInt32(v uint32) {
	m.Value = UInt32Value(v)
	m.SetDatatype(DataTypeUInt32)
}

func (m *Metric) SetUInt64(v uint64) {
	m.Value = UInt64Value(v)
	m.SetDatatype(DataTypeUInt64)
}

func (m *Metric) SetBool(v bool) {
	m.Value = BoolValue(v)
	m.SetDatatype(DataTypeBoolean)
}

func (m *Metric) SetFloat(v float32) {
	m.Value = FloatValue(v)
	m.SetDatatype(DataTypeFloat)
}

func (m *Metric) SetDouble(v float64) {
	m.Value = DoubleValue(v)
	m.SetDatatype(DataTypeDouble)
}

// SetDataSet attaches ds as the value. The dataset is referenced, not copied.
func (m *Metric) SetDataSet(ds *Int32DataSet) {
	m.Value = DataSetValue(ds)
	m.SetDatatype(DataTypeDataSet)
}

// SetValue sets the value converted to the metric datatype t. It is how
// configured tags and command writes are coerced.
func (m *Metric) SetValue(t DataType, v float64) error {
	switch t {
	case DataTypeInt8, DataTypeInt16, DataTypeInt32:
		m.Value = Int32Value(int32(v))
	case DataTypeInt64:
		m.Value = Int64Value(int64(v))
	case DataTypeUInt8, DataTypeUInt16, DataTypeUInt32:
		m.Value = UInt32Value(uint32(v))
	case DataTypeUInt64, DataTypeDateTime:
		m.Value = UInt64Value(uint64(v))
	case DataTypeFloat:
		m.Value = FloatValue(float32(v))
	case DataTypeDouble:
		m.Value = DoubleValue(v)
	case DataTypeBoolean:
		m.Value = BoolValue(v != 0)
	default:
		return ErrUnsupportedValueType
	}
	m.SetDatatype(t)
	return nil
}

type rawValue uint8

const (
	rawNone rawValue = iota
	rawInt
	rawLong
)

func decodeMetric(r *wire.Reader, m *Metric) error {
	var (
		raw     rawValue
		rawBits uint64
		dtOff   int
	)
	for !r.Done() {
		off := r.Offset()
		num, typ, err := r.Tag()
		if err != nil {
			return decodeErr(catalog.KindMetric, 0, off, err)
		}
		d, ok := catalog.Lookup(catalog.KindMetric, num)
		if !ok {
			if err := r.Skip(typ); err != nil {
				return decodeErr(catalog.KindMetric, num, off, err)
			}
			continue
		}
		if typ != d.WireType() {
			return decodeErr(catalog.KindMetric, num, off, ErrWireTypeMismatch)
		}
		switch d.Policy {
		case catalog.Skip:
			if err := r.Skip(typ); err != nil {
				return decodeErr(catalog.KindMetric, num, off, err)
			}
			continue
		case catalog.Reject:
			return decodeErr(catalog.KindMetric, num, off, ErrUnsupportedValueType)
		}

		switch d.Class {
		case catalog.ClassBytes:
			b, err := r.Bytes()
			if err != nil {
				return decodeErr(catalog.KindMetric, num, off, err)
			}
			// name is the only stored length-delimited metric field
			if err := m.Name.setBytes(b); err != nil {
				return decodeErr(catalog.KindMetric, num, off, err)
			}
			m.HasName = true

		case catalog.ClassFixed32:
			v, err := r.Fixed32()
			if err != nil {
				return decodeErr(catalog.KindMetric, num, off, err)
			}
			m.Value = Value{kind: ValueFloat, bits: uint64(v)}
			raw = rawNone

		case catalog.ClassFixed64:
			v, err := r.Fixed64()
			if err != nil {
				return decodeErr(catalog.KindMetric, num, off, err)
			}
			m.Value = Value{kind: ValueDouble, bits: v}
			raw = rawNone

		default:
			v, err := r.Varint()
			if err != nil {
				return decodeErr(catalog.KindMetric, num, off, err)
			}
			switch d.Field {
			case catalog.MetricAlias:
				m.SetAlias(v)
			case catalog.MetricTimestamp:
				m.SetTimestamp(v)
			case catalog.MetricDatatype:
				m.SetDatatype(DataType(uint32(v)))
				dtOff = off
			case catalog.MetricIsHistorical:
				m.IsHistorical, m.HasIsHistorical = v != 0, true
			case catalog.MetricIsTransient:
				m.IsTransient, m.HasIsTransient = v != 0, true
			case catalog.MetricIsNull:
				m.IsNull, m.HasIsNull = v != 0, true
			case catalog.MetricIntValue:
				raw, rawBits = rawInt, uint64(uint32(v))
				m.Value = Value{}
			case catalog.MetricLongValue:
				raw, rawBits = rawLong, v
				m.Value = Value{}
			case catalog.MetricBooleanValue:
				m.Value = BoolValue(v != 0)
				raw = rawNone
			}
		}
	}

	// a null or valueless metric of an unsupported type still fails
	if m.HasDatatype && m.Datatype.Unsupported() {
		return decodeErr(catalog.KindMetric, catalog.Describe(catalog.MetricDatatype).Number, dtOff, ErrUnsupportedValueType)
	}

	// Integer signedness is known only once the datatype has been seen.
	signed := m.HasDatatype && m.Datatype.Signed()
	switch raw {
	case rawInt:
		if signed {
			m.Value = Value{kind: ValueInt32, bits: rawBits}
		} else {
			m.Value = Value{kind: ValueUInt32, bits: rawBits}
		}
	case rawLong:
		if signed {
			m.Value = Value{kind: ValueInt64, bits: rawBits}
		} else {
			m.Value = Value{kind: ValueUInt64, bits: rawBits}
		}
	}
	return nil
}

func encodeMetric(w *wire.Writer, m *Metric) error {
	if m.HasName {
		if err := putBytes(w, catalog.MetricName, m.Name.Bytes()); err != nil {
			return err
		}
	}
	if m.HasAlias {
		if err := putVarint(w, catalog.MetricAlias, m.Alias); err != nil {
			return err
		}
	}
	if m.HasTimestamp {
		if err := putVarint(w, catalog.MetricTimestamp, m.Timestamp); err != nil {
			return err
		}
	}
	if m.HasDatatype {
		if err := putVarint(w, catalog.MetricDatatype, uint64(m.Datatype)); err != nil {
			return err
		}
	}
	if m.HasIsHistorical {
		if err := putBool(w, catalog.MetricIsHistorical, m.IsHistorical); err != nil {
			return err
		}
	}
	if m.HasIsTransient {
		if err := putBool(w, catalog.MetricIsTransient, m.IsTransient); err != nil {
			return err
		}
	}
	if m.HasIsNull {
		if err := putBool(w, catalog.MetricIsNull, m.IsNull); err != nil {
			return err
		}
	}
	return encodeValue(w, m.Value)
}

func encodeValue(w *wire.Writer, v Value) error {
	switch v.kind {
	case ValueInt32:
		// uint32 on the wire: negative values travel as their two's complement
		return putVarint(w, catalog.MetricIntValue, uint64(uint32(v.bits)))
	case ValueUInt32:
		return putVarint(w, catalog.MetricIntValue, v.bits)
	case ValueInt64, ValueUInt64:
		return putVarint(w, catalog.MetricLongValue, v.bits)
	case ValueFloat:
		return putFixed32(w, catalog.MetricFloatValue, uint32(v.bits))
	case ValueDouble:
		return putFixed64(w, catalog.MetricDoubleValue, v.bits)
	case ValueBool:
		return putBool(w, catalog.MetricBooleanValue, v.bits != 0)
	case ValueDataSet:
		if v.dataset == nil {
			return nil
		}
		size, err := sizeDataSet(v.dataset)
		if err != nil {
			return err
		}
		if err := putMessage(w, catalog.MetricDataSetValue, size); err != nil {
			return err
		}
		return encodeDataSet(w, v.dataset)
	}
	return nil
}

func sizeMetric(m *Metric) (int, error) {
	s := wire.NewSizer()
	if err := encodeMetric(&s, m); err != nil {
		return 0, err
	}
	return s.Len(), nil
}
