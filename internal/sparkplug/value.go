package sparkplug

import "math"

// ValueKind identifies the active variant of a Value.
type ValueKind uint8

const (
	ValueAbsent ValueKind = iota
	ValueInt32
	ValueInt64
	ValueUInt32
	ValueUInt64
	ValueBool
	ValueFloat
	ValueDouble
	// ValueDataSet is only produced by callers building a payload to encode.
	ValueDataSet
)

func (k ValueKind) String() string {
	switch k {
	case ValueAbsent:
		return "absent"
	case ValueInt32:
		return "int32"
	case ValueInt64:
		return "int64"
	case ValueUInt32:
		return "uint32"
	case ValueUInt64:
		return "uint64"
	case ValueBool:
		return "bool"
	case ValueFloat:
		return "float"
	case ValueDouble:
		return "double"
	case ValueDataSet:
		return "dataset"
	default:
		return "unknown"
	}
}

// Value is a tagged union of the metric value variants. Scalar variants are
// stored inline; the zero Value is ValueAbsent.
type Value struct {
	kind    ValueKind
	bits    uint64
	dataset *Int32DataSet
}

func Int32Value(v int32) Value { return Value{kind: ValueInt32, bits: uint64(uint32(v))} }
func Int64Value(v int64) Value { return Value{kind: ValueInt64, bits: uint64(v)} }
func UInt32Value(v uint32) Value { return Value{kind: ValueUInt32, bits: uint64(v)} }
func UInt64Value(v uint64) Value { return Value{kind: ValueUInt64, bits: v} }
func FloatValue(v float32) Value { return Value{kind: ValueFloat, bits: uint64(math.Float32bits(v))} }
func DoubleValue(v float64) Value { return Value{kind: ValueDouble, bits: math.Float64bits(v)} }
func DataSetValue(ds *Int32DataSet) Value {
	return Value{kind: ValueDataSet, dataset: ds}
}

func BoolValue(v bool) Value {
	if v {
		return Value{kind: ValueBool, bits: 1}
	}
	return Value{kind: ValueBool}
}

// Kind returns the active variant.
func (v Value) Kind() ValueKind { return v.kind }

// Absent reports whether no value is set.
func (v Value) Absent() bool { return v.kind == ValueAbsent }

func (v Value) Int32() int32 { return int32(uint32(v.bits)) }
func (v Value) Int64() int64 { return int64(v.bits) }
func (v Value) UInt32() uint32 { return uint32(v.bits) }
func (v Value) UInt64() uint64 { return v.bits }
func (v Value) Bool() bool { return v.bits != 0 }
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Double() float64 { return math.Float64frombits(v.bits) }
func (v Value) DataSet() *Int32DataSet { return v.dataset }

// Float64 converts any numeric variant to float64. Booleans map to 0 or 1.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case ValueInt32:
		return float64(v.Int32()), true
	case ValueInt64:
		return float64(v.Int64()), true
	case ValueUInt32:
		return float64(v.UInt32()), true
	case ValueUInt64:
		return float64(v.UInt64()), true
	case ValueBool:
		if v.Bool() {
			return 1, true
		}
		return 0, true
	case ValueFloat:
		return float64(v.Float()), true
	case ValueDouble:
		return v.Double(), true
	}
	return 0, false
}

// Interface returns the value as a Go scalar, or nil when absent.
func (v Value) Interface() interface{} {
	switch v.kind {
	case ValueInt32:
		return v.Int32()
	case ValueInt64:
		return v.Int64()
	case ValueUInt32:
		return v.UInt32()
	case ValueUInt64:
		return v.UInt64()
	case ValueBool:
		return v.Bool()
	case ValueFloat:
		return v.Float()
	case ValueDouble:
		return v.Double()
	case ValueDataSet:
		return v.dataset
	}
	return nil
}
