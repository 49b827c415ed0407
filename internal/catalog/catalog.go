// Package catalog is the static field table shared by the Sparkplug B encoder
// and decoder. It maps (message kind, field number) to the wire class and
// semantic field, and gives the reverse mapping for the encode direction.
package catalog

import (
	"github.com/szibis/sparkplug-edge/internal/wire"
)

// Kind identifies a protobuf message in the Sparkplug B schema.
type Kind uint8

const (
	KindPayload Kind = iota
	KindMetric
	KindDataSet
	KindRow
	KindDataSetValue
	KindRecord
	numKinds
)

var kindNames = [numKinds]string{
	KindPayload:      "payload",
	KindMetric:       "metric",
	KindDataSet:      "dataset",
	KindRow:          "row",
	KindDataSetValue: "dataset_value",
	KindRecord:       "record",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "unknown"
}

// Class is the value encoding of a field. Each class has exactly one wire type.
type Class uint8

const (
	ClassVarint Class = iota
	ClassZigZag
	ClassFixed32
	ClassFixed64
	ClassBytes
)

// WireType returns the wire type a field of class c is encoded with.
func (c Class) WireType() wire.Type {
	switch c {
	case ClassFixed32:
		return wire.Fixed32Type
	case ClassFixed64:
		return wire.Fixed64Type
	case ClassBytes:
		return wire.BytesType
	default:
		return wire.VarintType
	}
}

func (c Class) String() string {
	switch c {
	case ClassVarint:
		return "varint"
	case ClassZigZag:
		return "zigzag"
	case ClassFixed32:
		return "fixed32"
	case ClassFixed64:
		return "fixed64"
	case ClassBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Policy says what the decoder does with a known field.
type Policy uint8

const (
	// Store decodes the field into the in-memory structure.
	Store Policy = iota
	// Skip consumes and drops the field.
	Skip
	// Reject fails the decode with an unsupported value error.
	Reject
)

// Field is the semantic identity of a schema field.
type Field uint8

const (
	FieldNone Field = iota

	PayloadTimestamp
	PayloadMetrics
	PayloadSeq
	PayloadUUID
	PayloadBody

	MetricName
	MetricAlias
	MetricTimestamp
	MetricDatatype
	MetricIsHistorical
	MetricIsTransient
	MetricIsNull
	MetricMetadata
	MetricProperties
	MetricIntValue
	MetricLongValue
	MetricFloatValue
	MetricDoubleValue
	MetricBooleanValue
	MetricStringValue
	MetricBytesValue
	MetricDataSetValue
	MetricTemplateValue
	MetricExtensionValue

	DataSetNumColumns
	DataSetColumns
	DataSetTypes
	DataSetRows

	RowElements

	DataSetValueInt
	DataSetValueLong
	DataSetValueFloat
	DataSetValueDouble
	DataSetValueBoolean
	DataSetValueString
	DataSetValueExtension

	RecordTopic
	RecordReceivedAt
	RecordPayload

	numFields
)

// Descriptor describes one field of one message kind.
type Descriptor struct {
	Kind   Kind
	Field  Field
	Number wire.Number
	Class  Class
	Policy Policy
	Name   string
}

// WireType returns the wire type the field is encoded with.
func (d Descriptor) WireType() wire.Type { return d.Class.WireType() }

var descriptors = [numFields]Descriptor{
	PayloadTimestamp: {KindPayload, PayloadTimestamp, 1, ClassVarint, Store, "timestamp"},
	PayloadMetrics:   {KindPayload, PayloadMetrics, 2, ClassBytes, Store, "metrics"},
	PayloadSeq:       {KindPayload, PayloadSeq, 3, ClassVarint, Store, "seq"},
	PayloadUUID:      {KindPayload, PayloadUUID, 4, ClassBytes, Store, "uuid"},
	PayloadBody:      {KindPayload, PayloadBody, 5, ClassBytes, Store, "body"},

	MetricName:           {KindMetric, MetricName, 1, ClassBytes, Store, "name"},
	MetricAlias:          {KindMetric, MetricAlias, 2, ClassVarint, Store, "alias"},
	MetricTimestamp:      {KindMetric, MetricTimestamp, 3, ClassVarint, Store, "timestamp"},
	MetricDatatype:       {KindMetric, MetricDatatype, 4, ClassVarint, Store, "datatype"},
	MetricIsHistorical:   {KindMetric, MetricIsHistorical, 5, ClassVarint, Store, "is_historical"},
	MetricIsTransient:    {KindMetric, MetricIsTransient, 6, ClassVarint, Store, "is_transient"},
	MetricIsNull:         {KindMetric, MetricIsNull, 7, ClassVarint, Store, "is_null"},
	MetricMetadata:       {KindMetric, MetricMetadata, 8, ClassBytes, Skip, "metadata"},
	MetricProperties:     {KindMetric, MetricProperties, 9, ClassBytes, Skip, "properties"},
	MetricIntValue:       {KindMetric, MetricIntValue, 10, ClassVarint, Store, "int_value"},
	MetricLongValue:      {KindMetric, MetricLongValue, 11, ClassVarint, Store, "long_value"},
	MetricFloatValue:     {KindMetric, MetricFloatValue, 12, ClassFixed32, Store, "float_value"},
	MetricDoubleValue:    {KindMetric, MetricDoubleValue, 13, ClassFixed64, Store, "double_value"},
	MetricBooleanValue:   {KindMetric, MetricBooleanValue, 14, ClassVarint, Store, "boolean_value"},
	MetricStringValue:    {KindMetric, MetricStringValue, 15, ClassBytes, Reject, "string_value"},
	MetricBytesValue:     {KindMetric, MetricBytesValue, 16, ClassBytes, Reject, "bytes_value"},
	MetricDataSetValue:   {KindMetric, MetricDataSetValue, 17, ClassBytes, Reject, "dataset_value"},
	MetricTemplateValue:  {KindMetric, MetricTemplateValue, 18, ClassBytes, Reject, "template_value"},
	MetricExtensionValue: {KindMetric, MetricExtensionValue, 19, ClassBytes, Reject, "extension_value"},

	DataSetNumColumns: {KindDataSet, DataSetNumColumns, 1, ClassVarint, Store, "num_of_columns"},
	DataSetColumns:    {KindDataSet, DataSetColumns, 2, ClassBytes, Store, "columns"},
	DataSetTypes:      {KindDataSet, DataSetTypes, 3, ClassVarint, Store, "types"},
	DataSetRows:       {KindDataSet, DataSetRows, 4, ClassBytes, Store, "rows"},

	RowElements: {KindRow, RowElements, 1, ClassBytes, Store, "elements"},

	DataSetValueInt:       {KindDataSetValue, DataSetValueInt, 1, ClassVarint, Store, "int_value"},
	DataSetValueLong:      {KindDataSetValue, DataSetValueLong, 2, ClassVarint, Store, "long_value"},
	DataSetValueFloat:     {KindDataSetValue, DataSetValueFloat, 3, ClassFixed32, Store, "float_value"},
	DataSetValueDouble:    {KindDataSetValue, DataSetValueDouble, 4, ClassFixed64, Store, "double_value"},
	DataSetValueBoolean:   {KindDataSetValue, DataSetValueBoolean, 5, ClassVarint, Store, "boolean_value"},
	DataSetValueString:    {KindDataSetValue, DataSetValueString, 6, ClassBytes, Reject, "string_value"},
	DataSetValueExtension: {KindDataSetValue, DataSetValueExtension, 7, ClassBytes, Reject, "extension_value"},

	RecordTopic:      {KindRecord, RecordTopic, 1, ClassBytes, Store, "topic"},
	RecordReceivedAt: {KindRecord, RecordReceivedAt, 2, ClassZigZag, Store, "received_at"},
	RecordPayload:    {KindRecord, RecordPayload, 3, ClassBytes, Store, "payload"},
}

// maxNumber is the highest field number used by any kind.
const maxNumber = 19

var byNumber [numKinds][maxNumber + 1]Field

func init() {
	for f := FieldNone + 1; f < numFields; f++ {
		d := descriptors[f]
		if d.Field != f || d.Number < 1 || d.Number > maxNumber {
			panic("catalog: malformed descriptor " + d.Name)
		}
		if byNumber[d.Kind][d.Number] != FieldNone {
			panic("catalog: duplicate field number for " + d.Name)
		}
		byNumber[d.Kind][d.Number] = f
	}
}

// Lookup returns the descriptor for field number num of message kind. The
// second result is false for tags the schema does not define.
func Lookup(kind Kind, num wire.Number) (Descriptor, bool) {
	if kind >= numKinds || num < 1 || num > maxNumber {
		return Descriptor{}, false
	}
	f := byNumber[kind][num]
	if f == FieldNone {
		return Descriptor{}, false
	}
	return descriptors[f], true
}

// Describe returns the descriptor of a semantic field.
func Describe(f Field) Descriptor {
	if f >= numFields {
		return Descriptor{}
	}
	return descriptors[f]
}
