package sparkplug

import (
	"fmt"
	"strings"
)

// DataType is the Sparkplug B metric datatype carried in Metric.datatype.
type DataType uint32

const (
	DataTypeUnknown DataType = iota
	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeInt64
	DataTypeUInt8
	DataTypeUInt16
	DataTypeUInt32
	DataTypeUInt64
	DataTypeFloat
	DataTypeDouble
	DataTypeBoolean
	DataTypeString
	DataTypeDateTime
	DataTypeText
	DataTypeUUID
	DataTypeDataSet
	DataTypeBytes
	DataTypeFile
	DataTypeTemplate
)

var dataTypeNames = [...]string{
	DataTypeUnknown:  "Unknown",
	DataTypeInt8:     "Int8",
	DataTypeInt16:    "Int16",
	DataTypeInt32:    "Int32",
	DataTypeInt64:    "Int64",
	DataTypeUInt8:    "UInt8",
	DataTypeUInt16:   "UInt16",
	DataTypeUInt32:   "UInt32",
	DataTypeUInt64:   "UInt64",
	DataTypeFloat:    "Float",
	DataTypeDouble:   "Double",
	DataTypeBoolean:  "Boolean",
	DataTypeString:   "String",
	DataTypeDateTime: "DateTime",
	DataTypeText:     "Text",
	DataTypeUUID:     "UUID",
	DataTypeDataSet:  "DataSet",
	DataTypeBytes:    "Bytes",
	DataTypeFile:     "File",
	DataTypeTemplate: "Template",
}

func (t DataType) String() string {
	if int(t) < len(dataTypeNames) {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", uint32(t))
}

// ParseDataType parses a datatype name, case-insensitively.
func ParseDataType(s string) (DataType, error) {
	for i, name := range dataTypeNames {
		if strings.EqualFold(s, name) {
			return DataType(i), nil
		}
	}
	return DataTypeUnknown, fmt.Errorf("unknown datatype %q", s)
}

// Signed reports whether values of t are signed integers.
func (t DataType) Signed() bool {
	switch t {
	case DataTypeInt8, DataTypeInt16, DataTypeInt32, DataTypeInt64:
		return true
	}
	return false
}

// Unsupported reports whether metrics of type t carry string, bytes or
// composite values, which are not decoded.
func (t DataType) Unsupported() bool {
	switch t {
	case DataTypeString, DataTypeText, DataTypeUUID, DataTypeDataSet,
		DataTypeBytes, DataTypeFile, DataTypeTemplate:
		return true
	}
	return false
}
