// Package refschema carries the Eclipse Tahu sparkplug_b.proto schema as a
// runtime descriptor. Messages built from it are serialized by the protobuf
// runtime, which makes them the reference the bounded codec is checked
// against, and they give a protojson view of any payload.
package refschema

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Descriptors of the schema messages.
var (
	File         protoreflect.FileDescriptor
	Payload      protoreflect.MessageDescriptor
	Metric       protoreflect.MessageDescriptor
	DataSet      protoreflect.MessageDescriptor
	Row          protoreflect.MessageDescriptor
	DataSetValue protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(fileProto(), nil)
	if err != nil {
		panic(fmt.Sprintf("refschema: build sparkplug_b.proto: %v", err))
	}
	File = fd
	Payload = fd.Messages().ByName("Payload")
	Metric = Payload.Messages().ByName("Metric")
	DataSet = Payload.Messages().ByName("DataSet")
	Row = DataSet.Messages().ByName("Row")
	DataSetValue = DataSet.Messages().ByName("DataSetValue")
}

// NewPayload returns an empty dynamic Payload message.
func NewPayload() *dynamicpb.Message {
	return dynamicpb.NewMessage(Payload)
}

// Unmarshal parses buf as a Payload with the protobuf runtime.
func Unmarshal(buf []byte) (*dynamicpb.Message, error) {
	m := NewPayload()
	if err := proto.Unmarshal(buf, m); err != nil {
		return nil, fmt.Errorf("refschema: unmarshal: %w", err)
	}
	return m, nil
}

// Marshal serializes m deterministically.
func Marshal(m proto.Message) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(m)
}

// JSON renders buf, parsed as a Payload, as indented protojson.
func JSON(buf []byte) ([]byte, error) {
	m, err := Unmarshal(buf)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, UseProtoNames: true}.Marshal(m)
}

// Set assigns a scalar field of m by name. It panics on an unknown field,
// which is a programming error.
func Set(m protoreflect.Message, name string, v interface{}) {
	f := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if f == nil {
		panic("refschema: no field " + name + " in " + string(m.Descriptor().FullName()))
	}
	m.Set(f, protoreflect.ValueOf(v))
}

// AddMessage appends a new element to the repeated message field name and
// returns it.
func AddMessage(m protoreflect.Message, name string) protoreflect.Message {
	f := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if f == nil {
		panic("refschema: no field " + name + " in " + string(m.Descriptor().FullName()))
	}
	return m.Mutable(f).List().AppendMutable().Message()
}

// MutableMessage returns the singular message field name, creating it.
func MutableMessage(m protoreflect.Message, name string) protoreflect.Message {
	f := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if f == nil {
		panic("refschema: no field " + name + " in " + string(m.Descriptor().FullName()))
	}
	return m.Mutable(f).Message()
}

// AppendList appends a scalar to the repeated field name.
func AppendList(m protoreflect.Message, name string, v interface{}) {
	f := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if f == nil {
		panic("refschema: no field " + name + " in " + string(m.Descriptor().FullName()))
	}
	m.Mutable(f).List().Append(protoreflect.ValueOf(v))
}

type field struct {
	name     string
	number   int32
	label    descriptorpb.FieldDescriptorProto_Label
	typ      descriptorpb.FieldDescriptorProto_Type
	typeName string
	oneof    bool
}

const (
	optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED

	tUint32  = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tUint64  = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	tFloat   = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	tDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

const pkg = ".org.eclipse.tahu.protobuf.Payload."

func message(name string, fields []field, nested ...*descriptorpb.DescriptorProto) *descriptorpb.DescriptorProto {
	m := &descriptorpb.DescriptorProto{Name: proto.String(name), NestedType: nested}
	hasOneof := false
	for _, f := range fields {
		fp := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.name),
			Number: proto.Int32(f.number),
			Label:  f.label.Enum(),
			Type:   f.typ.Enum(),
		}
		if f.typeName != "" {
			fp.TypeName = proto.String(f.typeName)
		}
		if f.oneof {
			fp.OneofIndex = proto.Int32(0)
			hasOneof = true
		}
		m.Field = append(m.Field, fp)
	}
	if hasOneof {
		m.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("value")}}
	}
	return m
}

// fileProto mirrors sparkplug_b.proto. Fields are declared in number order so
// the runtime serializes them in that order.
func fileProto() *descriptorpb.FileDescriptorProto {
	dataSetValue := message("DataSetValue", []field{
		{"int_value", 1, optional, tUint32, "", true},
		{"long_value", 2, optional, tUint64, "", true},
		{"float_value", 3, optional, tFloat, "", true},
		{"double_value", 4, optional, tDouble, "", true},
		{"boolean_value", 5, optional, tBool, "", true},
		{"string_value", 6, optional, tString, "", true},
	})
	row := message("Row", []field{
		{"elements", 1, repeated, tMessage, pkg + "DataSet.DataSetValue", false},
	})
	dataSet := message("DataSet", []field{
		{"num_of_columns", 1, optional, tUint64, "", false},
		{"columns", 2, repeated, tString, "", false},
		{"types", 3, repeated, tUint32, "", false},
		{"rows", 4, repeated, tMessage, pkg + "DataSet.Row", false},
	}, dataSetValue, row)

	propertyValue := message("PropertyValue", []field{
		{"type", 1, optional, tUint32, "", false},
		{"is_null", 2, optional, tBool, "", false},
		{"int_value", 3, optional, tUint32, "", true},
		{"long_value", 4, optional, tUint64, "", true},
		{"float_value", 5, optional, tFloat, "", true},
		{"double_value", 6, optional, tDouble, "", true},
		{"boolean_value", 7, optional, tBool, "", true},
		{"string_value", 8, optional, tString, "", true},
	})
	propertySet := message("PropertySet", []field{
		{"keys", 1, repeated, tString, "", false},
		{"values", 2, repeated, tMessage, pkg + "PropertyValue", false},
	})
	metaData := message("MetaData", []field{
		{"is_multi_part", 1, optional, tBool, "", false},
		{"content_type", 2, optional, tString, "", false},
		{"size", 3, optional, tUint64, "", false},
		{"seq", 4, optional, tUint64, "", false},
		{"file_name", 5, optional, tString, "", false},
		{"file_type", 6, optional, tString, "", false},
		{"md5", 7, optional, tString, "", false},
		{"description", 8, optional, tString, "", false},
	})
	extension := message("MetricValueExtension", nil)
	template := message("Template", []field{
		{"version", 1, optional, tString, "", false},
		{"metrics", 2, repeated, tMessage, pkg + "Metric", false},
		{"template_ref", 4, optional, tString, "", false},
		{"is_definition", 5, optional, tBool, "", false},
	})
	metric := message("Metric", []field{
		{"name", 1, optional, tString, "", false},
		{"alias", 2, optional, tUint64, "", false},
		{"timestamp", 3, optional, tUint64, "", false},
		{"datatype", 4, optional, tUint32, "", false},
		{"is_historical", 5, optional, tBool, "", false},
		{"is_transient", 6, optional, tBool, "", false},
		{"is_null", 7, optional, tBool, "", false},
		{"metadata", 8, optional, tMessage, pkg + "MetaData", false},
		{"properties", 9, optional, tMessage, pkg + "PropertySet", false},
		{"int_value", 10, optional, tUint32, "", true},
		{"long_value", 11, optional, tUint64, "", true},
		{"float_value", 12, optional, tFloat, "", true},
		{"double_value", 13, optional, tDouble, "", true},
		{"boolean_value", 14, optional, tBool, "", true},
		{"string_value", 15, optional, tString, "", true},
		{"bytes_value", 16, optional, tBytes, "", true},
		{"dataset_value", 17, optional, tMessage, pkg + "DataSet", true},
		{"template_value", 18, optional, tMessage, pkg + "Template", true},
		{"extension_value", 19, optional, tMessage, pkg + "MetricValueExtension", true},
	})
	payload := message("Payload", []field{
		{"timestamp", 1, optional, tUint64, "", false},
		{"metrics", 2, repeated, tMessage, pkg + "Metric", false},
		{"seq", 3, optional, tUint64, "", false},
		{"uuid", 4, optional, tString, "", false},
		{"body", 5, optional, tBytes, "", false},
	}, template, dataSet, propertyValue, propertySet, metaData, metric, extension)

	return &descriptorpb.FileDescriptorProto{
		Name:        proto.String("sparkplug_b.proto"),
		Package:     proto.String("org.eclipse.tahu.protobuf"),
		Syntax:      proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{payload},
	}
}
