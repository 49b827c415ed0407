// Package sparkplug encodes and decodes Sparkplug B payloads into a statically
// sized structure.
//
// A Payload holds at most MaxMetrics metrics, each with an inline name of at
// most MaxNameLen bytes. Decoding never grows anything: input that would not
// fit fails with ErrMetricCapacityExceeded or ErrNameTooLong. Encoding writes
// into a caller buffer whose length is the capacity and fails with
// ErrBufferFull without writing a partial field. Neither direction allocates
// on success.
//
// The wire format is the proto2 schema of Eclipse Tahu sparkplug_b.proto;
// fields are emitted in field-number order so output is byte-identical to the
// reference serializer. String, bytes, dataset, template and extension values
// are not decoded. Int32 datasets can be encoded for publishing.
package sparkplug
