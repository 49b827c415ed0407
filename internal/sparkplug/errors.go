package sparkplug

import (
	"errors"
	"fmt"

	"github.com/szibis/sparkplug-edge/internal/catalog"
	"github.com/szibis/sparkplug-edge/internal/wire"
)

// Errors shared with the wire layer.
var (
	ErrUnexpectedEndOfBuffer = wire.ErrUnexpectedEnd
	ErrFraming               = wire.ErrFraming
	ErrBufferFull            = wire.ErrBufferFull
	ErrMalformedVarint       = wire.ErrMalformedVarint
	ErrInvalidTag            = wire.ErrInvalidTag
	ErrInvalidWireType       = wire.ErrInvalidWireType
)

var (
	ErrWireTypeMismatch       = errors.New("sparkplug: wire type does not match field")
	ErrNameTooLong            = errors.New("sparkplug: metric name exceeds capacity")
	ErrFieldTooLong           = errors.New("sparkplug: field exceeds capacity")
	ErrMetricCapacityExceeded = errors.New("sparkplug: metric capacity exceeded")
	ErrUnsupportedValueType   = errors.New("sparkplug: unsupported value type")
	ErrDataSetShape           = errors.New("sparkplug: dataset row width does not match columns")
)

// DecodeError locates a decode failure. Err is always one of the package
// sentinels, so errors.Is works through it.
type DecodeError struct {
	Kind   catalog.Kind
	Tag    wire.Number
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Tag == 0 {
		return fmt.Sprintf("sparkplug: decode %s at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("sparkplug: decode %s field %d at offset %d: %v", e.Kind, e.Tag, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(kind catalog.Kind, tag wire.Number, offset int, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Kind: kind, Tag: tag, Offset: offset, Err: err}
}

var reasons = []struct {
	err    error
	reason string
}{
	{ErrUnexpectedEndOfBuffer, "unexpected_end"},
	{ErrFraming, "framing"},
	{ErrBufferFull, "buffer_full"},
	{ErrMalformedVarint, "malformed_varint"},
	{ErrInvalidTag, "invalid_tag"},
	{ErrInvalidWireType, "invalid_wire_type"},
	{ErrWireTypeMismatch, "wire_type_mismatch"},
	{ErrNameTooLong, "name_too_long"},
	{ErrFieldTooLong, "field_too_long"},
	{ErrMetricCapacityExceeded, "metric_capacity_exceeded"},
	{ErrUnsupportedValueType, "unsupported_value_type"},
	{ErrDataSetShape, "dataset_shape"},
}

// Reason returns a stable label for err suitable for a metric label value.
// It returns "" for nil and "other" for errors outside this package.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
