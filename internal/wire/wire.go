// Package wire provides allocation-free protobuf wire primitives over
// fixed-size buffers.
//
// A Reader walks an input buffer left to right and never advances on a
// failed read. A Writer appends into a caller-owned buffer whose length is
// the hard capacity; a write either fits completely or fails with
// ErrBufferFull and leaves the buffer untouched.
package wire

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// Number is a protobuf field number.
type Number = protowire.Number

// Type is a protobuf wire type.
type Type = protowire.Type

// Wire types used by the Sparkplug B schema.
const (
	VarintType  Type = protowire.VarintType
	Fixed64Type Type = protowire.Fixed64Type
	BytesType   Type = protowire.BytesType
	Fixed32Type Type = protowire.Fixed32Type
)

// maxVarintLen is the longest legal varint encoding of a uint64.
const maxVarintLen = 10

var (
	ErrUnexpectedEnd   = errors.New("wire: unexpected end of buffer")
	ErrFraming         = errors.New("wire: field overruns declared message length")
	ErrBufferFull      = errors.New("wire: buffer full")
	ErrMalformedVarint = errors.New("wire: malformed varint")
	ErrInvalidTag      = errors.New("wire: invalid field number")
	ErrInvalidWireType = errors.New("wire: invalid wire type")
)

// SizeTag returns the encoded size of a field key.
func SizeTag(num Number) int {
	return protowire.SizeTag(num)
}

// SizeVarint returns the encoded size of v as a varint.
func SizeVarint(v uint64) int {
	return protowire.SizeVarint(v)
}

// SizeBytes returns the encoded size of a length-delimited value of n bytes,
// including its length prefix.
func SizeBytes(n int) int {
	return protowire.SizeBytes(n)
}

// SizeFixed32 returns the encoded size of a fixed32 value.
func SizeFixed32() int { return protowire.SizeFixed32() }

// SizeFixed64 returns the encoded size of a fixed64 value.
func SizeFixed64() int { return protowire.SizeFixed64() }

// ZigZag maps a signed integer onto an unsigned one so small magnitudes of
// either sign encode compactly.
func ZigZag(v int64) uint64 {
	return protowire.EncodeZigZag(v)
}

// UnZigZag reverses ZigZag.
func UnZigZag(v uint64) int64 {
	return protowire.DecodeZigZag(v)
}

func validType(t Type) bool {
	switch t {
	case VarintType, Fixed64Type, BytesType, Fixed32Type:
		return true
	}
	return false
}
