// ABOUTME: Audio type definitions
// ABOUTME: Defines sample formats, byte orders and the Sample constraint
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownFormat is returned for a sample format tag with no known type
	ErrUnknownFormat = errors.New("unknown sample format")

	// ErrUnknownByteOrder is returned for a byte order tag that is neither little nor big
	ErrUnknownByteOrder = errors.New("unknown byte order")
)

// Sample is the set of numeric types that can travel through the pipeline.
// Each member has exactly one SampleFormat tag.
type Sample interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// SampleFormat tags a concrete sample type on the wire
type SampleFormat uint8

const (
	FormatInvalid SampleFormat = iota
	FormatI8
	FormatI16
	FormatI32
	FormatI64
	FormatU8
	FormatU16
	FormatU32
	FormatU64
	FormatF32
	FormatF64
)

var formatNames = map[SampleFormat]string{
	FormatI8:  "i8",
	FormatI16: "i16",
	FormatI32: "i32",
	FormatI64: "i64",
	FormatU8:  "u8",
	FormatU16: "u16",
	FormatU32: "u32",
	FormatU64: "u64",
	FormatF32: "f32",
	FormatF64: "f64",
}

// Formats lists every supported sample format in tag order
func Formats() []SampleFormat {
	return []SampleFormat{
		FormatI8, FormatI16, FormatI32, FormatI64,
		FormatU8, FormatU16, FormatU32, FormatU64,
		FormatF32, FormatF64,
	}
}

// Valid reports whether f names a supported sample type
func (f SampleFormat) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// Width returns the byte width of one sample, 0 for an invalid format
func (f SampleFormat) Width() int {
	switch f {
	case FormatI8, FormatU8:
		return 1
	case FormatI16, FormatU16:
		return 2
	case FormatI32, FormatU32, FormatF32:
		return 4
	case FormatI64, FormatU64, FormatF64:
		return 8
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(f))
}

// ParseSampleFormat accepts the short names ("f32") and Go type names ("float32")
func ParseSampleFormat(s string) (SampleFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if s == name {
			return f, nil
		}
	}
	switch s {
	case "int8", "s8":
		return FormatI8, nil
	case "int16", "s16":
		return FormatI16, nil
	case "int32", "s32":
		return FormatI32, nil
	case "int64", "s64":
		return FormatI64, nil
	case "uint8":
		return FormatU8, nil
	case "uint16":
		return FormatU16, nil
	case "uint32":
		return FormatU32, nil
	case "uint64":
		return FormatU64, nil
	case "float32":
		return FormatF32, nil
	case "float64":
		return FormatF64, nil
	}
	return FormatInvalid, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatOf returns the tag for the Go type T
func FormatOf[T Sample]() SampleFormat {
	var zero T
	switch any(zero).(type) {
	case int8:
		return FormatI8
	case int16:
		return FormatI16
	case int32:
		return FormatI32
	case int64:
		return FormatI64
	case uint8:
		return FormatU8
	case uint16:
		return FormatU16
	case uint32:
		return FormatU32
	case uint64:
		return FormatU64
	case float32:
		return FormatF32
	case float64:
		return FormatF64
	}
	return FormatInvalid
}

// ByteOrder is the endianness a sender declares for its payloads
type ByteOrder uint8

const (
	OrderInvalid ByteOrder = iota
	LittleEndian
	BigEndian
)

// Valid reports whether o is little or big endian
func (o ByteOrder) Valid() bool {
	return o == LittleEndian || o == BigEndian
}

// Binary returns the encoding/binary implementation, little endian for invalid values
func (o ByteOrder) Binary() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// ParseByteOrder accepts "little"/"le" and "big"/"be"
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little", "le", "little-endian":
		return LittleEndian, nil
	case "big", "be", "big-endian":
		return BigEndian, nil
	}
	return OrderInvalid, fmt.Errorf("%w: %q", ErrUnknownByteOrder, s)
}
