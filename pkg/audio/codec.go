// ABOUTME: Fixed-width sample serialization
// ABOUTME: Per-type byte codecs and unit-range conversion without memory reinterpretation
package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrPartialSample means a byte sequence does not hold a whole number of samples
	ErrPartialSample = errors.New("byte length is not a multiple of the sample width")

	// ErrShortBuffer means the destination cannot hold the converted samples
	ErrShortBuffer = errors.New("destination buffer too small")
)

// Codec converts one sample type to and from bytes. Build it once with
// CodecFor and reuse it; none of its methods allocate.
type Codec[T Sample] struct {
	Format SampleFormat
	Width  int

	put      func(b []byte, order binary.ByteOrder, v T)
	get      func(b []byte, order binary.ByteOrder) T
	unit     func(v T) float64
	fromUnit func(f float64) T
}

// CodecFor returns the codec for T
func CodecFor[T Sample]() Codec[T] {
	c := Codec[T]{Format: FormatOf[T]()}
	c.Width = c.Format.Width()

	var zero T
	switch any(zero).(type) {
	case int8:
		c.put = func(b []byte, _ binary.ByteOrder, v T) { b[0] = byte(int8(v)) }
		c.get = func(b []byte, _ binary.ByteOrder) T { return T(int8(b[0])) }
		c.unit = func(v T) float64 { return float64(v) / (1 << 7) }
		c.fromUnit = func(f float64) T { return T(signedFromUnit(f, 8)) }
	case int16:
		c.put = func(b []byte, o binary.ByteOrder, v T) { o.PutUint16(b, uint16(int16(v))) }
		c.get = func(b []byte, o binary.ByteOrder) T { return T(int16(o.Uint16(b))) }
		c.unit = func(v T) float64 { return float64(v) / (1 << 15) }
		c.fromUnit = func(f float64) T { return T(signedFromUnit(f, 16)) }
	case int32:
		c.put = func(b []byte, o binary.ByteOrder, v T) { o.PutUint32(b, uint32(int32(v))) }
		c.get = func(b []byte, o binary.ByteOrder) T { return T(int32(o.Uint32(b))) }
		c.unit = func(v T) float64 { return float64(v) / (1 << 31) }
		c.fromUnit = func(f float64) T { return T(signedFromUnit(f, 32)) }
	case int64:
		c.put = func(b []byte, o binary.ByteOrder, v T) { o.PutUint64(b, uint64(int64(v))) }
		c.get = func(b []byte, o binary.ByteOrder) T { return T(int64(o.Uint64(b))) }
		c.unit = func(v T) float64 { return float64(v) / (1 << 63) }
		c.fromUnit = func(f float64) T { return T(signedFromUnit(f, 64)) }
	case uint8:
		c.put = func(b []byte, _ binary.ByteOrder, v T) { b[0] = byte(v) }
		c.get = func(b []byte, _ binary.ByteOrder) T { return T(b[0]) }
		c.unit = func(v T) float64 { return float64(v)/(1<<7) - 1 }
		c.fromUnit = func(f float64) T { return T(unsignedFromUnit(f, 8)) }
	case uint16:
		c.put = func(b []byte, o binary.ByteOrder, v T) { o.PutUint16(b, uint16(v)) }
		c.get = func(b []byte, o binary.ByteOrder) T { return T(o.Uint16(b)) }
		c.unit = func(v T) float64 { return float64(v)/(1<<15) - 1 }
		c.fromUnit = func(f float64) T { return T(unsignedFromUnit(f, 16)) }
	case uint32:
		c.put = func(b []byte, o binary.ByteOrder, v T) { o.PutUint32(b, uint32(v)) }
		c.get = func(b []byte, o binary.ByteOrder) T { return T(o.Uint32(b)) }
		c.unit = func(v T) float64 { return float64(v)/(1<<31) - 1 }
		c.fromUnit = func(f float64) T { return T(unsignedFromUnit(f, 32)) }
	case uint64:
		c.put = func(b []byte, o binary.ByteOrder, v T) { o.PutUint64(b, uint64(v)) }
		c.get = func(b []byte, o binary.ByteOrder) T { return T(o.Uint64(b)) }
		c.unit = func(v T) float64 { return float64(v)/(1<<63) - 1 }
		c.fromUnit = func(f float64) T { return T(unsignedFromUnit(f, 64)) }
	case float32:
		c.put = func(b []byte, o binary.ByteOrder, v T) { o.PutUint32(b, math.Float32bits(float32(v))) }
		c.get = func(b []byte, o binary.ByteOrder) T { return T(math.Float32frombits(o.Uint32(b))) }
		c.unit = func(v T) float64 { return float64(v) }
		c.fromUnit = func(f float64) T { return T(f) }
	case float64:
		c.put = func(b []byte, o binary.ByteOrder, v T) { o.PutUint64(b, math.Float64bits(float64(v))) }
		c.get = func(b []byte, o binary.ByteOrder) T { return T(math.Float64frombits(o.Uint64(b))) }
		c.unit = func(v T) float64 { return float64(v) }
		c.fromUnit = func(f float64) T { return T(f) }
	}

	return c
}

// Put writes v into the first Width bytes of b
func (c Codec[T]) Put(b []byte, order ByteOrder, v T) {
	c.put(b, order.Binary(), v)
}

// Get reads one sample from the first Width bytes of b
func (c Codec[T]) Get(b []byte, order ByteOrder) T {
	return c.get(b, order.Binary())
}

// Unit maps v onto [-1, 1] for integer types. Floats pass through unchanged.
func (c Codec[T]) Unit(v T) float64 {
	return c.unit(v)
}

// FromUnit is the inverse of Unit, clamping integers to their range
func (c Codec[T]) FromUnit(f float64) T {
	return c.fromUnit(f)
}

// AppendSamples appends the encoding of src to dst
func (c Codec[T]) AppendSamples(dst []byte, order ByteOrder, src []T) []byte {
	bo := order.Binary()
	start := len(dst)
	need := start + len(src)*c.Width
	if cap(dst) < need {
		grown := make([]byte, start, need)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:need]
	for i, v := range src {
		c.put(dst[start+i*c.Width:], bo, v)
	}
	return dst
}

// PutSamples encodes src into dst and returns the number of bytes written
func (c Codec[T]) PutSamples(dst []byte, order ByteOrder, src []T) (int, error) {
	n := len(src) * c.Width
	if len(dst) < n {
		return 0, ErrShortBuffer
	}
	bo := order.Binary()
	for i, v := range src {
		c.put(dst[i*c.Width:], bo, v)
	}
	return n, nil
}

// ReadSamples decodes src into dst and returns the number of samples.
// Nothing is decoded when src holds a partial sample.
func (c Codec[T]) ReadSamples(dst []T, order ByteOrder, src []byte) (int, error) {
	if len(src)%c.Width != 0 {
		return 0, ErrPartialSample
	}
	n := len(src) / c.Width
	if len(dst) < n {
		return 0, ErrShortBuffer
	}
	bo := order.Binary()
	for i := 0; i < n; i++ {
		dst[i] = c.get(src[i*c.Width:], bo)
	}
	return n, nil
}

// DeviceReader returns a function that reads one little-endian sample of
// device format f and converts it to T
func DeviceReader[T Sample](f SampleFormat) (func(b []byte) T, error) {
	c := CodecFor[T]()
	if f == c.Format {
		return func(b []byte) T { return c.get(b, binary.LittleEndian) }, nil
	}
	read, err := unitReader(f)
	if err != nil {
		return nil, err
	}
	return func(b []byte) T { return c.fromUnit(read(b)) }, nil
}

// DeviceWriter returns a function that writes T as one little-endian sample
// of device format f
func DeviceWriter[T Sample](f SampleFormat) (func(b []byte, v T), error) {
	c := CodecFor[T]()
	if f == c.Format {
		return func(b []byte, v T) { c.put(b, binary.LittleEndian, v) }, nil
	}
	write, err := unitWriter(f)
	if err != nil {
		return nil, err
	}
	return func(b []byte, v T) { write(b, c.unit(v)) }, nil
}

func unitReader(f SampleFormat) (func(b []byte) float64, error) {
	switch f {
	case FormatI8:
		return unitReaderOf[int8](), nil
	case FormatI16:
		return unitReaderOf[int16](), nil
	case FormatI32:
		return unitReaderOf[int32](), nil
	case FormatI64:
		return unitReaderOf[int64](), nil
	case FormatU8:
		return unitReaderOf[uint8](), nil
	case FormatU16:
		return unitReaderOf[uint16](), nil
	case FormatU32:
		return unitReaderOf[uint32](), nil
	case FormatU64:
		return unitReaderOf[uint64](), nil
	case FormatF32:
		return unitReaderOf[float32](), nil
	case FormatF64:
		return unitReaderOf[float64](), nil
	}
	return nil, ErrUnknownFormat
}

func unitWriter(f SampleFormat) (func(b []byte, v float64), error) {
	switch f {
	case FormatI8:
		return unitWriterOf[int8](), nil
	case FormatI16:
		return unitWriterOf[int16](), nil
	case FormatI32:
		return unitWriterOf[int32](), nil
	case FormatI64:
		return unitWriterOf[int64](), nil
	case FormatU8:
		return unitWriterOf[uint8](), nil
	case FormatU16:
		return unitWriterOf[uint16](), nil
	case FormatU32:
		return unitWriterOf[uint32](), nil
	case FormatU64:
		return unitWriterOf[uint64](), nil
	case FormatF32:
		return unitWriterOf[float32](), nil
	case FormatF64:
		return unitWriterOf[float64](), nil
	}
	return nil, ErrUnknownFormat
}

func unitReaderOf[D Sample]() func(b []byte) float64 {
	c := CodecFor[D]()
	return func(b []byte) float64 { return c.unit(c.get(b, binary.LittleEndian)) }
}

func unitWriterOf[D Sample]() func(b []byte, v float64) {
	c := CodecFor[D]()
	return func(b []byte, v float64) { c.put(b, binary.LittleEndian, c.fromUnit(v)) }
}

func clampUnit(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(-1, math.Min(1, f))
}

// signedFromUnit scales f onto a signed integer of the given bit width
func signedFromUnit(f float64, bits uint) int64 {
	maxV := int64(uint64(1)<<(bits-1) - 1)
	minV := -maxV - 1
	v := math.Round(clampUnit(f) * math.Ldexp(1, int(bits-1)))
	if v >= float64(maxV) {
		return maxV
	}
	if v <= float64(minV) {
		return minV
	}
	return int64(v)
}

// unsignedFromUnit scales f onto an offset-binary unsigned integer
func unsignedFromUnit(f float64, bits uint) uint64 {
	maxV := ^uint64(0) >> (64 - bits)
	v := math.Round((clampUnit(f) + 1) * math.Ldexp(1, int(bits-1)))
	if v >= float64(maxV) {
		return maxV
	}
	if v <= 0 {
		return 0
	}
	return uint64(v)
}
