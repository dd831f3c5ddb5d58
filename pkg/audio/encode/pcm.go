// ABOUTME: PCM payload encoder
// ABOUTME: Encodes samples as raw fixed-width values in a declared byte order
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
)

// PCMEncoder encodes samples of one type as raw PCM
type PCMEncoder[T audio.Sample] struct {
	codec audio.Codec[T]
	order audio.ByteOrder
}

var _ Encoder[float32] = (*PCMEncoder[float32])(nil)

// NewPCM creates a new PCM encoder writing in order
func NewPCM[T audio.Sample](order audio.ByteOrder) (*PCMEncoder[T], error) {
	if !order.Valid() {
		return nil, fmt.Errorf("%w: %v", audio.ErrUnknownByteOrder, order)
	}

	return &PCMEncoder[T]{
		codec: audio.CodecFor[T](),
		order: order,
	}, nil
}

// Order returns the byte order payloads are written in
func (e *PCMEncoder[T]) Order() audio.ByteOrder {
	return e.order
}

// Encode appends samples to dst; the result is always a multiple of the sample width
func (e *PCMEncoder[T]) Encode(dst []byte, samples []T) []byte {
	return e.codec.AppendSamples(dst, e.order, samples)
}

// Close releases resources
func (e *PCMEncoder[T]) Close() error {
	return nil
}
