// ABOUTME: PCM payload decoder
// ABOUTME: Decodes raw fixed-width samples in a declared byte order
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
)

// PCMDecoder decodes raw PCM payloads of one sample type
type PCMDecoder[T audio.Sample] struct {
	codec audio.Codec[T]
	order audio.ByteOrder
}

var _ Decoder[float32] = (*PCMDecoder[float32])(nil)

// NewPCM creates a new PCM decoder for payloads written in order
func NewPCM[T audio.Sample](order audio.ByteOrder) (*PCMDecoder[T], error) {
	if !order.Valid() {
		return nil, fmt.Errorf("%w: %v", audio.ErrUnknownByteOrder, order)
	}

	return &PCMDecoder[T]{
		codec: audio.CodecFor[T](),
		order: order,
	}, nil
}

// Width returns the byte width of one sample
func (d *PCMDecoder[T]) Width() int {
	return d.codec.Width
}

// Decode appends the samples in payload to dst. A payload that does not hold
// a whole number of samples is rejected and dst is returned unchanged.
func (d *PCMDecoder[T]) Decode(dst []T, payload []byte) ([]T, error) {
	if len(payload)%d.codec.Width != 0 {
		return dst, fmt.Errorf("%w: %d bytes for %d-byte %v samples",
			audio.ErrPartialSample, len(payload), d.codec.Width, d.codec.Format)
	}

	n := len(payload) / d.codec.Width
	start := len(dst)
	if cap(dst)-start < n {
		grown := make([]T, start, start+n)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:start+n]

	if _, err := d.codec.ReadSamples(dst[start:], d.order, payload); err != nil {
		return dst[:start], err
	}
	return dst, nil
}

// Close releases resources
func (d *PCMDecoder[T]) Close() error {
	return nil
}
