// ABOUTME: Payload decoder package
// ABOUTME: Provides the Decoder interface and the raw PCM implementation
// Package decode turns Data payloads back into typed samples.
//
// The PCM decoder reads fixed-width samples in the byte order the sender
// declared in its Config. Payloads holding a partial sample are rejected
// whole, never partially decoded.
//
// Example:
//
//	decoder, err := decode.NewPCM[float32](audio.LittleEndian)
//	samples, err := decoder.Decode(samples[:0], payload)
package decode
