// ABOUTME: Payload encoder package
// ABOUTME: Provides the Encoder interface and the raw PCM implementation
// Package encode turns typed samples into Data payloads.
//
// Samples are written as fixed-width values in the byte order declared in
// the session Config. Nothing is compressed.
//
// Example:
//
//	encoder, err := encode.NewPCM[int16](audio.BigEndian)
//	payload := encoder.Encode(payload[:0], samples)
package encode
