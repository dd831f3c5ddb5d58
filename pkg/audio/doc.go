// ABOUTME: Audio fundamentals package providing sample types and codecs
// ABOUTME: Defines SampleFormat, ByteOrder, the Sample constraint and per-type codecs
// Package audio provides the sample abstraction shared by every pipeline stage.
//
// This package defines:
//   - Sample: the constraint satisfied by every numeric sample type
//   - SampleFormat: the wire tag naming one concrete sample type
//   - ByteOrder: the endianness a sender declares for its payloads
//   - Codec: fixed-width encode/decode for one sample type in either byte order
//
// Devices exchange little-endian buffers in their own native format;
// DeviceReader and DeviceWriter bridge them to the session's sample type.
//
// Example:
//
//	c := audio.CodecFor[float32]()
//	payload := c.AppendSamples(nil, audio.LittleEndian, []float32{1, -1})
//
//	samples := make([]float32, 2)
//	n, err := c.ReadSamples(samples, audio.LittleEndian, payload)
package audio
