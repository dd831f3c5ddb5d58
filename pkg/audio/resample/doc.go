// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates and keeps
// the last frame of each chunk so consecutive calls join without clicks.
//
// Example:
//
//	r := resample.New(48000, 44100, 2)
//	out = r.Resample(out[:0], in)
package resample
