// Package session runs the two ends of an audio stream.
//
// A Capture opens an input device, announces the stream with one Config
// message and then sends Data messages on a fixed drain cadence until it is
// stopped, finishing with a terminate message. A Playback waits for that
// Config, opens an output device to match and plays what arrives.
//
// Each side hands samples between the device callback and its I/O loop
// through a single-producer single-consumer ring buffer. The callback never
// blocks: a full ring drops the newest samples and an empty one is filled
// according to the UnderflowPolicy. Both are counted in Stats.
//
// The sample type is fixed by the Config for the whole session; a dispatch
// table picks the generic runner for it.
package session
