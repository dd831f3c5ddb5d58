// Package device opens audio capture and playback streams.
//
// A Driver hands each stream a callback that runs on the audio thread with
// interleaved little-endian samples in the stream's native Format, which
// may differ from the format asked for. Callers convert.
//
// Drivers:
//
//	malgo  system devices through miniaudio, capture and playback
//	oto    system output through oto, playback only
//	tone   sine generator, capture only
//	file   MP3/FLAC/WAV capture paced in real time, WAV recording for playback
package device
