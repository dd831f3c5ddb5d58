// ABOUTME: Decoded audio file sources
// ABOUTME: MP3, FLAC and WAV decoding into interleaved unit-range samples
package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// source yields interleaved samples in [-1, 1] at its own rate.
// Read returns io.EOF once the file is exhausted.
type source interface {
	Read(dst []float64) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// openSource picks a decoder by file extension
func openSource(path string) (source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDevice, err)
	}

	var src source
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		src, err = newMP3Source(f)
	case ".flac":
		src, err = newFLACSource(f)
	case ".wav", ".wave":
		src, err = newWAVSource(f)
	default:
		err = fmt.Errorf("%w: unsupported audio file %q (supported: .mp3, .flac, .wav)", ErrUnsupported, ext)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

type mp3Source struct {
	f   *os.File
	dec *mp3.Decoder
	buf []byte
}

func newMP3Source(f *os.File) (*mp3Source, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode MP3: %w", ErrDevice, err)
	}
	return &mp3Source{f: f, dec: dec}, nil
}

func (s *mp3Source) Read(dst []float64) (int, error) {
	// the decoder always yields 16-bit little-endian stereo
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}

	n, err := io.ReadFull(s.dec, s.buf[:need])
	samples := n / 2
	for i := 0; i < samples; i++ {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = float64(v) / (1 << 15)
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if samples == 0 {
			return 0, io.EOF
		}
		return samples, nil
	case err != nil:
		return samples, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	return samples, nil
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int   { return 2 }
func (s *mp3Source) Close() error    { return s.f.Close() }

type flacSource struct {
	f        *os.File
	stream   *flac.Stream
	scale    float64
	channels int
	pending  []float64
	pos      int
}

func newFLACSource(f *os.File) (*flacSource, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode FLAC: %w", ErrDevice, err)
	}
	return &flacSource{
		f:        f,
		stream:   stream,
		scale:    float64(int64(1) << (stream.Info.BitsPerSample - 1)),
		channels: int(stream.Info.NChannels),
	}, nil
}

func (s *flacSource) Read(dst []float64) (int, error) {
	if s.pos >= len(s.pending) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("%w: %w", ErrDevice, err)
		}

		s.pending = s.pending[:0]
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				s.pending = append(s.pending, float64(frame.Subframes[ch].Samples[i])/s.scale)
			}
		}
		s.pos = 0
	}

	n := copy(dst, s.pending[s.pos:])
	s.pos += n
	return n, nil
}

func (s *flacSource) SampleRate() int { return int(s.stream.Info.SampleRate) }
func (s *flacSource) Channels() int   { return s.channels }
func (s *flacSource) Close() error    { return s.f.Close() }

type wavSource struct {
	f      *os.File
	dec    *wav.Decoder
	ib     *goaudio.IntBuffer
	scale  float64
	offset float64
}

func newWAVSource(f *os.File) (*wavSource, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file: %v", ErrDevice, dec.Err())
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: WAV encoding %d is not integer PCM", ErrUnsupported, dec.WavAudioFormat)
	}

	bits := int(dec.BitDepth)
	s := &wavSource{
		f:     f,
		dec:   dec,
		ib:    &goaudio.IntBuffer{Format: dec.Format(), SourceBitDepth: bits},
		scale: float64(int64(1) << (bits - 1)),
	}
	if bits == 8 {
		// 8-bit WAV is offset binary
		s.offset = 128
	}
	return s, nil
}

func (s *wavSource) Read(dst []float64) (int, error) {
	if cap(s.ib.Data) < len(dst) {
		s.ib.Data = make([]int, len(dst))
	}
	s.ib.Data = s.ib.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.ib)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		dst[i] = (float64(s.ib.Data[i]) - s.offset) / s.scale
	}
	return n, nil
}

func (s *wavSource) SampleRate() int { return int(s.dec.SampleRate) }
func (s *wavSource) Channels() int   { return int(s.dec.NumChans) }
func (s *wavSource) Close() error    { return s.f.Close() }
