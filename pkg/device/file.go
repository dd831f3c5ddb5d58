// ABOUTME: File driver
// ABOUTME: Captures from MP3, FLAC or WAV files and plays back into WAV files
package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/Resonate-Protocol/audiosock/pkg/audio/resample"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// File reads audio files in real time as a capture source and records
// playback streams to 16-bit WAV
type File struct {
	path string
	loop bool
}

// NewFile returns a file driver for path. With loop set, capture restarts
// at end of file instead of stopping.
func NewFile(path string, loop bool) *File {
	return &File{path: path, loop: loop}
}

func (d *File) OpenCapture(cfg Config, onData func(in []byte)) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r, err := newFileReader(d.path, cfg, d.loop)
	if err != nil {
		return nil, err
	}

	width := audio.FormatF32.Width()
	frame := make([]float64, cfg.Period()*cfg.Channels)

	tick := func(buf []byte) error {
		n, err := r.read(frame)
		if n == 0 && err != nil {
			return err
		}
		for i := range frame {
			v := 0.0
			if i < n {
				v = frame[i]
			}
			binary.LittleEndian.PutUint32(buf[i*width:], math.Float32bits(float32(v)))
		}
		onData(buf)
		return nil
	}

	return newClockedStream(cfg, audio.FormatF32, tick, r.close), nil
}

func (d *File) OpenPlayback(cfg Config, onData func(out []byte)) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ext := strings.ToLower(filepath.Ext(d.path)); ext != ".wav" && ext != ".wave" {
		return nil, fmt.Errorf("%w: playback records WAV only, got %q", ErrUnsupported, ext)
	}

	f, err := os.Create(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDevice, err)
	}

	const bitDepth = 16
	enc := wav.NewEncoder(f, cfg.SampleRate, bitDepth, cfg.Channels, 1)
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: cfg.Channels, SampleRate: cfg.SampleRate},
		Data:           make([]int, cfg.Period()*cfg.Channels),
		SourceBitDepth: bitDepth,
	}

	tick := func(buf []byte) error {
		onData(buf)
		for i := range ib.Data {
			ib.Data[i] = int(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		}
		if err := enc.Write(ib); err != nil {
			return fmt.Errorf("%w: wav write: %w", ErrDevice, err)
		}
		return nil
	}

	finish := func() error {
		err := enc.Close()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDevice, err)
		}
		return nil
	}

	return newClockedStream(cfg, audio.FormatI16, tick, finish), nil
}

func (d *File) Close() error { return nil }

// fileReader adapts a decoded file to the requested rate and channel count
type fileReader struct {
	path     string
	loop     bool
	channels int
	rate     int

	src     source
	rs      *resample.Resampler
	scratch []float64
	pending []float64
	eof     bool

	// decoded counts samples since the current source was opened
	decoded int
}

func newFileReader(path string, cfg Config, loop bool) (*fileReader, error) {
	r := &fileReader{
		path:     path,
		loop:     loop,
		channels: cfg.Channels,
		rate:     cfg.SampleRate,
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *fileReader) open() error {
	src, err := openSource(r.path)
	if err != nil {
		return err
	}
	if src.Channels() <= 0 || src.SampleRate() <= 0 {
		src.Close()
		return fmt.Errorf("%w: %s reports %d channels at %dHz", ErrDevice, r.path, src.Channels(), src.SampleRate())
	}
	r.src = src
	r.decoded = 0
	r.rs = resample.New(src.SampleRate(), r.rate, src.Channels())
	r.scratch = make([]float64, 4096-4096%src.Channels())
	return nil
}

// fill decodes until pending holds want source-channel frames or the file ends
func (r *fileReader) fill(want int) error {
	srcCh := r.src.Channels()
	for len(r.pending) < want*srcCh && !r.eof {
		n, err := r.src.Read(r.scratch)
		if n > 0 {
			r.decoded += n
			n -= n % srcCh
			r.pending = r.rs.Resample(r.pending, r.scratch[:n])
		}
		if errors.Is(err, io.EOF) {
			if !r.loop || r.decoded == 0 {
				r.eof = true
				break
			}
			r.src.Close()
			if err := r.open(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// read writes interleaved frames with the configured channel count into dst
// and returns the number of samples written. It returns io.EOF once the file
// is exhausted and nothing is left.
func (r *fileReader) read(dst []float64) (int, error) {
	want := len(dst) / r.channels
	if err := r.fill(want); err != nil {
		return 0, err
	}

	srcCh := r.src.Channels()
	frames := min(want, len(r.pending)/srcCh)
	if frames == 0 && r.eof {
		return 0, io.EOF
	}

	for i := 0; i < frames; i++ {
		in := r.pending[i*srcCh : (i+1)*srcCh]
		out := dst[i*r.channels : (i+1)*r.channels]
		mapChannels(out, in)
	}

	rest := copy(r.pending, r.pending[frames*srcCh:])
	r.pending = r.pending[:rest]
	return frames * r.channels, nil
}

func (r *fileReader) close() error {
	return r.src.Close()
}

// mapChannels downmixes to mono by averaging and otherwise repeats source
// channels cyclically
func mapChannels(out, in []float64) {
	if len(out) == 1 && len(in) > 1 {
		sum := 0.0
		for _, v := range in {
			sum += v
		}
		out[0] = sum / float64(len(in))
		return
	}
	for ch := range out {
		out[ch] = in[ch%len(in)]
	}
}
