// ABOUTME: Audio device boundary
// ABOUTME: Driver and Stream interfaces shared by hardware, generator and file backends
package device

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
)

var (
	// ErrDevice wraps every failure to open or drive an audio stream
	ErrDevice = errors.New("audio device error")

	// ErrUnsupported is returned when a driver cannot do what was asked
	ErrUnsupported = fmt.Errorf("%w: not supported by driver", ErrDevice)
)

// DefaultPeriodFrames is used when Config.PeriodFrames is zero
const DefaultPeriodFrames = 512

// Config describes the stream a session wants
type Config struct {
	// Format is the preferred sample format; drivers may pick another
	Format       audio.SampleFormat
	Channels     int
	SampleRate   int
	PeriodFrames int
}

// Validate checks the stream shape
func (c Config) Validate() error {
	if !c.Format.Valid() {
		return fmt.Errorf("%w: %w", ErrDevice, audio.ErrUnknownFormat)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", ErrDevice, c.Channels)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrDevice, c.SampleRate)
	}
	if c.PeriodFrames < 0 {
		return fmt.Errorf("%w: period must not be negative, got %d", ErrDevice, c.PeriodFrames)
	}
	return nil
}

// Period returns the configured period, falling back to DefaultPeriodFrames
func (c Config) Period() int {
	if c.PeriodFrames > 0 {
		return c.PeriodFrames
	}
	return DefaultPeriodFrames
}

// PeriodDuration is the wall time one period covers
func (c Config) PeriodDuration() time.Duration {
	return time.Duration(c.Period()) * time.Second / time.Duration(c.SampleRate)
}

// Stream is an opened capture or playback stream.
// Callback buffers hold interleaved little-endian samples in Format().
type Stream interface {
	// Format is the native sample format of callback buffers
	Format() audio.SampleFormat
	Start() error
	Stop() error
	Close() error
}

// Driver opens streams on one backend.
// onData runs on the driver's audio thread and must not block.
type Driver interface {
	OpenCapture(cfg Config, onData func(in []byte)) (Stream, error)
	OpenPlayback(cfg Config, onData func(out []byte)) (Stream, error)
	Close() error
}

// Options select and tune a driver by name
type Options struct {
	// Path is the source file for file capture or the WAV target for file playback
	Path string

	// Loop restarts file capture at end of file
	Loop bool

	// Frequency of the tone driver in Hz, 440 when zero
	Frequency float64
}

// Names lists the drivers Open understands
func Names() []string {
	return []string{"malgo", "oto", "tone", "file"}
}

// Open returns the driver registered under name
func Open(name string, opts Options) (Driver, error) {
	switch strings.ToLower(name) {
	case "", "malgo", "default":
		return NewMalgo(), nil
	case "oto":
		return NewOto(), nil
	case "tone":
		return NewTone(opts.Frequency), nil
	case "file":
		if opts.Path == "" {
			return nil, fmt.Errorf("%w: file driver needs a path", ErrDevice)
		}
		return NewFile(opts.Path, opts.Loop), nil
	}
	return nil, fmt.Errorf("%w: unknown driver %q (available: %s)", ErrDevice, name, strings.Join(Names(), ", "))
}
