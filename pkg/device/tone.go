// ABOUTME: Sine tone capture driver
// ABOUTME: Generates a steady test tone in place of a microphone
package device

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
)

const (
	DefaultToneFrequency = 440.0
	toneAmplitude        = 0.5
)

// Tone is a capture-only driver producing a sine wave on every channel
type Tone struct {
	frequency float64
}

// NewTone returns a tone driver; frequency 0 means 440Hz
func NewTone(frequency float64) *Tone {
	if frequency <= 0 {
		frequency = DefaultToneFrequency
	}
	return &Tone{frequency: frequency}
}

func (t *Tone) OpenCapture(cfg Config, onData func(in []byte)) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	step := 2 * math.Pi * t.frequency / float64(cfg.SampleRate)
	phase := 0.0
	width := audio.FormatF32.Width()

	tick := func(buf []byte) error {
		frames := len(buf) / (cfg.Channels * width)
		for i := 0; i < frames; i++ {
			bits := math.Float32bits(float32(toneAmplitude * math.Sin(phase)))
			for ch := 0; ch < cfg.Channels; ch++ {
				binary.LittleEndian.PutUint32(buf[(i*cfg.Channels+ch)*width:], bits)
			}
			phase += step
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
		onData(buf)
		return nil
	}

	return newClockedStream(cfg, audio.FormatF32, tick, nil), nil
}

func (t *Tone) OpenPlayback(Config, func(out []byte)) (Stream, error) {
	return nil, fmt.Errorf("%w: tone driver has no playback", ErrUnsupported)
}

func (t *Tone) Close() error { return nil }
