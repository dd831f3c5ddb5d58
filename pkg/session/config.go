// ABOUTME: Session configuration
// ABOUTME: Capture and playback settings, defaults and ring sizing
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
)

const (
	DefaultLatencyMs        = 1000
	DefaultDrainInterval    = 20 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
)

// UnderflowPolicy decides what the playback callback emits when the ring is empty
type UnderflowPolicy int

const (
	// UnderflowSilence emits the format's zero level
	UnderflowSilence UnderflowPolicy = iota

	// UnderflowHoldLast repeats the last sample played on the same channel
	UnderflowHoldLast
)

func (p UnderflowPolicy) String() string {
	switch p {
	case UnderflowSilence:
		return "silence"
	case UnderflowHoldLast:
		return "hold"
	default:
		return fmt.Sprintf("UnderflowPolicy(%d)", int(p))
	}
}

// ParseUnderflowPolicy accepts "silence" and "hold"
func ParseUnderflowPolicy(s string) (UnderflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "silence", "zero":
		return UnderflowSilence, nil
	case "hold", "hold-last", "last":
		return UnderflowHoldLast, nil
	}
	return 0, fmt.Errorf("unknown underflow policy %q (want silence or hold)", s)
}

// CaptureConfig configures a capture session
type CaptureConfig struct {
	// Stream is announced to the peer and fixes the sample type for the session
	Stream protocol.Config

	// LatencyMs sizes the ring buffer; the ring holds twice this much audio
	LatencyMs int

	// DrainInterval is the cadence at which captured samples are sent
	DrainInterval time.Duration

	// Duration stops the session after it elapses; zero runs until cancelled
	Duration time.Duration

	// PeriodFrames is passed to the device; zero lets the driver choose
	PeriodFrames int

	// MaxSamplesPerMessage caps a Data payload; zero means only the frame size limit applies
	MaxSamplesPerMessage int
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.LatencyMs == 0 {
		c.LatencyMs = DefaultLatencyMs
	}
	if c.DrainInterval == 0 {
		c.DrainInterval = DefaultDrainInterval
	}
	return c
}

// Validate checks the capture settings
func (c CaptureConfig) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if c.LatencyMs < 0 || c.DrainInterval < 0 || c.Duration < 0 || c.PeriodFrames < 0 || c.MaxSamplesPerMessage < 0 {
		return fmt.Errorf("capture settings must not be negative")
	}
	return nil
}

// PlaybackConfig configures a playback session
type PlaybackConfig struct {
	// LatencyMs sizes the ring buffer; the ring holds twice this much audio
	LatencyMs int

	// PeriodFrames is passed to the device; zero lets the driver choose
	PeriodFrames int

	Underflow UnderflowPolicy

	// HandshakeTimeout bounds the wait for Config; negative waits forever
	HandshakeTimeout time.Duration

	// DrainInterval is how often the session checks the ring while letting
	// buffered audio play out after terminate
	DrainInterval time.Duration
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.LatencyMs == 0 {
		c.LatencyMs = DefaultLatencyMs
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.DrainInterval == 0 {
		c.DrainInterval = DefaultDrainInterval
	}
	return c
}

// Validate checks the playback settings
func (c PlaybackConfig) Validate() error {
	if c.LatencyMs < 0 || c.PeriodFrames < 0 || c.DrainInterval < 0 {
		return fmt.Errorf("playback settings must not be negative")
	}
	if c.Underflow != UnderflowSilence && c.Underflow != UnderflowHoldLast {
		return fmt.Errorf("unknown underflow policy %d", int(c.Underflow))
	}
	return nil
}

// RingCapacity returns the ring size in samples: twice the latency worth of
// audio, never less than one device period, always whole frames
func RingCapacity(latencyMs, sampleRate, channels, periodFrames int) int {
	frames := latencyMs * sampleRate / 1000 * 2
	frames = max(frames, periodFrames, 1)
	return frames * channels
}
