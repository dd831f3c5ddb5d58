// ABOUTME: Malgo-based audio device driver
// ABOUTME: Uses miniaudio via malgo for hardware capture and playback
package device

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Malgo opens the system default capture and playback devices
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
}

// NewMalgo creates a malgo driver; the backend context is created on first open
func NewMalgo() *Malgo {
	return &Malgo{}
}

// malgoFormat maps a sample format onto one miniaudio can run natively.
// Anything else runs as F32 and is converted by the caller.
func malgoFormat(f audio.SampleFormat) (malgo.FormatType, audio.SampleFormat) {
	switch f {
	case audio.FormatU8:
		return malgo.FormatU8, audio.FormatU8
	case audio.FormatI16:
		return malgo.FormatS16, audio.FormatI16
	case audio.FormatI32:
		return malgo.FormatS32, audio.FormatI32
	default:
		return malgo.FormatF32, audio.FormatF32
	}
}

func (m *Malgo) context() (*malgo.AllocatedContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize malgo context: %w", ErrDevice, err)
		}
		m.malgoCtx = ctx
	}
	return m.malgoCtx, nil
}

func (m *Malgo) OpenCapture(cfg Config, onData func(in []byte)) (Stream, error) {
	return m.open(malgo.Capture, cfg, func(_, in []byte, _ uint32) {
		onData(in)
	})
}

func (m *Malgo) OpenPlayback(cfg Config, onData func(out []byte)) (Stream, error) {
	return m.open(malgo.Playback, cfg, func(out, _ []byte, _ uint32) {
		onData(out)
	})
}

func (m *Malgo) open(kind malgo.DeviceType, cfg Config, data malgo.DataProc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	format, native := malgoFormat(cfg.Format)

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	if kind == malgo.Capture {
		deviceConfig.Capture.Format = format
		deviceConfig.Capture.Channels = uint32(cfg.Channels)
	} else {
		deviceConfig.Playback.Format = format
		deviceConfig.Playback.Channels = uint32(cfg.Channels)
	}
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.Period())
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize %s device: %w", ErrDevice, kindName(kind), err)
	}

	return &malgoStream{device: device, format: native}, nil
}

// Close releases the backend context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}
	err := m.malgoCtx.Uninit()
	m.malgoCtx.Free()
	m.malgoCtx = nil
	if err != nil {
		return fmt.Errorf("%w: malgo context uninit: %w", ErrDevice, err)
	}
	return nil
}

func kindName(kind malgo.DeviceType) string {
	if kind == malgo.Capture {
		return "capture"
	}
	return "playback"
}

type malgoStream struct {
	mu      sync.Mutex
	device  *malgo.Device
	format  audio.SampleFormat
	started bool
}

func (s *malgoStream) Format() audio.SampleFormat { return s.format }

func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return fmt.Errorf("%w: stream closed", ErrDevice)
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("%w: failed to start device: %w", ErrDevice, err)
	}
	s.started = true
	return nil
}

func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil || !s.started {
		return nil
	}
	s.started = false
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("%w: failed to stop device: %w", ErrDevice, err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	return err
}
