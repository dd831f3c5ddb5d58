// ABOUTME: Oto-based playback driver
// ABOUTME: Pulls samples through an io.Reader into the oto player
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process
var (
	otoMu   sync.Mutex
	otoCtx  *oto.Context
	otoOpts oto.NewContextOptions
)

// Oto plays through the oto library. It has no capture side.
type Oto struct{}

// NewOto creates an oto driver
func NewOto() *Oto {
	return &Oto{}
}

func otoFormat(f audio.SampleFormat) (oto.Format, audio.SampleFormat) {
	switch f {
	case audio.FormatU8:
		return oto.FormatUnsignedInt8, audio.FormatU8
	case audio.FormatI16:
		return oto.FormatSignedInt16LE, audio.FormatI16
	default:
		return oto.FormatFloat32LE, audio.FormatF32
	}
}

func sharedOtoContext(op oto.NewContextOptions) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoOpts.SampleRate != op.SampleRate || otoOpts.ChannelCount != op.ChannelCount || otoOpts.Format != op.Format {
			return nil, fmt.Errorf("%w: oto already running at %dHz/%dch and cannot be reinitialized",
				ErrDevice, otoOpts.SampleRate, otoOpts.ChannelCount)
		}
		return otoCtx, nil
	}

	ctx, readyChan, err := oto.NewContext(&op)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %w", ErrDevice, err)
	}
	<-readyChan

	otoCtx = ctx
	otoOpts = op
	return ctx, nil
}

func (o *Oto) OpenCapture(Config, func(in []byte)) (Stream, error) {
	return nil, fmt.Errorf("%w: oto has no capture", ErrUnsupported)
}

func (o *Oto) OpenPlayback(cfg Config, onData func(out []byte)) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	format, native := otoFormat(cfg.Format)
	ctx, err := sharedOtoContext(oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       format,
		BufferSize:   max(cfg.PeriodDuration(), 10*time.Millisecond),
	})
	if err != nil {
		return nil, err
	}

	r := &pullReader{onData: onData, frame: make([]byte, cfg.Channels*native.Width())}
	return &otoStream{player: ctx.NewPlayer(r), format: native}, nil
}

func (o *Oto) Close() error { return nil }

// pullReader turns the playback callback into an io.Reader. Reads that end
// inside a frame are served from a one-frame carry buffer.
type pullReader struct {
	onData func(out []byte)
	frame  []byte
	carry  int
}

func (r *pullReader) Read(p []byte) (int, error) {
	n := 0
	if r.carry > 0 {
		c := copy(p, r.frame[len(r.frame)-r.carry:])
		r.carry -= c
		n += c
	}

	whole := (len(p) - n) / len(r.frame) * len(r.frame)
	if whole > 0 {
		r.onData(p[n : n+whole])
		n += whole
	}

	if n < len(p) {
		r.onData(r.frame)
		c := copy(p[n:], r.frame)
		r.carry = len(r.frame) - c
		n += c
	}
	return n, nil
}

type otoStream struct {
	player *oto.Player
	format audio.SampleFormat
}

func (s *otoStream) Format() audio.SampleFormat { return s.format }

func (s *otoStream) Start() error {
	s.player.Play()
	return nil
}

func (s *otoStream) Stop() error {
	s.player.Pause()
	return nil
}

func (s *otoStream) Close() error {
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}
	return nil
}
