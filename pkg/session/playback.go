// ABOUTME: Playback session
// ABOUTME: Negotiates the stream from the first message and plays received samples
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/Resonate-Protocol/audiosock/pkg/audio/decode"
	"github.com/Resonate-Protocol/audiosock/pkg/device"
	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
	"github.com/Resonate-Protocol/audiosock/pkg/ringbuf"
	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Playback receives one stream from one peer and plays it on an output device
type Playback struct {
	cfg    PlaybackConfig
	driver device.Driver
	conn   transport.Conn
	log    *zap.Logger
	id     string

	state   stateVar
	stats   counters
	started atomic.Bool

	mu         sync.Mutex
	negotiated protocol.Config
	haveConfig bool
}

// NewPlayback prepares a playback session. Nothing is opened until Run.
func NewPlayback(cfg PlaybackConfig, driver device.Driver, conn transport.Conn, logger *zap.Logger) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id := uuid.New().String()
	return &Playback{
		cfg:    cfg,
		driver: driver,
		conn:   conn,
		id:     id,
		log:    logger.With(zap.String("session_id", id), zap.String("role", "playback")),
	}, nil
}

// ID identifies the session in logs
func (p *Playback) ID() string { return p.id }

// State returns the current lifecycle state
func (p *Playback) State() State { return p.state.load() }

// Stats returns a snapshot of the session counters
func (p *Playback) Stats() Stats { return p.stats.snapshot() }

// Negotiated returns the stream announced by the peer, once known
func (p *Playback) Negotiated() (protocol.Config, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.negotiated, p.haveConfig
}

// Run performs the handshake and plays until the peer terminates, the
// connection closes or ctx is cancelled. Cancellation is a clean stop and
// returns nil. The device and the connection are closed on every return.
func (p *Playback) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer p.conn.Close()
	defer p.state.store(StateTerminated)

	// closing the connection is the only way to interrupt a blocked Receive
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.conn.Close()
		case <-done:
		}
	}()

	p.state.store(StateAwaitingConfig)
	cfg, err := p.handshake(ctx)
	if err != nil {
		if ctx.Err() != nil {
			p.log.Info("stopped before handshake")
			return nil
		}
		p.log.Warn("handshake failed", zap.Error(err))
		return err
	}

	p.mu.Lock()
	p.negotiated, p.haveConfig = cfg, true
	p.mu.Unlock()
	p.log.Info("stream negotiated", zap.Stringer("stream", cfg), zap.String("peer", p.conn.RemoteAddr()))

	rf, err := lookup(cfg.SampleFormat)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return rf.playback(p, cfg).run(ctx)
}

func (p *Playback) handshake(ctx context.Context) (protocol.Config, error) {
	var timedOut atomic.Bool
	if p.cfg.HandshakeTimeout > 0 {
		timer := time.AfterFunc(p.cfg.HandshakeTimeout, func() {
			timedOut.Store(true)
			p.conn.Close()
		})
		defer timer.Stop()
	}

	frame, err := p.conn.Receive()
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return protocol.Config{}, fmt.Errorf("%w: %w", ErrHandshake, ctx.Err())
		case timedOut.Load():
			return protocol.Config{}, fmt.Errorf("%w: no config within %v", ErrHandshake, p.cfg.HandshakeTimeout)
		}
		return protocol.Config{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	p.stats.messagesReceived.Add(1)
	p.stats.bytesReceived.Add(uint64(len(frame)))

	kind, err := protocol.PeekKind(frame)
	if err != nil {
		return protocol.Config{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if kind != protocol.KindConfig {
		return protocol.Config{}, fmt.Errorf("%w: first message is %v, want %v", ErrHandshake, kind, protocol.KindConfig)
	}

	cfg, err := protocol.DecodeConfig(frame)
	if err != nil {
		return protocol.Config{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return cfg, nil
}

type playbackRunner[T audio.Sample] struct {
	p        *Playback
	stream   protocol.Config
	channels int

	ring *ringbuf.RingBuffer[T]
	prod *ringbuf.Producer[T]
	cons *ringbuf.Consumer[T]

	// I/O loop only
	dec     decode.Decoder[T]
	samples []T

	// audio thread only
	write   func(b []byte, v T)
	width   int
	policy  UnderflowPolicy
	silence T
	last    []T
	popped  []T
}

func newPlaybackRunner[T audio.Sample](p *Playback, stream protocol.Config) *playbackRunner[T] {
	channels := int(stream.Channels)
	period := device.Config{PeriodFrames: p.cfg.PeriodFrames}.Period()

	ring := ringbuf.New[T](RingCapacity(p.cfg.LatencyMs, int(stream.SampleRate), channels, period))
	prod, cons := ring.Split()

	dec, _ := decode.NewPCM[T](stream.ByteOrder)
	silence := audio.CodecFor[T]().FromUnit(0)

	last := make([]T, channels)
	for i := range last {
		last[i] = silence
	}

	return &playbackRunner[T]{
		p:        p,
		stream:   stream,
		channels: channels,
		ring:     ring,
		prod:     prod,
		cons:     cons,
		dec:      dec,
		policy:   p.cfg.Underflow,
		silence:  silence,
		last:     last,
		popped:   make([]T, 4*period*channels),
	}
}

// onData runs on the audio thread: pop, convert, fill gaps by policy
func (r *playbackRunner[T]) onData(out []byte) {
	total := len(out) / r.width

	for off := 0; off < total; off += len(r.popped) {
		want := min(len(r.popped), total-off)
		n := r.cons.PopSlice(r.popped[:want])

		for i := 0; i < want; i++ {
			slot := (off + i) % r.channels
			var v T
			switch {
			case i < n:
				v = r.popped[i]
				r.last[slot] = v
			case r.policy == UnderflowHoldLast:
				v = r.last[slot]
			default:
				v = r.silence
			}
			r.write(out[(off+i)*r.width:], v)
		}

		r.p.stats.samplesPlayed.Add(uint64(n))
		if n < want {
			r.p.stats.underflows.Add(uint64(want - n))
		}
	}
}

func (r *playbackRunner[T]) run(ctx context.Context) error {
	p := r.p

	devCfg := device.Config{
		Format:       r.stream.SampleFormat,
		Channels:     r.channels,
		SampleRate:   int(r.stream.SampleRate),
		PeriodFrames: p.cfg.PeriodFrames,
	}
	ds, err := p.driver.OpenPlayback(devCfg, r.onData)
	if err != nil {
		return deviceErr("open playback device", err)
	}
	defer ds.Close()
	defer r.dec.Close()

	r.write, err = audio.DeviceWriter[T](ds.Format())
	if err != nil {
		return deviceErr("playback device format", err)
	}
	r.width = ds.Format().Width()

	if err := ds.Start(); err != nil {
		return deviceErr("start playback device", err)
	}
	p.state.store(StateStreaming)
	p.log.Info("playback streaming",
		zap.Stringer("device_format", ds.Format()),
		zap.Int("ring_capacity", r.ring.Cap()),
		zap.Stringer("underflow", r.policy))

	for {
		frame, err := p.conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				p.log.Info("playback stopped")
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				p.log.Warn("peer connection closed before terminate", zap.Error(err))
				return fmt.Errorf("receive: %w", err)
			}
			p.stats.transportErrors.Add(1)
			p.log.Warn("receive failed", zap.Error(err))
			continue
		}
		p.stats.messagesReceived.Add(1)
		p.stats.bytesReceived.Add(uint64(len(frame)))

		msg, err := protocol.DecodeData(frame)
		if err != nil {
			p.stats.schemaErrors.Add(1)
			p.log.Warn("message discarded", zap.Error(err))
			continue
		}

		if msg.Terminate {
			p.state.store(StateTerminated)
			p.log.Info("peer terminated stream")
			r.playOut(ctx)
			if err := ds.Stop(); err != nil {
				p.log.Warn("failed to stop playback device", zap.Error(err))
			}
			p.log.Info("playback terminated", zap.Any("stats", p.Stats()))
			return nil
		}

		if err := r.push(msg.Payload); err != nil {
			p.stats.schemaErrors.Add(1)
			p.log.Warn("payload discarded", zap.Error(err))
		}
	}
}

// push decodes a payload and queues its samples, dropping whole frames
// that do not fit
func (r *playbackRunner[T]) push(payload []byte) error {
	samples, err := r.dec.Decode(r.samples[:0], payload)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrSchema, err)
	}
	r.samples = samples

	if len(samples)%r.channels != 0 {
		return fmt.Errorf("%w: %d samples is not a whole number of %d-channel frames",
			protocol.ErrSchema, len(samples), r.channels)
	}
	r.p.stats.samplesReceived.Add(uint64(len(samples)))

	free := r.prod.Free()
	fit := min(len(samples), free-free%r.channels)
	if fit < len(samples) {
		r.p.stats.overflows.Add(uint64(len(samples) - fit))
	}
	r.prod.PushSlice(samples[:fit])
	return nil
}

// playOut lets buffered samples reach the device before it is stopped.
// It waits at most as long as the ring holds audio.
func (r *playbackRunner[T]) playOut(ctx context.Context) {
	frames := r.ring.Cap() / r.channels
	limit := time.Duration(frames) * time.Second / time.Duration(r.stream.SampleRate)
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	ticker := time.NewTicker(r.p.cfg.DrainInterval)
	defer ticker.Stop()

	for r.ring.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}
