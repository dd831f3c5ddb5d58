// ABOUTME: Capture session
// ABOUTME: Moves samples from an input device through the ring buffer to the peer
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/Resonate-Protocol/audiosock/pkg/audio/encode"
	"github.com/Resonate-Protocol/audiosock/pkg/device"
	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
	"github.com/Resonate-Protocol/audiosock/pkg/ringbuf"
	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Capture streams one input device to one peer
type Capture struct {
	cfg    CaptureConfig
	driver device.Driver
	conn   transport.Conn
	log    *zap.Logger
	id     string

	state   stateVar
	stats   counters
	started atomic.Bool
}

// NewCapture prepares a capture session. Nothing is opened until Run.
func NewCapture(cfg CaptureConfig, driver device.Driver, conn transport.Conn, logger *zap.Logger) (*Capture, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if _, err := lookup(cfg.Stream.SampleFormat); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id := uuid.New().String()
	return &Capture{
		cfg:    cfg,
		driver: driver,
		conn:   conn,
		id:     id,
		log:    logger.With(zap.String("session_id", id), zap.String("role", "capture")),
	}, nil
}

// ID identifies the session in logs
func (c *Capture) ID() string { return c.id }

// State returns the current lifecycle state
func (c *Capture) State() State { return c.state.load() }

// Stats returns a snapshot of the session counters
func (c *Capture) Stats() Stats { return c.stats.snapshot() }

// Config returns the announced stream configuration
func (c *Capture) Config() protocol.Config { return c.cfg.Stream }

// Run opens the device, announces the stream and sends samples until ctx is
// cancelled, Duration elapses or the connection closes. The device and the
// connection are closed on every return.
func (c *Capture) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer c.conn.Close()
	defer c.state.store(StateTerminated)

	rf, err := lookup(c.cfg.Stream.SampleFormat)
	if err != nil {
		return err
	}
	return rf.capture(c).run(ctx)
}

type captureRunner[T audio.Sample] struct {
	c        *Capture
	channels int

	ring *ringbuf.RingBuffer[T]
	prod *ringbuf.Producer[T]
	cons *ringbuf.Consumer[T]

	// audio thread only
	read    func(b []byte) T
	width   int
	scratch []T

	// I/O loop only
	enc     encode.Encoder[T]
	pending []T
	payload []byte
	frame   []byte
}

func newCaptureRunner[T audio.Sample](c *Capture) *captureRunner[T] {
	stream := c.cfg.Stream
	channels := int(stream.Channels)
	period := device.Config{PeriodFrames: c.cfg.PeriodFrames}.Period()

	ring := ringbuf.New[T](RingCapacity(c.cfg.LatencyMs, int(stream.SampleRate), channels, period))
	prod, cons := ring.Split()

	// one message must fit a single Send on the carrier
	maxFrame := min(c.conn.MaxFrame(), protocol.LengthPrefixSize+protocol.MaxFrameSize)
	perMessage := (maxFrame - protocol.LengthPrefixSize - protocol.DataHeaderSize) / stream.SampleFormat.Width()
	if c.cfg.MaxSamplesPerMessage > 0 {
		perMessage = min(perMessage, c.cfg.MaxSamplesPerMessage)
	}
	perMessage = min(perMessage, ring.Cap())
	perMessage = max(perMessage-perMessage%channels, channels)

	enc, _ := encode.NewPCM[T](stream.ByteOrder)

	return &captureRunner[T]{
		c:        c,
		channels: channels,
		ring:     ring,
		prod:     prod,
		cons:     cons,
		scratch:  make([]T, 4*period*channels),
		enc:      enc,
		pending:  make([]T, perMessage),
	}
}

// onData runs on the audio thread: convert, push whole frames, never block
func (r *captureRunner[T]) onData(in []byte) {
	total := len(in) / r.width
	total -= total % r.channels

	for off := 0; off < total; off += len(r.scratch) {
		n := min(len(r.scratch), total-off)
		for i := 0; i < n; i++ {
			r.scratch[i] = r.read(in[(off+i)*r.width:])
		}

		free := r.prod.Free()
		fit := min(n, free-free%r.channels)
		if fit < n {
			r.c.stats.overflows.Add(uint64(n - fit))
		}
		if fit > 0 {
			r.prod.PushSlice(r.scratch[:fit])
			r.c.stats.samplesCaptured.Add(uint64(fit))
		}
	}
}

func (r *captureRunner[T]) run(ctx context.Context) error {
	c := r.c
	stream := c.cfg.Stream

	devCfg := device.Config{
		Format:       stream.SampleFormat,
		Channels:     int(stream.Channels),
		SampleRate:   int(stream.SampleRate),
		PeriodFrames: c.cfg.PeriodFrames,
	}
	ds, err := c.driver.OpenCapture(devCfg, r.onData)
	if err != nil {
		return deviceErr("open capture device", err)
	}
	defer ds.Close()
	defer r.enc.Close()

	r.read, err = audio.DeviceReader[T](ds.Format())
	if err != nil {
		return deviceErr("capture device format", err)
	}
	r.width = ds.Format().Width()

	configFrame, err := protocol.EncodeConfig(stream)
	if err != nil {
		return err
	}
	if err := c.conn.Send(configFrame); err != nil {
		return fmt.Errorf("send config: %w", err)
	}
	c.stats.messagesSent.Add(1)
	c.stats.bytesSent.Add(uint64(len(configFrame)))

	if err := ds.Start(); err != nil {
		return deviceErr("start capture device", err)
	}
	c.state.store(StateStreaming)
	c.log.Info("capture streaming",
		zap.Stringer("stream", stream),
		zap.Stringer("device_format", ds.Format()),
		zap.Int("ring_capacity", r.ring.Cap()),
		zap.Duration("drain_interval", c.cfg.DrainInterval),
		zap.String("peer", c.conn.RemoteAddr()))

	ticker := time.NewTicker(c.cfg.DrainInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if c.cfg.Duration > 0 {
		timer := time.NewTimer(c.cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			c.log.Info("capture stopped")
			break loop
		case <-deadline:
			c.log.Info("capture duration elapsed", zap.Duration("duration", c.cfg.Duration))
			break loop
		case <-ticker.C:
			if err := r.drain(); err != nil {
				ds.Stop()
				c.log.Warn("peer connection closed", zap.Error(err))
				return err
			}
		}
	}

	if err := ds.Stop(); err != nil {
		c.log.Warn("failed to stop capture device", zap.Error(err))
	}

	// the callback has stopped; send what is left, then terminate
	if err := r.drain(); err != nil {
		return err
	}
	end, _ := protocol.EncodeData(protocol.Terminate())
	if err := c.conn.Send(end); err != nil {
		return fmt.Errorf("send terminate: %w", err)
	}
	c.stats.messagesSent.Add(1)
	c.stats.bytesSent.Add(uint64(len(end)))

	c.log.Info("capture terminated", zap.Any("stats", c.Stats()))
	return nil
}

// drain sends everything currently buffered. Send failures lose the
// samples; only a closed connection is returned.
func (r *captureRunner[T]) drain() error {
	c := r.c
	for {
		n := r.cons.PopSlice(r.pending)
		if n == 0 {
			return nil
		}

		r.payload = r.enc.Encode(r.payload[:0], r.pending[:n])
		frame, err := protocol.AppendData(r.frame[:0], protocol.Data{Payload: r.payload})
		if err != nil {
			return err
		}
		r.frame = frame

		if err := c.conn.Send(frame); err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			c.stats.transportErrors.Add(1)
			c.log.Warn("send failed, samples dropped", zap.Int("samples", n), zap.Error(err))
			return nil
		}
		c.stats.messagesSent.Add(1)
		c.stats.samplesSent.Add(uint64(n))
		c.stats.bytesSent.Add(uint64(len(frame)))

		if n < len(r.pending) {
			return nil
		}
	}
}
