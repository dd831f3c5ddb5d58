// ABOUTME: Tests for the capture session
// ABOUTME: Verifies message order, payload encoding, conversion and failure paths
package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/Resonate-Protocol/audiosock/pkg/device"
	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monoF32 = protocol.Config{
	SampleFormat: audio.FormatF32,
	Channels:     1,
	SampleRate:   44100,
	ByteOrder:    audio.LittleEndian,
}

// collected splits sent frames into the config, the concatenated payload and
// whether the last frame was a terminate
func collected(t *testing.T, frames [][]byte) (protocol.Config, []byte, bool) {
	t.Helper()
	require.NotEmpty(t, frames)

	cfg, err := protocol.DecodeConfig(frames[0])
	require.NoError(t, err, "first frame must be Config")

	var payload []byte
	terminated := false
	for i, f := range frames[1:] {
		d, err := protocol.DecodeData(f)
		require.NoError(t, err)
		if d.Terminate {
			require.Equal(t, len(frames)-2, i, "terminate must be last")
			terminated = true
			continue
		}
		payload = append(payload, d.Payload...)
	}
	return cfg, payload, terminated
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond)
}

func TestCaptureSendsConfigSamplesThenTerminate(t *testing.T) {
	conn := newFakeConn()
	drv := newFakeDriver()

	c, err := NewCapture(CaptureConfig{Stream: monoF32, DrainInterval: 5 * time.Millisecond}, drv, conn, nil)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(func() error { return c.Run(ctx) })

	drv.waitStarted(t)
	assert.Equal(t, StateStreaming, c.State())
	drv.capture(encodeLE[float32](1.0, -1.0))

	waitFor(t, func() bool { return c.Stats().SamplesSent == 2 })
	cancel()
	require.NoError(t, waitRun(t, done))

	cfg, payload, terminated := collected(t, conn.frames())
	assert.Equal(t, monoF32, cfg)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x80, 0xbf}, payload)
	assert.True(t, terminated)

	assert.Equal(t, StateTerminated, c.State())
	assert.True(t, drv.lastStream().stopped.Load())
	assert.True(t, drv.lastStream().closed.Load())
	assert.True(t, conn.isClosed())

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.SamplesCaptured)
	assert.Equal(t, uint64(len(conn.frames())), stats.MessagesSent)
}

func TestCaptureFinalDrainAfterDuration(t *testing.T) {
	conn := newFakeConn()
	drv := newFakeDriver()

	stream := protocol.Config{SampleFormat: audio.FormatI16, Channels: 2, SampleRate: 8000, ByteOrder: audio.BigEndian}
	c, err := NewCapture(CaptureConfig{
		Stream:        stream,
		DrainInterval: time.Hour,
		Duration:      200 * time.Millisecond,
	}, drv, conn, nil)
	require.NoError(t, err)

	done := runAsync(func() error { return c.Run(context.Background()) })
	drv.waitStarted(t)
	drv.capture(encodeLE[int16](1, -2, 0x0102, 0x7fff))

	require.NoError(t, waitRun(t, done))

	cfg, payload, terminated := collected(t, conn.frames())
	assert.Equal(t, stream, cfg)
	assert.True(t, terminated)
	// big-endian on the wire as declared
	assert.Equal(t, []byte{0x00, 0x01, 0xff, 0xfe, 0x01, 0x02, 0x7f, 0xff}, payload)
}

func TestCaptureConvertsDeviceFormat(t *testing.T) {
	conn := newFakeConn()
	drv := newFakeDriver()
	drv.native = audio.FormatI16

	c, err := NewCapture(CaptureConfig{Stream: monoF32, DrainInterval: 5 * time.Millisecond}, drv, conn, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(func() error { return c.Run(ctx) })
	drv.waitStarted(t)
	drv.capture(encodeLE[int16](16384, -32768))

	waitFor(t, func() bool { return c.Stats().SamplesSent == 2 })
	cancel()
	require.NoError(t, waitRun(t, done))

	_, payload, _ := collected(t, conn.frames())
	assert.Equal(t, []float32{0.5, -1.0}, decodeLE[float32](t, payload))
}

func TestCaptureOverflowDropsNewestWholeFrames(t *testing.T) {
	conn := newFakeConn()
	drv := newFakeDriver()

	stream := protocol.Config{SampleFormat: audio.FormatU8, Channels: 2, SampleRate: 1000, ByteOrder: audio.LittleEndian}
	// one millisecond of latency and a one-frame period gives a two-frame ring
	c, err := NewCapture(CaptureConfig{Stream: stream, LatencyMs: 1, PeriodFrames: 1, DrainInterval: time.Hour}, drv, conn, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(func() error { return c.Run(ctx) })
	drv.waitStarted(t)
	drv.capture([]byte{1, 2, 3, 4, 5, 6, 7})
	cancel()
	require.NoError(t, waitRun(t, done))

	_, payload, terminated := collected(t, conn.frames())
	assert.True(t, terminated)
	assert.Equal(t, []byte{1, 2, 3, 4}, payload)

	stats := c.Stats()
	assert.Equal(t, uint64(4), stats.SamplesCaptured)
	assert.Equal(t, uint64(2), stats.Overflows)
}

func TestCaptureSplitsLargeBacklog(t *testing.T) {
	conn := newFakeConn()
	drv := newFakeDriver()

	c, err := NewCapture(CaptureConfig{Stream: monoF32, DrainInterval: time.Hour, MaxSamplesPerMessage: 3}, drv, conn, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(func() error { return c.Run(ctx) })
	drv.waitStarted(t)
	drv.capture(encodeLE[float32](0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7))
	cancel()
	require.NoError(t, waitRun(t, done))

	frames := conn.frames()
	// config, 3 + 3 + 1 samples, terminate
	require.Len(t, frames, 5)
	_, payload, _ := collected(t, frames)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}, decodeLE[float32](t, payload))
}

func TestCaptureFitsMessagesToCarrier(t *testing.T) {
	surround := protocol.Config{
		SampleFormat: audio.FormatF64,
		Channels:     8,
		SampleRate:   96000,
		ByteOrder:    audio.LittleEndian,
	}

	tests := []struct {
		name     string
		stream   protocol.Config
		maxFrame int
		samples  int
	}{
		// 20ms of 8ch f64 at 96kHz is about twice a datagram
		{"datagram", surround, transport.MaxDatagramSize, 15360},
		{"tiny", monoF32, 64, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			conn.maxFrame = tt.maxFrame
			drv := newFakeDriver()

			c, err := NewCapture(CaptureConfig{Stream: tt.stream, DrainInterval: time.Hour}, drv, conn, nil)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			done := runAsync(func() error { return c.Run(ctx) })
			drv.waitStarted(t)

			var in []byte
			if tt.stream.SampleFormat == audio.FormatF64 {
				want := make([]float64, tt.samples)
				for i := range want {
					want[i] = float64(i%1000) / 1000
				}
				in = encodeLE[float64](want...)
			} else {
				want := make([]float32, tt.samples)
				for i := range want {
					want[i] = float32(i) / 128
				}
				in = encodeLE[float32](want...)
			}
			drv.capture(in)
			cancel()
			require.NoError(t, waitRun(t, done))

			frames := conn.frames()
			assert.Greater(t, len(frames), 3, "backlog is split over several messages")
			for i, f := range frames {
				assert.LessOrEqual(t, len(f), tt.maxFrame, "frame %d", i)
			}

			_, payload, terminated := collected(t, frames)
			assert.Equal(t, in, payload)
			assert.True(t, terminated)

			stats := c.Stats()
			assert.Equal(t, uint64(tt.samples), stats.SamplesSent)
			assert.Zero(t, stats.TransportErrors)
		})
	}
}

func TestCaptureOverUDP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := transport.Listen(ctx, transport.KindUDP, "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	type result struct {
		frames [][]byte
		err    error
	}
	received := make(chan result, 1)
	go func() {
		peer, err := ln.Accept(ctx)
		if err != nil {
			received <- result{err: err}
			return
		}
		defer peer.Close()
		var frames [][]byte
		for {
			f, err := peer.Receive()
			if err != nil {
				received <- result{frames, err}
				return
			}
			frames = append(frames, f)
			if d, err := protocol.DecodeData(f); err == nil && d.Terminate {
				received <- result{frames, nil}
				return
			}
		}
	}()

	conn, err := transport.Dial(ctx, transport.KindUDP, ln.Addr())
	require.NoError(t, err)

	stream := protocol.Config{
		SampleFormat: audio.FormatF64,
		Channels:     8,
		SampleRate:   96000,
		ByteOrder:    audio.LittleEndian,
	}
	drv := newFakeDriver()
	c, err := NewCapture(CaptureConfig{Stream: stream, DrainInterval: time.Hour}, drv, conn, nil)
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	done := runAsync(func() error { return c.Run(runCtx) })
	drv.waitStarted(t)

	want := make([]float64, 15360)
	for i := range want {
		want[i] = float64(i%480) / 480
	}
	drv.capture(encodeLE[float64](want...))
	stop()
	require.NoError(t, waitRun(t, done))

	stats := c.Stats()
	assert.Equal(t, uint64(len(want)), stats.SamplesSent)
	assert.Zero(t, stats.TransportErrors)

	var r result
	select {
	case r = <-received:
	case <-ctx.Done():
		t.Fatal("receiver did not see terminate")
	}
	require.NoError(t, r.err)
	_, payload, terminated := collected(t, r.frames)
	assert.True(t, terminated)
	assert.Equal(t, want, decodeLE[float64](t, payload))
}

func TestCaptureDeviceOpenFailure(t *testing.T) {
	conn := newFakeConn()
	drv := newFakeDriver()
	drv.openErr = errors.New("no microphone")

	c, err := NewCapture(CaptureConfig{Stream: monoF32}, drv, conn, nil)
	require.NoError(t, err)

	err = c.Run(context.Background())
	assert.ErrorIs(t, err, device.ErrDevice)
	assert.Empty(t, conn.frames(), "nothing is sent when the device cannot open")
	assert.True(t, conn.isClosed())
	assert.Equal(t, StateTerminated, c.State())
}

func TestCaptureConfigSendFailure(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = fmt.Errorf("%w: broken pipe", transport.ErrTransport)
	drv := newFakeDriver()

	c, err := NewCapture(CaptureConfig{Stream: monoF32}, drv, conn, nil)
	require.NoError(t, err)

	err = c.Run(context.Background())
	assert.ErrorIs(t, err, transport.ErrTransport)
	assert.False(t, drv.lastStream().started.Load())
	assert.True(t, drv.lastStream().closed.Load())
}

func TestCaptureSendFailureIsLoggedAndSkipped(t *testing.T) {
	conn := newFakeConn()
	drv := newFakeDriver()

	c, err := NewCapture(CaptureConfig{Stream: monoF32, DrainInterval: 5 * time.Millisecond}, drv, conn, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(func() error { return c.Run(ctx) })
	drv.waitStarted(t)

	conn.mu.Lock()
	conn.sendErr = fmt.Errorf("%w: timeout", transport.ErrTransport)
	conn.mu.Unlock()

	drv.capture(encodeLE[float32](0.25))
	waitFor(t, func() bool { return c.Stats().TransportErrors > 0 })

	conn.mu.Lock()
	conn.sendErr = nil
	conn.mu.Unlock()

	drv.capture(encodeLE[float32](0.5))
	waitFor(t, func() bool { return c.Stats().SamplesSent == 1 })
	cancel()
	require.NoError(t, waitRun(t, done))

	_, payload, terminated := collected(t, conn.frames())
	assert.True(t, terminated)
	assert.Equal(t, []float32{0.5}, decodeLE[float32](t, payload))
}

func TestCaptureEndsWhenPeerCloses(t *testing.T) {
	conn := newFakeConn()
	drv := newFakeDriver()

	c, err := NewCapture(CaptureConfig{Stream: monoF32, DrainInterval: 5 * time.Millisecond}, drv, conn, nil)
	require.NoError(t, err)

	done := runAsync(func() error { return c.Run(context.Background()) })
	drv.waitStarted(t)

	conn.mu.Lock()
	conn.sendErr = fmt.Errorf("%w: reset by peer", transport.ErrClosed)
	conn.mu.Unlock()
	drv.capture(encodeLE[float32](0.25))

	err = waitRun(t, done)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.True(t, drv.lastStream().closed.Load())
}

func TestCaptureRejectsBadConfig(t *testing.T) {
	_, err := NewCapture(CaptureConfig{Stream: protocol.Config{SampleFormat: 42, Channels: 1, SampleRate: 1, ByteOrder: audio.LittleEndian}}, newFakeDriver(), newFakeConn(), nil)
	assert.ErrorIs(t, err, protocol.ErrSchema)

	c, err := NewCapture(CaptureConfig{Stream: monoF32, Duration: time.Millisecond}, newFakeDriver(), newFakeConn(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.ErrorIs(t, c.Run(context.Background()), ErrAlreadyRun)
}
