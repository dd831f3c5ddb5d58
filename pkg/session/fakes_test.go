// ABOUTME: In-process fakes for session tests
// ABOUTME: A scripted transport connection and a callback-capturing device driver
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/Resonate-Protocol/audiosock/pkg/device"
	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	sent    [][]byte
	sendErr error

	// maxFrame limits a single Send like a datagram carrier; zero means unlimited
	maxFrame int
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) Send(frame []byte) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if len(frame) > c.MaxFrame() {
		return fmt.Errorf("%w: frame of %d bytes exceeds %d", transport.ErrTransport, len(frame), c.MaxFrame())
	}
	c.sent = append(c.sent, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return nil, transport.ErrClosed
		}
		return f, nil
	case <-c.closed:
		return nil, transport.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) MaxFrame() int {
	if c.maxFrame > 0 {
		return c.maxFrame
	}
	return protocol.LengthPrefixSize + protocol.MaxFrameSize
}

func (c *fakeConn) RemoteAddr() string { return "fake:0" }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeConn) deliver(t *testing.T, m protocol.Message) {
	t.Helper()
	frame, err := protocol.Encode(m)
	require.NoError(t, err)
	c.in <- frame
}

type fakeStream struct {
	format  audio.SampleFormat
	started atomic.Bool
	stopped atomic.Bool
	closed  atomic.Bool
	startCh chan struct{}
}

func (s *fakeStream) Format() audio.SampleFormat { return s.format }

func (s *fakeStream) Start() error {
	s.started.Store(true)
	close(s.startCh)
	return nil
}

func (s *fakeStream) Stop() error {
	s.stopped.Store(true)
	return nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeDriver struct {
	// native overrides the stream format; zero keeps the requested one
	native  audio.SampleFormat
	openErr error

	mu       sync.Mutex
	opened   int
	cfg      device.Config
	stream   *fakeStream
	capture  func(in []byte)
	playback func(out []byte)
	startCh  chan struct{}
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{startCh: make(chan struct{})}
}

func (d *fakeDriver) open(cfg device.Config) (*fakeStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened++
	if d.openErr != nil {
		return nil, d.openErr
	}
	format := cfg.Format
	if d.native != 0 {
		format = d.native
	}
	d.cfg = cfg
	d.stream = &fakeStream{format: format, startCh: d.startCh}
	return d.stream, nil
}

func (d *fakeDriver) OpenCapture(cfg device.Config, onData func(in []byte)) (device.Stream, error) {
	s, err := d.open(cfg)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.capture = onData
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDriver) OpenPlayback(cfg device.Config, onData func(out []byte)) (device.Stream, error) {
	s, err := d.open(cfg)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.playback = onData
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *fakeDriver) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-d.startCh:
	case <-time.After(2 * time.Second):
		t.Fatal("device was not started")
	}
}

func (d *fakeDriver) lastStream() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

// encodeLE writes samples in little-endian device layout
func encodeLE[T audio.Sample](samples ...T) []byte {
	return audio.CodecFor[T]().AppendSamples(nil, audio.LittleEndian, samples)
}

// decodeLE reads a little-endian device buffer
func decodeLE[T audio.Sample](t *testing.T, b []byte) []T {
	t.Helper()
	c := audio.CodecFor[T]()
	out := make([]T, len(b)/c.Width)
	_, err := c.ReadSamples(out, audio.LittleEndian, b)
	require.NoError(t, err)
	return out
}

type runResult struct {
	err error
}

func runAsync(run func() error) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() { ch <- runResult{run()} }()
	return ch
}

func waitRun(t *testing.T, ch <-chan runResult) error {
	t.Helper()
	select {
	case r := <-ch:
		return r.err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}
