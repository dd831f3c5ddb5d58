// ABOUTME: UDP transport
// ABOUTME: Best-effort datagrams, each holding one or more whole frames
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
)

// MaxDatagramSize is the largest frame batch a UDP send can carry
const MaxDatagramSize = 65507

// udpConn is either a connected client socket (peer nil) or the listener's
// socket bound to the first peer that wrote to it.
type udpConn struct {
	pc     *net.UDPConn
	peer   *net.UDPAddr
	split  protocol.Splitter
	buf    []byte
	closed atomic.Bool
	once   sync.Once
}

func newUDPConn(pc *net.UDPConn, peer *net.UDPAddr) *udpConn {
	return &udpConn{pc: pc, peer: peer, buf: make([]byte, MaxDatagramSize)}
}

func dialUDP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
	}
	return newUDPConn(c.(*net.UDPConn), nil), nil
}

func (c *udpConn) Send(frame []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(frame) > MaxDatagramSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds datagram limit", ErrTransport, len(frame))
	}

	var err error
	if c.peer != nil {
		_, err = c.pc.WriteToUDP(frame, c.peer)
	} else {
		_, err = c.pc.Write(frame)
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

// Receive returns the next frame. A datagram that ends inside a frame is
// dropped whole; the next datagram starts clean.
func (c *udpConn) Receive() ([]byte, error) {
	for {
		if c.closed.Load() {
			return nil, ErrClosed
		}

		frame, ok, err := c.split.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		if ok {
			return frame, nil
		}
		if n := c.split.Buffered(); n > 0 {
			c.split.Reset()
			return nil, fmt.Errorf("%w: %w: datagram ends inside a frame, %d bytes dropped", ErrTransport, protocol.ErrSchema, n)
		}

		n, err := c.read()
		if err != nil {
			return nil, classify(err)
		}
		c.split.Feed(c.buf[:n])
	}
}

func (c *udpConn) read() (int, error) {
	if c.peer == nil {
		return c.pc.Read(c.buf)
	}
	for {
		n, from, err := c.pc.ReadFromUDP(c.buf)
		if err != nil {
			return 0, err
		}
		if from.IP.Equal(c.peer.IP) && from.Port == c.peer.Port {
			return n, nil
		}
	}
}

func (c *udpConn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		err = c.pc.Close()
	})
	return err
}

func (c *udpConn) MaxFrame() int {
	return MaxDatagramSize
}

func (c *udpConn) RemoteAddr() string {
	if c.peer != nil {
		return c.peer.String()
	}
	if ra := c.pc.RemoteAddr(); ra != nil {
		return ra.String()
	}
	return ""
}

// udpListener hands its socket to the first peer that sends a datagram.
// It serves exactly one session.
type udpListener struct {
	pc       *net.UDPConn
	accepted atomic.Bool
}

func listenUDP(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrTransport, addr, err)
	}
	return &udpListener{pc: pc.(*net.UDPConn)}, nil
}

func (l *udpListener) Accept(ctx context.Context) (Conn, error) {
	if l.accepted.Load() {
		return nil, fmt.Errorf("%w: udp listener already bound to a peer", ErrTransport)
	}
	c := newUDPConn(l.pc, nil)
	stop := interruptOnCancel(ctx, l.pc.SetReadDeadline)
	n, from, err := l.pc.ReadFromUDP(c.buf)
	stop()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(err)
	}

	l.accepted.Store(true)
	c.peer = from
	c.split.Feed(c.buf[:n])
	return c, nil
}

func (l *udpListener) Addr() string {
	return l.pc.LocalAddr().String()
}

// Close releases the socket unless an accepted connection owns it
func (l *udpListener) Close() error {
	if l.accepted.Load() {
		return nil
	}
	err := l.pc.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
