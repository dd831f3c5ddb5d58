// ABOUTME: TCP transport
// ABOUTME: Length-prefixed frames over a byte stream
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
)

type tcpConn struct {
	conn   net.Conn
	r      *bufio.Reader
	wmu    sync.Mutex
	closed atomic.Bool
	once   sync.Once
}

func newTCPConn(c net.Conn) *tcpConn {
	return &tcpConn{conn: c, r: bufio.NewReaderSize(c, 64<<10)}
}

func dialTCP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
	}
	return newTCPConn(c), nil
}

func (c *tcpConn) Send(frame []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if _, err := c.conn.Write(frame); err != nil {
		// part of the frame may be on the wire and the peer cannot resync
		c.Close()
		return fmt.Errorf("%w: write failed: %w", ErrClosed, err)
	}
	return nil
}

func (c *tcpConn) MaxFrame() int {
	return protocol.LengthPrefixSize + protocol.MaxFrameSize
}

func (c *tcpConn) Receive() ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	frame, err := protocol.ReadFrame(c.r)
	if err != nil {
		if errors.Is(err, protocol.ErrSchema) {
			// a bad length prefix leaves no way to find the next frame
			c.Close()
			return nil, fmt.Errorf("%w: corrupt stream: %w", ErrClosed, err)
		}
		return nil, classify(err)
	}
	return frame, nil
}

func (c *tcpConn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

type tcpListener struct {
	ln *net.TCPListener
}

func listenTCP(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrTransport, addr, err)
	}
	return &tcpListener{ln: ln.(*net.TCPListener)}, nil
}

func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	stop := interruptOnCancel(ctx, l.ln.SetDeadline)
	c, err := l.ln.Accept()
	stop()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(err)
	}
	return newTCPConn(c), nil
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}
