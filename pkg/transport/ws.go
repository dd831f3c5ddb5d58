// ABOUTME: WebSocket transport
// ABOUTME: Frames carried in binary WebSocket messages at a fixed path
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
	"github.com/gorilla/websocket"
)

// Path is the HTTP path the WebSocket listener upgrades on
const Path = "/audiosock"

const closeDeadline = time.Second

var writeDeadline = 10 * time.Second

type wsConn struct {
	conn   *websocket.Conn
	remote string
	split  protocol.Splitter
	wmu    sync.Mutex
	closed atomic.Bool
	once   sync.Once
}

func newWSConn(c *websocket.Conn, remote string) *wsConn {
	return &wsConn{conn: c, remote: remote}
}

// wsURL accepts either host:port or a full ws:// URL
func wsURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	return u.String()
}

func dialWebSocket(ctx context.Context, addr string) (Conn, error) {
	target := wsURL(addr)
	c, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, target, err)
	}
	return newWSConn(c, c.RemoteAddr().String()), nil
}

func (c *wsConn) Send(frame []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		// gorilla leaves the connection unusable after a failed write
		c.Close()
		return fmt.Errorf("%w: write failed: %w", ErrClosed, err)
	}
	return nil
}

func (c *wsConn) MaxFrame() int {
	return protocol.LengthPrefixSize + protocol.MaxFrameSize
}

func (c *wsConn) Receive() ([]byte, error) {
	for {
		if c.closed.Load() {
			return nil, ErrClosed
		}

		frame, ok, err := c.split.Next()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: corrupt stream: %w", ErrClosed, err)
		}
		if ok {
			return frame, nil
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, c.classify(err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		c.split.Feed(data)
	}
}

func (c *wsConn) classify(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return classify(err)
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeDeadline))
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() string {
	return c.remote
}

type wsListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	conns    chan *wsConn
	done     chan struct{}
	once     sync.Once
}

func listenWebSocket(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrTransport, addr, err)
	}

	l := &wsListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			// peers are native processes; browsers are not expected here
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(chan *wsConn),
		done:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.handleWebSocket)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go l.srv.Serve(ln)

	return l, nil
}

func (l *wsListener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newWSConn(conn, r.RemoteAddr)
	select {
	case l.conns <- c:
	case <-l.done:
		c.Close()
	}
}

func (l *wsListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *wsListener) Addr() string {
	return l.ln.Addr().String()
}

// Close stops accepting; connections already accepted stay open
func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}
