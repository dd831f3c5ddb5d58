// ABOUTME: Network transport abstraction
// ABOUTME: Frame-oriented connections over TCP, WebSocket and UDP
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrTransport wraps recoverable send and receive failures
	ErrTransport = errors.New("transport error")

	// ErrClosed means the channel is gone and no further frames will flow
	ErrClosed = errors.New("connection closed")

	// ErrUnknownKind is returned for a transport name that is not tcp, ws or udp
	ErrUnknownKind = errors.New("unknown transport kind")
)

// Kind selects the network carrier
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "ws"
	KindUDP       Kind = "udp"
)

func (k Kind) String() string { return string(k) }

// ParseKind parses a transport name from configuration
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindTCP, KindWebSocket, KindUDP:
		return k, nil
	case "websocket":
		return KindWebSocket, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Conn carries whole protocol frames in both directions.
// Send may be called concurrently with Receive; neither is safe to call
// from more than one goroutine at a time.
type Conn interface {
	// Send writes one encoded frame
	Send(frame []byte) error

	// Receive blocks until one whole frame arrives
	Receive() ([]byte, error)

	// Close releases the connection and unblocks a pending Receive
	Close() error

	// MaxFrame is the largest encoded frame, length prefix included, that
	// a single Send accepts
	MaxFrame() int

	RemoteAddr() string
}

// Listener accepts peer connections
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() string
	Close() error
}

// Dial connects to a listening peer
func Dial(ctx context.Context, kind Kind, addr string) (Conn, error) {
	switch kind {
	case KindTCP:
		return dialTCP(ctx, addr)
	case KindWebSocket:
		return dialWebSocket(ctx, addr)
	case KindUDP:
		return dialUDP(ctx, addr)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Listen binds addr and returns a listener for the given carrier
func Listen(ctx context.Context, kind Kind, addr string) (Listener, error) {
	switch kind {
	case KindTCP:
		return listenTCP(ctx, addr)
	case KindWebSocket:
		return listenWebSocket(ctx, addr)
	case KindUDP:
		return listenUDP(ctx, addr)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// classify maps a low-level I/O error onto ErrClosed or ErrTransport
func classify(err error) error {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// interruptOnCancel pushes a deadline into the past when ctx ends so a
// blocked accept or read returns. The returned stop waits for the watcher
// and clears the deadline.
func interruptOnCancel(ctx context.Context, setDeadline func(time.Time) error) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			setDeadline(time.Now())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		setDeadline(time.Time{})
	}
}
