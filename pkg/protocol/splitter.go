// ABOUTME: Frame splitter for chunked input
// ABOUTME: Reassembles whole frames from partial or coalesced byte ranges
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Splitter accumulates received bytes and yields whole frames. Use it where
// one receive may return part of a frame or several frames at once.
type Splitter struct {
	buf []byte
}

// Feed appends received bytes
func (s *Splitter) Feed(b []byte) {
	s.buf = append(s.buf, b...)
}

// Buffered returns the number of bytes waiting for a complete frame
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// Next returns the next whole frame. ok is false when more input is needed.
// After an error the splitter holds no data; the stream cannot be resynchronised.
func (s *Splitter) Next() (frame []byte, ok bool, err error) {
	if len(s.buf) < LengthPrefixSize {
		return nil, false, nil
	}

	n := binary.BigEndian.Uint32(s.buf[:LengthPrefixSize])
	if n == 0 {
		s.Reset()
		return nil, false, fmt.Errorf("%w: empty frame", ErrSchema)
	}
	if n > MaxFrameSize {
		s.Reset()
		return nil, false, ErrFrameTooLarge
	}

	total := LengthPrefixSize + int(n)
	if len(s.buf) < total {
		return nil, false, nil
	}

	frame = make([]byte, total)
	copy(frame, s.buf[:total])

	rest := copy(s.buf, s.buf[total:])
	s.buf = s.buf[:rest]
	return frame, true, nil
}

// Reset discards buffered bytes
func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
}
