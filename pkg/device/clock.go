// ABOUTME: Wall-clock driven stream
// ABOUTME: Runs a callback once per period for backends with no hardware clock
package device

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
)

// clockedStream calls tick with a period-sized buffer on a ticker.
// tick returning io.EOF ends the stream early.
type clockedStream struct {
	format audio.SampleFormat
	period time.Duration
	buf    []byte
	tick   func(buf []byte) error
	onEnd  func() error

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	closed  bool
	tickErr error
}

func newClockedStream(cfg Config, format audio.SampleFormat, tick func([]byte) error, onEnd func() error) *clockedStream {
	return &clockedStream{
		format: format,
		period: cfg.PeriodDuration(),
		buf:    make([]byte, cfg.Period()*cfg.Channels*format.Width()),
		tick:   tick,
		onEnd:  onEnd,
	}
}

func (s *clockedStream) Format() audio.SampleFormat { return s.format }

func (s *clockedStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: stream closed", ErrDevice)
	}
	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	return nil
}

func (s *clockedStream) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.tick(s.buf); err != nil {
				if !errors.Is(err, io.EOF) {
					s.mu.Lock()
					s.tickErr = err
					s.mu.Unlock()
				}
				return
			}
		}
	}
}

func (s *clockedStream) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickErr
}

func (s *clockedStream) Close() error {
	err := s.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return err
	}
	s.closed = true
	s.mu.Unlock()

	if s.onEnd != nil {
		if endErr := s.onEnd(); endErr != nil && err == nil {
			err = endErr
		}
	}
	return err
}
