// ABOUTME: Single-producer single-consumer ring buffer
// ABOUTME: Lock-free, allocation-free hand-off between the audio callback and the I/O goroutine
package ringbuf

import (
	"fmt"
	"sync/atomic"
)

// cacheLinePad keeps the producer and consumer indices on separate cache lines
type cacheLinePad [64]byte

// RingBuffer is a fixed-capacity circular queue with exactly one producer
// and one consumer. Push and Pop never block, never allocate and take no
// locks. The producer only stores tail, the consumer only stores head.
type RingBuffer[T any] struct {
	buf []T
	cap uint64

	_    cacheLinePad
	head atomic.Uint64 // next slot to read, written by the consumer
	_    cacheLinePad
	tail atomic.Uint64 // next slot to write, written by the producer
	_    cacheLinePad

	dropped atomic.Uint64
	split   atomic.Bool
}

// Producer is the write half of a RingBuffer
type Producer[T any] struct {
	rb *RingBuffer[T]
}

// Consumer is the read half of a RingBuffer
type Consumer[T any] struct {
	rb *RingBuffer[T]
}

// New creates a ring buffer holding capacity elements. The capacity never changes.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("ringbuf: capacity must be positive, got %d", capacity))
	}
	return &RingBuffer[T]{
		buf: make([]T, capacity),
		cap: uint64(capacity),
	}
}

// Split returns the only producer and consumer handles. It panics when called twice.
func (r *RingBuffer[T]) Split() (*Producer[T], *Consumer[T]) {
	if !r.split.CompareAndSwap(false, true) {
		panic("ringbuf: Split called more than once")
	}
	return &Producer[T]{rb: r}, &Consumer[T]{rb: r}
}

// Cap returns the fixed capacity
func (r *RingBuffer[T]) Cap() int {
	return int(r.cap)
}

// Len returns the number of buffered elements. It is exact only when called
// from the producer or consumer; elsewhere it is a snapshot.
func (r *RingBuffer[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Dropped returns how many pushes were rejected because the buffer was full
func (r *RingBuffer[T]) Dropped() uint64 {
	return r.dropped.Load()
}

// Push appends v. When the buffer is full v is dropped, prior contents are
// untouched and false is returned.
func (p *Producer[T]) Push(v T) bool {
	r := p.rb
	tail := r.tail.Load()
	if tail-r.head.Load() == r.cap {
		r.dropped.Add(1)
		return false
	}
	r.buf[tail%r.cap] = v
	r.tail.Store(tail + 1)
	return true
}

// PushSlice appends as many of vs as fit and returns how many were written.
// The remainder is dropped and counted.
func (p *Producer[T]) PushSlice(vs []T) int {
	r := p.rb
	tail := r.tail.Load()
	free := r.cap - (tail - r.head.Load())
	n := uint64(len(vs))
	if n > free {
		r.dropped.Add(n - free)
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(tail+i)%r.cap] = vs[i]
	}
	r.tail.Store(tail + n)
	return int(n)
}

// Free returns the number of empty slots as seen by the producer
func (p *Producer[T]) Free() int {
	r := p.rb
	return int(r.cap - (r.tail.Load() - r.head.Load()))
}

// Pop removes the oldest element. ok is false when the buffer is empty.
func (c *Consumer[T]) Pop() (v T, ok bool) {
	r := c.rb
	head := r.head.Load()
	if head == r.tail.Load() {
		return v, false
	}
	v = r.buf[head%r.cap]
	r.head.Store(head + 1)
	return v, true
}

// PopSlice moves up to len(dst) elements into dst in FIFO order and returns the count
func (c *Consumer[T]) PopSlice(dst []T) int {
	r := c.rb
	head := r.head.Load()
	avail := r.tail.Load() - head
	n := uint64(len(dst))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buf[(head+i)%r.cap]
	}
	r.head.Store(head + n)
	return int(n)
}

// Len returns the number of elements available to the consumer
func (c *Consumer[T]) Len() int {
	return c.rb.Len()
}
