// ABOUTME: Ring buffer package documentation
// ABOUTME: Describes the SPSC contract and overflow policy
// Package ringbuf provides the bounded queue that decouples a real-time
// audio callback from the network goroutine.
//
// A RingBuffer has exactly one Producer and one Consumer, each of which may
// live on a different goroutine or OS thread. Neither side blocks, allocates
// or locks. On overflow the newest element is dropped and counted; on
// underflow Pop reports false and the caller applies its own policy.
//
// Example:
//
//	rb := ringbuf.New[float32](88200)
//	producer, consumer := rb.Split()
//	producer.Push(0.5)
//	v, ok := consumer.Pop()
package ringbuf
