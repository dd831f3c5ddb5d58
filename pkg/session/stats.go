// ABOUTME: Session counters
// ABOUTME: Lock-free counters updated from the audio callback and the I/O loop
package session

import "sync/atomic"

// Stats is a snapshot of session counters. Sample counts are individual
// channel samples, not multi-channel frames.
type Stats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64

	// SamplesCaptured were accepted into the ring by the capture callback
	SamplesCaptured uint64
	SamplesSent     uint64
	SamplesReceived uint64

	// SamplesPlayed were taken from the ring by the playback callback
	SamplesPlayed uint64

	// Overflows counts samples dropped because the ring was full
	Overflows uint64

	// Underflows counts samples the playback callback filled by policy
	Underflows uint64

	SchemaErrors    uint64
	TransportErrors uint64
}

type counters struct {
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	samplesCaptured  atomic.Uint64
	samplesSent      atomic.Uint64
	samplesReceived  atomic.Uint64
	samplesPlayed    atomic.Uint64
	overflows        atomic.Uint64
	underflows       atomic.Uint64
	schemaErrors     atomic.Uint64
	transportErrors  atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		BytesSent:        c.bytesSent.Load(),
		BytesReceived:    c.bytesReceived.Load(),
		SamplesCaptured:  c.samplesCaptured.Load(),
		SamplesSent:      c.samplesSent.Load(),
		SamplesReceived:  c.samplesReceived.Load(),
		SamplesPlayed:    c.samplesPlayed.Load(),
		Overflows:        c.overflows.Load(),
		Underflows:       c.underflows.Load(),
		SchemaErrors:     c.schemaErrors.Load(),
		TransportErrors:  c.transportErrors.Load(),
	}
}
