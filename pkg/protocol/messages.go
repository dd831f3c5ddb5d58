// ABOUTME: Wire message type definitions
// ABOUTME: Defines the Config handshake and Data messages
package protocol

import (
	"fmt"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
)

// Kind identifies a message body
type Kind uint8

const (
	KindConfig Kind = 0x01
	KindData   Kind = 0x02
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Message is implemented by Config and Data
type Message interface {
	Kind() Kind
}

// Config is sent exactly once, first, by the sending peer. It fixes the
// sample type, stream shape and payload byte order for the whole session.
type Config struct {
	SampleFormat audio.SampleFormat
	Channels     uint16
	SampleRate   uint32
	ByteOrder    audio.ByteOrder
}

// Kind returns KindConfig
func (Config) Kind() Kind { return KindConfig }

// Validate checks that every field holds a usable value
func (c Config) Validate() error {
	if !c.SampleFormat.Valid() {
		return fmt.Errorf("%w: %w: tag %d", ErrSchema, audio.ErrUnknownFormat, uint8(c.SampleFormat))
	}
	if !c.ByteOrder.Valid() {
		return fmt.Errorf("%w: %w: tag %d", ErrSchema, audio.ErrUnknownByteOrder, uint8(c.ByteOrder))
	}
	if c.Channels == 0 {
		return fmt.Errorf("%w: channel count must be positive", ErrSchema)
	}
	if c.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrSchema)
	}
	return nil
}

// FrameSamples returns the number of samples in one multi-channel frame
func (c Config) FrameSamples() int {
	return int(c.Channels)
}

// FrameBytes returns the payload size of one multi-channel frame
func (c Config) FrameBytes() int {
	return int(c.Channels) * c.SampleFormat.Width()
}

func (c Config) String() string {
	return fmt.Sprintf("%v/%dch/%dHz/%v", c.SampleFormat, c.Channels, c.SampleRate, c.ByteOrder)
}

// Data carries one buffer of encoded samples, or the end-of-session marker
type Data struct {
	// Terminate marks orderly session end; it never carries a payload
	Terminate bool

	// Payload holds samples in the byte order declared by Config
	Payload []byte
}

// Kind returns KindData
func (Data) Kind() Kind { return KindData }

// Validate rejects a terminate message that carries samples
func (d Data) Validate() error {
	if d.Terminate && len(d.Payload) > 0 {
		return fmt.Errorf("%w: terminate message carries %d payload bytes", ErrSchema, len(d.Payload))
	}
	return nil
}

// Terminate returns the end-of-session marker
func Terminate() Data {
	return Data{Terminate: true}
}
