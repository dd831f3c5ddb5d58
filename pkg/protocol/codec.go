// ABOUTME: Binary frame codec for Config and Data messages
// ABOUTME: Length-prefixed frames so byte streams can be split into whole messages
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
)

const (
	// LengthPrefixSize is the size of the big-endian body length in front of every frame
	LengthPrefixSize = 4

	// ConfigBodySize is kind + format + order + channels(2) + rate(4)
	ConfigBodySize = 1 + 1 + 1 + 2 + 4

	// DataHeaderSize is kind + flags
	DataHeaderSize = 1 + 1

	// MaxFrameSize bounds a single body so a corrupt prefix cannot exhaust memory
	MaxFrameSize = 16 << 20

	flagTerminate = 0x01
)

var (
	// ErrSchema is returned for malformed or truncated messages
	ErrSchema = errors.New("schema error")

	// ErrFrameTooLarge is returned when a length prefix exceeds MaxFrameSize
	ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds %d bytes", ErrSchema, MaxFrameSize)
)

// EncodeConfig encodes c as one frame
func EncodeConfig(c Config) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	frame := make([]byte, LengthPrefixSize+ConfigBodySize)
	binary.BigEndian.PutUint32(frame[0:4], ConfigBodySize)
	frame[4] = byte(KindConfig)
	frame[5] = byte(c.SampleFormat)
	frame[6] = byte(c.ByteOrder)
	binary.BigEndian.PutUint16(frame[7:9], c.Channels)
	binary.BigEndian.PutUint32(frame[9:13], c.SampleRate)
	return frame, nil
}

// EncodeData encodes d as one frame
func EncodeData(d Data) ([]byte, error) {
	return AppendData(nil, d)
}

// AppendData appends the frame for d to dst so callers can reuse a buffer
func AppendData(dst []byte, d Data) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return dst, err
	}
	bodyLen := DataHeaderSize + len(d.Payload)
	if bodyLen > MaxFrameSize {
		return dst, ErrFrameTooLarge
	}

	var flags byte
	if d.Terminate {
		flags |= flagTerminate
	}

	dst = binary.BigEndian.AppendUint32(dst, uint32(bodyLen))
	dst = append(dst, byte(KindData), flags)
	dst = append(dst, d.Payload...)
	return dst, nil
}

// Encode encodes a Config or Data
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Config:
		return EncodeConfig(v)
	case Data:
		return EncodeData(v)
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrSchema, m)
	}
}

// body strips and checks the length prefix of a single frame
func body(frame []byte) ([]byte, error) {
	if len(frame) < LengthPrefixSize+1 {
		return nil, fmt.Errorf("%w: truncated frame (%d bytes)", ErrSchema, len(frame))
	}
	n := binary.BigEndian.Uint32(frame[0:LengthPrefixSize])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if got := len(frame) - LengthPrefixSize; uint32(got) != n {
		return nil, fmt.Errorf("%w: length prefix says %d bytes, frame holds %d", ErrSchema, n, got)
	}
	return frame[LengthPrefixSize:], nil
}

// PeekKind returns the kind of a frame without decoding it
func PeekKind(frame []byte) (Kind, error) {
	b, err := body(frame)
	if err != nil {
		return 0, err
	}
	return Kind(b[0]), nil
}

// DecodeConfig decodes a frame holding a Config
func DecodeConfig(frame []byte) (Config, error) {
	b, err := body(frame)
	if err != nil {
		return Config{}, err
	}
	if Kind(b[0]) != KindConfig {
		return Config{}, fmt.Errorf("%w: expected %v message, got %v", ErrSchema, KindConfig, Kind(b[0]))
	}
	if len(b) != ConfigBodySize {
		return Config{}, fmt.Errorf("%w: config body is %d bytes, want %d", ErrSchema, len(b), ConfigBodySize)
	}

	c := Config{
		SampleFormat: audio.SampleFormat(b[1]),
		ByteOrder:    audio.ByteOrder(b[2]),
		Channels:     binary.BigEndian.Uint16(b[3:5]),
		SampleRate:   binary.BigEndian.Uint32(b[5:9]),
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// DecodeData decodes a frame holding a Data message. The payload aliases frame.
func DecodeData(frame []byte) (Data, error) {
	b, err := body(frame)
	if err != nil {
		return Data{}, err
	}
	if Kind(b[0]) != KindData {
		return Data{}, fmt.Errorf("%w: expected %v message, got %v", ErrSchema, KindData, Kind(b[0]))
	}
	if len(b) < DataHeaderSize {
		return Data{}, fmt.Errorf("%w: data body missing flags", ErrSchema)
	}

	flags := b[1]
	if flags&^flagTerminate != 0 {
		return Data{}, fmt.Errorf("%w: unknown data flags %#02x", ErrSchema, flags)
	}

	d := Data{Terminate: flags&flagTerminate != 0}
	if payload := b[DataHeaderSize:]; len(payload) > 0 {
		d.Payload = payload
	}
	if err := d.Validate(); err != nil {
		return Data{}, err
	}
	return d, nil
}

// Decode decodes either message kind
func Decode(frame []byte) (Message, error) {
	kind, err := PeekKind(frame)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindConfig:
		return DecodeConfig(frame)
	case KindData:
		return DecodeData(frame)
	default:
		return nil, fmt.Errorf("%w: unknown message kind %v", ErrSchema, kind)
	}
}

// ReadFrame reads exactly one frame from a byte stream. Reads that return
// part of a frame are completed; bytes past the frame stay in r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrSchema)
	}
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, LengthPrefixSize+int(n))
	copy(frame, prefix[:])
	if _, err := io.ReadFull(r, frame[LengthPrefixSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}
