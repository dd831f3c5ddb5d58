// ABOUTME: Tests for the frame codec
// ABOUTME: Tests byte layout, malformed input and stream reads
package protocol

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeConfigLayout(t *testing.T) {
	frame, err := EncodeConfig(Config{
		SampleFormat: audio.FormatF32,
		Channels:     1,
		SampleRate:   44100,
		ByteOrder:    audio.LittleEndian,
	})
	require.NoError(t, err)

	expected := []byte{
		0x00, 0x00, 0x00, 0x09, // body length
		0x01,       // config
		0x09,       // f32
		0x01,       // little
		0x00, 0x01, // channels
		0x00, 0x00, 0xac, 0x44, // 44100
	}
	assert.Equal(t, expected, frame)
}

func TestDataRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data Data
	}{
		{"payload", Data{Payload: []byte{0, 0, 0x80, 0x3f, 0, 0, 0x80, 0xbf}}},
		{"empty payload", Data{}},
		{"terminate", Terminate()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeData(tt.data)
			require.NoError(t, err)

			decoded, err := DecodeData(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.data, decoded)

			generic, err := Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.data, generic)
		})
	}
}

func TestAppendDataReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	frame, err := AppendData(buf, Data{Payload: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 5, 0x02, 0x00, 1, 2, 3}, frame)
}

func TestEncodeRejectsTerminateWithPayload(t *testing.T) {
	_, err := EncodeData(Data{Terminate: true, Payload: []byte{1}})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestDecodeMalformed(t *testing.T) {
	configFrame, err := EncodeConfig(Config{SampleFormat: audio.FormatI16, Channels: 2, SampleRate: 48000, ByteOrder: audio.BigEndian})
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame []byte
	}{
		{"nil", nil},
		{"prefix only", []byte{0, 0, 0, 1}},
		{"truncated config", configFrame[:len(configFrame)-1]},
		{"length mismatch", []byte{0, 0, 0, 9, 0x02, 0x00}},
		{"unknown kind", []byte{0, 0, 0, 1, 0x7f}},
		{"data without flags", []byte{0, 0, 0, 1, 0x02}},
		{"unknown flags", []byte{0, 0, 0, 2, 0x02, 0x80}},
		{"terminate with payload", []byte{0, 0, 0, 3, 0x02, 0x01, 0xff}},
		{"config with unknown format", []byte{0, 0, 0, 9, 0x01, 0x63, 0x01, 0, 1, 0, 0, 0xac, 0x44}},
		{"config with zero channels", []byte{0, 0, 0, 9, 0x01, 0x09, 0x01, 0, 0, 0, 0, 0xac, 0x44}},
		{"oversized prefix", []byte{0xff, 0xff, 0xff, 0xff, 0x02, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			assert.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestDecodeWrongKind(t *testing.T) {
	dataFrame, err := EncodeData(Data{Payload: []byte{1}})
	require.NoError(t, err)
	_, err = DecodeConfig(dataFrame)
	assert.ErrorIs(t, err, ErrSchema)

	kind, err := PeekKind(dataFrame)
	require.NoError(t, err)
	assert.Equal(t, KindData, kind)

	configFrame, err := EncodeConfig(Config{SampleFormat: audio.FormatU8, Channels: 1, SampleRate: 8000, ByteOrder: audio.LittleEndian})
	require.NoError(t, err)
	_, err = DecodeData(configFrame)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestReadFrameSplitAndCoalesced(t *testing.T) {
	first, err := EncodeData(Data{Payload: []byte{1, 2, 3, 4}})
	require.NoError(t, err)
	second, err := EncodeData(Terminate())
	require.NoError(t, err)

	stream := append(append([]byte{}, first...), second...)

	// one byte per read forces every frame to be assembled from pieces
	r := iotest.OneByteReader(bytes.NewReader(stream))

	got1, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, first, got1)

	got2, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, second, got2)

	_, err = ReadFrame(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameTruncated(t *testing.T) {
	frame, err := EncodeData(Data{Payload: []byte{1, 2, 3, 4}})
	require.NoError(t, err)

	_, err = ReadFrame(bytes.NewReader(frame[:6]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrSchema)

	_, err = ReadFrame(bytes.NewReader([]byte{0x7f, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
