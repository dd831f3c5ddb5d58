// ABOUTME: Tests for the device boundary
// ABOUTME: Covers config validation, driver lookup and native format selection
package device

import (
	"testing"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	good := Config{Format: audio.FormatF32, Channels: 2, SampleRate: 48000}
	require.NoError(t, good.Validate())
	assert.Equal(t, DefaultPeriodFrames, good.Period())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad format", Config{Format: 0, Channels: 1, SampleRate: 8000}},
		{"no channels", Config{Format: audio.FormatI16, SampleRate: 8000}},
		{"no rate", Config{Format: audio.FormatI16, Channels: 1}},
		{"negative period", Config{Format: audio.FormatI16, Channels: 1, SampleRate: 8000, PeriodFrames: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), ErrDevice)
		})
	}
}

func TestPeriodDuration(t *testing.T) {
	cfg := Config{Format: audio.FormatF32, Channels: 1, SampleRate: 8000, PeriodFrames: 160}
	assert.Equal(t, 20*time.Millisecond, cfg.PeriodDuration())
}

func TestOpenByName(t *testing.T) {
	d, err := Open("tone", Options{})
	require.NoError(t, err)
	assert.IsType(t, &Tone{}, d)

	d, err = Open("file", Options{Path: "x.wav"})
	require.NoError(t, err)
	assert.IsType(t, &File{}, d)

	d, err = Open("", Options{})
	require.NoError(t, err)
	assert.IsType(t, &Malgo{}, d)

	d, err = Open("oto", Options{})
	require.NoError(t, err)
	assert.IsType(t, &Oto{}, d)

	_, err = Open("file", Options{})
	assert.ErrorIs(t, err, ErrDevice)

	_, err = Open("jack", Options{})
	assert.ErrorIs(t, err, ErrDevice)
}

func TestMalgoFormatSelection(t *testing.T) {
	tests := []struct {
		in     audio.SampleFormat
		format malgo.FormatType
		native audio.SampleFormat
	}{
		{audio.FormatU8, malgo.FormatU8, audio.FormatU8},
		{audio.FormatI16, malgo.FormatS16, audio.FormatI16},
		{audio.FormatI32, malgo.FormatS32, audio.FormatI32},
		{audio.FormatF32, malgo.FormatF32, audio.FormatF32},
		{audio.FormatF64, malgo.FormatF32, audio.FormatF32},
		{audio.FormatI8, malgo.FormatF32, audio.FormatF32},
		{audio.FormatU64, malgo.FormatF32, audio.FormatF32},
	}
	for _, tt := range tests {
		format, native := malgoFormat(tt.in)
		assert.Equal(t, tt.format, format, tt.in.String())
		assert.Equal(t, tt.native, native, tt.in.String())
	}
}

func TestOtoFormatSelection(t *testing.T) {
	format, native := otoFormat(audio.FormatI16)
	assert.Equal(t, oto.FormatSignedInt16LE, format)
	assert.Equal(t, audio.FormatI16, native)

	format, native = otoFormat(audio.FormatU8)
	assert.Equal(t, oto.FormatUnsignedInt8, format)
	assert.Equal(t, audio.FormatU8, native)

	format, native = otoFormat(audio.FormatI32)
	assert.Equal(t, oto.FormatFloat32LE, format)
	assert.Equal(t, audio.FormatF32, native)

	_, err := NewOto().OpenCapture(Config{Format: audio.FormatF32, Channels: 1, SampleRate: 8000}, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPullReaderKeepsFrameAlignment(t *testing.T) {
	next := byte(0)
	r := &pullReader{
		frame: make([]byte, 4),
		onData: func(out []byte) {
			for i := range out {
				out[i] = next
				next++
			}
		},
	}

	var got []byte
	for _, size := range []int{3, 6, 1, 9, 5} {
		p := make([]byte, size)
		n, err := r.Read(p)
		require.NoError(t, err)
		require.Equal(t, size, n)
		got = append(got, p...)
	}

	for i, b := range got {
		assert.Equal(t, byte(i), b, "byte %d", i)
	}
}
