// ABOUTME: Tests for logger construction
// ABOUTME: Checks level parsing, console output and the rotated JSON file
package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Console: &buf})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", zap.Int("channels", 2))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "channels")
}

func TestFileGetsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audiosock.log")
	log, err := New(Options{File: path, Quiet: true})
	require.NoError(t, err)

	log.Info("stream negotiated", zap.String("stream", "f32/1ch/44100Hz/little"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "stream negotiated", entry["msg"])
	assert.Equal(t, "f32/1ch/44100Hz/little", entry["stream"])
	assert.Equal(t, "info", entry["level"])
}

func TestQuietWithoutFileIsNop(t *testing.T) {
	log, err := New(Options{Quiet: true})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.ErrorLevel))
}
