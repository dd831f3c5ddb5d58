// ABOUTME: Tests for the command-line interface
// ABOUTME: Version output, flag to config binding and a capture to play run over loopback TCP
package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audiosock/internal/config"
	"github.com/Resonate-Protocol/audiosock/internal/version"
	"github.com/Resonate-Protocol/audiosock/pkg/device"
	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, version.String()+"\n", out.String())
}

func findCommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	cmd, _, err := root.Find([]string{name})
	require.NoError(t, err)
	return cmd
}

func TestFlagsOverrideConfig(t *testing.T) {
	a := &app{v: config.New()}
	root := &cobra.Command{Use: "audiosock"}
	root.PersistentFlags().String("log-level", "info", "")
	root.PersistentFlags().String("log-file", "", "")
	root.AddCommand(newCaptureCommand(a))

	cmd := findCommand(t, root, "capture")
	require.NoError(t, cmd.ParseFlags([]string{
		"--format", "i16",
		"--channels", "2",
		"--rate", "48000",
		"--byte-order", "big",
		"--duration", "1s",
		"--transport", "ws",
		"--log-level", "warn",
	}))
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, a.load(cmd))

	stream, err := a.cfg.Stream()
	require.NoError(t, err)
	assert.Equal(t, "i16/2ch/48000Hz/big", stream.String())
	assert.Equal(t, time.Second, a.cfg.Duration)
	assert.Equal(t, "ws", a.cfg.Transport)
	assert.Equal(t, "warn", a.cfg.Log.Level)
	// untouched flags keep the configured defaults
	assert.Equal(t, "127.0.0.1:8000", a.cfg.Addr)
}

func TestInvalidFlagIsRejected(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"capture", "--format", "f16"})

	err := root.Execute()
	assert.ErrorContains(t, err, "invalid configuration")
}

// A tone captured by one app instance arrives in the WAV recorded by another
func TestCaptureToPlayOverTCP(t *testing.T) {
	out := filepath.Join(t.TempDir(), "received.wav")

	base := config.Config{
		Transport:        "tcp",
		Format:           "f32",
		Channels:         1,
		SampleRate:       8000,
		ByteOrder:        "big",
		LatencyMs:        100,
		PeriodFrames:     160,
		DrainInterval:    10 * time.Millisecond,
		Duration:         300 * time.Millisecond,
		Underflow:        "silence",
		HandshakeTimeout: 2 * time.Second,
	}
	require.NoError(t, base.Validate())

	player := &app{cfg: &base, log: zap.NewNop()}
	capturer := &app{cfg: &base, log: zap.NewNop()}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := transport.Listen(ctx, transport.KindTCP, "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	played := make(chan error, 1)
	go func() { played <- player.play(ctx, ln, device.NewFile(out, false)) }()

	conn, err := transport.Dial(ctx, transport.KindTCP, ln.Addr())
	require.NoError(t, err)
	require.NoError(t, capturer.capture(ctx, conn, device.NewTone(1000)))

	select {
	case err := <-played:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("play did not finish")
	}

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, 8000, buf.Format.SampleRate)

	peak := 0
	for _, v := range buf.Data {
		peak = max(peak, v, -v)
	}
	// the tone has amplitude 0.5
	assert.InDelta(t, 16384, peak, 400)
}
