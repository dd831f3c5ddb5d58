// ABOUTME: capture subcommand
// ABOUTME: Dials a playback peer and streams an input device to it
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/Resonate-Protocol/audiosock/internal/discovery"
	"github.com/Resonate-Protocol/audiosock/pkg/device"
	"github.com/Resonate-Protocol/audiosock/pkg/session"
	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const discoveryTimeout = 10 * time.Second

func newCaptureCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture from an input device and stream to a peer",
		Example: `  audiosock capture --addr 192.168.1.20:8000
  audiosock capture --device tone --format i16 --channels 2 --rate 48000 --duration 10s
  audiosock capture --device file --file song.flac --transport ws --duration 0`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.sync()
			return a.runCapture(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.String("transport", "tcp", "transport: tcp, ws or udp")
	f.String("addr", "127.0.0.1:8000", "peer address (host:port, or ws:// URL)")
	f.Bool("mdns", false, "find the peer with mDNS instead of --addr")
	f.String("device", "malgo", fmt.Sprintf("capture driver: %v", device.Names()))
	f.String("file", "", "input file for the file driver (mp3, flac, wav)")
	f.Bool("loop", false, "restart the input file at its end")
	f.Float64("tone-frequency", device.DefaultToneFrequency, "tone driver frequency in Hz")
	f.String("format", "f32", "sample format: i8 i16 i32 i64 u8 u16 u32 u64 f32 f64")
	f.Int("channels", 1, "channel count")
	f.Int("rate", 44100, "sample rate in Hz")
	f.String("byte-order", "little", "payload byte order: little or big")
	f.Int("latency-ms", session.DefaultLatencyMs, "ring buffer latency; the ring holds twice this")
	f.Int("period-frames", 0, "device period in frames, 0 for the driver default")
	f.Duration("drain-interval", session.DefaultDrainInterval, "how often captured samples are sent")
	f.Duration("duration", 4*time.Second, "stop after this long, 0 to run until interrupted")

	return cmd
}

func (a *app) runCapture(ctx context.Context) error {
	cfg := a.cfg
	kind, err := cfg.TransportKind()
	if err != nil {
		return err
	}

	addr := cfg.Addr
	if cfg.MDNS {
		findCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
		peer, err := discovery.Find(findCtx, a.log)
		cancel()
		if err != nil {
			return err
		}
		kind, addr = peer.Transport, peer.Addr()
	}

	drv, err := device.Open(cfg.Device, cfg.DeviceOptions())
	if err != nil {
		return err
	}
	defer drv.Close()

	a.log.Info("connecting", zap.Stringer("transport", kind), zap.String("addr", addr))
	conn, err := transport.Dial(ctx, kind, addr)
	if err != nil {
		return err
	}

	return a.capture(ctx, conn, drv)
}

// capture streams drv to an established connection; conn is closed on return
func (a *app) capture(ctx context.Context, conn transport.Conn, drv device.Driver) error {
	sc, err := a.cfg.CaptureConfig()
	if err != nil {
		conn.Close()
		return err
	}

	c, err := session.NewCapture(sc, drv, conn, a.log)
	if err != nil {
		conn.Close()
		return err
	}

	statsCtx, stop := context.WithCancel(ctx)
	defer stop()
	go reportStats(statsCtx, a.log, c, statsInterval)

	return c.Run(ctx)
}
