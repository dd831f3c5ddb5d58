// ABOUTME: play subcommand
// ABOUTME: Listens for one capture peer and plays its stream on an output device
package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/Resonate-Protocol/audiosock/internal/discovery"
	"github.com/Resonate-Protocol/audiosock/internal/ui"
	"github.com/Resonate-Protocol/audiosock/pkg/device"
	"github.com/Resonate-Protocol/audiosock/pkg/session"
	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPlayCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Accept one stream and play it on an output device",
		Example: `  audiosock play
  audiosock play --listen :8000 --mdns --tui
  audiosock play --device file --file received.wav --underflow hold`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.sync()
			return a.runPlay(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.String("transport", "tcp", "transport: tcp, ws or udp")
	f.String("listen", "127.0.0.1:8000", "listen address")
	f.Bool("mdns", false, "advertise this endpoint with mDNS")
	f.String("name", "", "mDNS instance name (default: <hostname>-audiosock)")
	f.String("device", "malgo", fmt.Sprintf("playback driver: %v", device.Names()))
	f.String("file", "", "output WAV for the file driver")
	f.Int("latency-ms", session.DefaultLatencyMs, "ring buffer latency; the ring holds twice this")
	f.Int("period-frames", 0, "device period in frames, 0 for the driver default")
	f.String("underflow", "silence", "underflow policy: silence or hold")
	f.Duration("handshake-timeout", session.DefaultHandshakeTimeout, "how long to wait for the stream config, negative waits forever")
	f.Duration("drain-interval", session.DefaultDrainInterval, "poll interval while buffered audio plays out")
	f.Bool("tui", false, "show a status screen; logs go only to --log-file")

	return cmd
}

func (a *app) runPlay(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := a.cfg
	kind, err := cfg.TransportKind()
	if err != nil {
		return err
	}

	drv, err := device.Open(cfg.Device, cfg.DeviceOptions())
	if err != nil {
		return err
	}
	defer drv.Close()

	ln, err := transport.Listen(ctx, kind, cfg.Listen)
	if err != nil {
		return err
	}
	defer ln.Close()
	a.log.Info("listening", zap.Stringer("transport", kind), zap.String("addr", ln.Addr()))

	if cfg.MDNS {
		if err := a.advertise(ctx, kind, ln.Addr()); err != nil {
			a.log.Warn("mDNS advertisement failed", zap.Error(err))
		}
	}

	return a.play(ctx, ln, drv)
}

func (a *app) advertise(ctx context.Context, kind transport.Kind, addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}

	name := a.cfg.Name
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		name = host + "-audiosock"
	}

	m := discovery.NewManager(discovery.Config{Name: name, Port: port, Transport: kind, Logger: a.log})
	if err := m.Advertise(); err != nil {
		return err
	}
	context.AfterFunc(ctx, m.Stop)
	return nil
}

// play accepts one peer on ln and plays its stream on drv
func (a *app) play(ctx context.Context, ln transport.Listener, drv device.Driver) error {
	pc, err := a.cfg.PlaybackConfig()
	if err != nil {
		return err
	}

	conn, err := ln.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	a.log.Info("peer connected", zap.String("peer", conn.RemoteAddr()))

	p, err := session.NewPlayback(pc, drv, conn, a.log)
	if err != nil {
		conn.Close()
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if a.cfg.TUI {
		model := ui.NewModel("play", p)
		prog := ui.Run(model)
		go func() {
			// quitting the TUI ends the session
			if _, err := prog.Run(); err != nil {
				a.log.Error("tui failed", zap.Error(err))
			}
			stop()
		}()
		prog.Send(ui.StatusMsg{Peer: conn.RemoteAddr()})
		defer prog.Quit()
	} else {
		go reportStats(runCtx, a.log, p, statsInterval)
	}

	return p.Run(runCtx)
}
