// ABOUTME: Command-line interface for audiosock
// ABOUTME: Cobra root command that loads configuration and builds the logger
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/Resonate-Protocol/audiosock/internal/config"
	"github.com/Resonate-Protocol/audiosock/internal/logging"
	"github.com/Resonate-Protocol/audiosock/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const statsInterval = 5 * time.Second

type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	log     *zap.Logger
}

// NewRootCommand builds the audiosock command tree
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "audiosock",
		Short:         "Stream raw audio between a device and a network socket",
		Long:          "audiosock captures from an audio device and streams the samples to a peer, or receives a stream and plays it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./audiosock.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-file", "", "also write JSON logs to this file, rotated")

	root.AddCommand(newCaptureCommand(a))
	root.AddCommand(newPlayCommand(a))
	root.AddCommand(newVersionCommand())

	return root
}

// Execute runs the root command with ctx
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// flagKeys maps command-line flags to config keys
var flagKeys = map[string]string{
	"log-level":         config.KeyLogLevel,
	"log-file":          config.KeyLogFile,
	"transport":         config.KeyTransport,
	"addr":              config.KeyAddr,
	"listen":            config.KeyListen,
	"device":            config.KeyDevice,
	"file":              config.KeyDeviceFile,
	"loop":              config.KeyLoop,
	"tone-frequency":    config.KeyToneFrequency,
	"format":            config.KeyFormat,
	"channels":          config.KeyChannels,
	"rate":              config.KeySampleRate,
	"byte-order":        config.KeyByteOrder,
	"latency-ms":        config.KeyLatencyMs,
	"period-frames":     config.KeyPeriodFrames,
	"drain-interval":    config.KeyDrainInterval,
	"duration":          config.KeyDuration,
	"underflow":         config.KeyUnderflow,
	"handshake-timeout": config.KeyHandshakeTimeout,
	"mdns":              config.KeyMDNS,
	"name":              config.KeyName,
	"tui":               config.KeyTUI,
}

// load binds the running command's flags, resolves the configuration and
// builds the logger. Flags bind here rather than at construction because
// capture and play share keys.
func (a *app) load(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = a.v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	log, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: cmd.ErrOrStderr(),
		Quiet:   cfg.TUI,
	})
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func (a *app) sync() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}

type statsSource interface {
	State() session.State
	Stats() session.Stats
}

// reportStats logs session counters until ctx ends
func reportStats(ctx context.Context, log *zap.Logger, src statsSource, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := src.Stats()
			log.Info("stats",
				zap.Stringer("state", src.State()),
				zap.Uint64("messages_sent", st.MessagesSent),
				zap.Uint64("messages_received", st.MessagesReceived),
				zap.Uint64("samples_sent", st.SamplesSent),
				zap.Uint64("samples_played", st.SamplesPlayed),
				zap.Uint64("overflows", st.Overflows),
				zap.Uint64("underflows", st.Underflows),
				zap.Uint64("schema_errors", st.SchemaErrors))
		}
	}
}
