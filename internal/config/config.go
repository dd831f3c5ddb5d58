// ABOUTME: Command configuration backed by viper
// ABOUTME: Defaults, config file and AUDIOSOCK_ environment overrides mapped onto session settings
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/Resonate-Protocol/audiosock/pkg/device"
	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
	"github.com/Resonate-Protocol/audiosock/pkg/session"
	"github.com/Resonate-Protocol/audiosock/pkg/transport"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AUDIOSOCK_SAMPLE_RATE
const EnvPrefix = "AUDIOSOCK"

// Config keys, shared with the command-line flags
const (
	KeyLogLevel         = "log.level"
	KeyLogFile          = "log.file"
	KeyTransport        = "transport"
	KeyAddr             = "addr"
	KeyListen           = "listen"
	KeyDevice           = "device"
	KeyDeviceFile       = "device_file"
	KeyLoop             = "loop"
	KeyToneFrequency    = "tone_frequency"
	KeyFormat           = "format"
	KeyChannels         = "channels"
	KeySampleRate       = "sample_rate"
	KeyByteOrder        = "byte_order"
	KeyLatencyMs        = "latency_ms"
	KeyPeriodFrames     = "period_frames"
	KeyDrainInterval    = "drain_interval"
	KeyDuration         = "duration"
	KeyUnderflow        = "underflow"
	KeyHandshakeTimeout = "handshake_timeout"
	KeyMDNS             = "mdns"
	KeyName             = "name"
	KeyTUI              = "tui"
)

// Config is the resolved configuration of one command run
type Config struct {
	Log LogConfig `mapstructure:"log"`

	Transport string `mapstructure:"transport"`
	Addr      string `mapstructure:"addr"`
	Listen    string `mapstructure:"listen"`

	Device        string  `mapstructure:"device"`
	DeviceFile    string  `mapstructure:"device_file"`
	Loop          bool    `mapstructure:"loop"`
	ToneFrequency float64 `mapstructure:"tone_frequency"`

	Format     string `mapstructure:"format"`
	Channels   int    `mapstructure:"channels"`
	SampleRate int    `mapstructure:"sample_rate"`
	ByteOrder  string `mapstructure:"byte_order"`

	LatencyMs        int           `mapstructure:"latency_ms"`
	PeriodFrames     int           `mapstructure:"period_frames"`
	DrainInterval    time.Duration `mapstructure:"drain_interval"`
	Duration         time.Duration `mapstructure:"duration"`
	Underflow        string        `mapstructure:"underflow"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	MDNS bool   `mapstructure:"mdns"`
	Name string `mapstructure:"name"`
	TUI  bool   `mapstructure:"tui"`
}

// LogConfig selects the log level and optional rotated log file
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyTransport, string(transport.KindTCP))
	v.SetDefault(KeyAddr, "127.0.0.1:8000")
	v.SetDefault(KeyListen, "127.0.0.1:8000")
	v.SetDefault(KeyDevice, "malgo")
	v.SetDefault(KeyDeviceFile, "")
	v.SetDefault(KeyLoop, false)
	v.SetDefault(KeyToneFrequency, device.DefaultToneFrequency)
	v.SetDefault(KeyFormat, audio.FormatF32.String())
	v.SetDefault(KeyChannels, 1)
	v.SetDefault(KeySampleRate, 44100)
	v.SetDefault(KeyByteOrder, audio.LittleEndian.String())
	v.SetDefault(KeyLatencyMs, session.DefaultLatencyMs)
	v.SetDefault(KeyPeriodFrames, 0)
	v.SetDefault(KeyDrainInterval, session.DefaultDrainInterval)
	v.SetDefault(KeyDuration, 4*time.Second)
	v.SetDefault(KeyUnderflow, session.UnderflowSilence.String())
	v.SetDefault(KeyHandshakeTimeout, session.DefaultHandshakeTimeout)
	v.SetDefault(KeyMDNS, false)
	v.SetDefault(KeyName, "")
	v.SetDefault(KeyTUI, false)
}

// New returns a viper instance with defaults and environment overrides wired
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile, or audiosock.yaml from the working or user config
// directory when cfgFile is empty, and decodes the merged settings. A missing
// default config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("audiosock")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "audiosock"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks every setting that does not depend on the command
func (c *Config) Validate() error {
	if _, err := c.TransportKind(); err != nil {
		return err
	}
	if _, err := c.Stream(); err != nil {
		return err
	}
	if _, err := session.ParseUnderflowPolicy(c.Underflow); err != nil {
		return err
	}
	if c.LatencyMs <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyLatencyMs, c.LatencyMs)
	}
	if c.DrainInterval <= 0 {
		return fmt.Errorf("%s must be positive, got %v", KeyDrainInterval, c.DrainInterval)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%s must not be negative, got %v", KeyDuration, c.Duration)
	}
	if c.PeriodFrames < 0 {
		return fmt.Errorf("%s must not be negative, got %d", KeyPeriodFrames, c.PeriodFrames)
	}
	return nil
}

// TransportKind parses the transport setting
func (c *Config) TransportKind() (transport.Kind, error) {
	return transport.ParseKind(c.Transport)
}

// Stream builds the announced stream configuration
func (c *Config) Stream() (protocol.Config, error) {
	format, err := audio.ParseSampleFormat(c.Format)
	if err != nil {
		return protocol.Config{}, err
	}
	order, err := audio.ParseByteOrder(c.ByteOrder)
	if err != nil {
		return protocol.Config{}, err
	}
	if c.Channels <= 0 || c.Channels > 0xffff {
		return protocol.Config{}, fmt.Errorf("%s out of range: %d", KeyChannels, c.Channels)
	}
	if c.SampleRate <= 0 || int64(c.SampleRate) > 0xffffffff {
		return protocol.Config{}, fmt.Errorf("%s out of range: %d", KeySampleRate, c.SampleRate)
	}

	stream := protocol.Config{
		SampleFormat: format,
		Channels:     uint16(c.Channels),
		SampleRate:   uint32(c.SampleRate),
		ByteOrder:    order,
	}
	return stream, stream.Validate()
}

// CaptureConfig maps the settings onto a capture session
func (c *Config) CaptureConfig() (session.CaptureConfig, error) {
	stream, err := c.Stream()
	if err != nil {
		return session.CaptureConfig{}, err
	}
	return session.CaptureConfig{
		Stream:        stream,
		LatencyMs:     c.LatencyMs,
		DrainInterval: c.DrainInterval,
		Duration:      c.Duration,
		PeriodFrames:  c.PeriodFrames,
	}, nil
}

// PlaybackConfig maps the settings onto a playback session
func (c *Config) PlaybackConfig() (session.PlaybackConfig, error) {
	policy, err := session.ParseUnderflowPolicy(c.Underflow)
	if err != nil {
		return session.PlaybackConfig{}, err
	}
	return session.PlaybackConfig{
		LatencyMs:        c.LatencyMs,
		PeriodFrames:     c.PeriodFrames,
		Underflow:        policy,
		HandshakeTimeout: c.HandshakeTimeout,
		DrainInterval:    c.DrainInterval,
	}, nil
}

// DeviceOptions returns the options for device.Open
func (c *Config) DeviceOptions() device.Options {
	return device.Options{
		Path:      c.DeviceFile,
		Loop:      c.Loop,
		Frequency: c.ToneFrequency,
	}
}
