// Package satoriconfig holds the per-binary configuration structs for
// the three Satori services, each loaded from TOML via Viper: defaults,
// then config file, then SATORI_<SERVICE>_ prefixed environment overrides.
package satoriconfig

import (
	"github.com/spf13/viper"

	"github.com/satori-nvr/satori/internal/config"
	"github.com/satori-nvr/satori/internal/errs"
)

// StreamConfig is the Agent's [stream] table.
type StreamConfig struct {
	URL                     string          `mapstructure:"url"`
	FFmpegInputArgs         []string        `mapstructure:"ffmpeg_input_args"`
	HLSSegmentTime          int             `mapstructure:"hls_segment_time"`
	HLSRetainedSegmentCount int             `mapstructure:"hls_retained_segment_count"`
	FFmpegRestartDelay      config.Duration `mapstructure:"ffmpeg_restart_delay"`
}

func (c StreamConfig) Validate() error {
	if c.URL == "" {
		return errs.NewConfigError("stream.url is required", nil)
	}
	if c.HLSSegmentTime <= 0 {
		return errs.NewConfigError("stream.hls_segment_time must be positive", nil)
	}
	if c.HLSRetainedSegmentCount <= 0 {
		return errs.NewConfigError("stream.hls_retained_segment_count must be positive", nil)
	}
	return nil
}

// AgentConfig is satori-agent's full configuration. It carries no
// MQTTConfig: the Agent never talks to the broker, only to its own
// ffmpeg child and to HTTP callers.
type AgentConfig struct {
	Camera         string               `mapstructure:"camera"`
	VideoDirectory string               `mapstructure:"video_directory"`
	ListenAddr     string               `mapstructure:"listen_addr"`
	Stream         StreamConfig         `mapstructure:"stream"`
	Logging        config.LoggingConfig `mapstructure:"logging"`
	Tracing        config.TracingConfig `mapstructure:"tracing"`
}

func agentDefaults(v *viper.Viper) {
	v.SetDefault("video_directory", "./data")
	v.SetDefault("listen_addr", "0.0.0.0:8080")
	v.SetDefault("stream.hls_segment_time", 6)
	v.SetDefault("stream.hls_retained_segment_count", 3600)
	v.SetDefault("stream.ffmpeg_restart_delay", "5s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("tracing.sampling_rate", 1.0)
}

// LoadAgentConfig reads an AgentConfig from v after defaults and any
// config file / environment overrides have already been applied by
// the caller's Viper lifecycle (see cmd/satori-agent/cmd/root.go).
func LoadAgentConfig(v *viper.Viper) (*AgentConfig, error) {
	agentDefaults(v)

	var cfg AgentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.NewConfigError("failed to decode agent configuration", err)
	}

	if cfg.Camera == "" {
		return nil, errs.NewConfigError("camera is required", nil)
	}
	if cfg.VideoDirectory == "" {
		return nil, errs.NewConfigError("video_directory is required", nil)
	}
	if err := cfg.Stream.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Tracing.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
