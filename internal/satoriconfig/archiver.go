package satoriconfig

import (
	"github.com/spf13/viper"

	"github.com/satori-nvr/satori/internal/config"
	"github.com/satori-nvr/satori/internal/errs"
)

// StorageKind discriminates the object-store driver per DESIGN NOTES
// "Dynamic storage driver": S3 and Local implement a common {put, get,
// list, delete} capability set, selected at load time by StorageConfig.Kind.
type StorageKind string

const (
	StorageKindS3    StorageKind = "s3"
	StorageKindLocal StorageKind = "local"
)

// StorageConfig is the Archiver's [storage] table. Fields outside the
// selected Kind are ignored.
type StorageConfig struct {
	Kind StorageKind `mapstructure:"kind"`

	// S3 fields.
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`

	// Local fields.
	BaseDir string `mapstructure:"base_dir"`
}

func (c StorageConfig) Validate() error {
	switch c.Kind {
	case StorageKindS3:
		if c.Bucket == "" {
			return errs.NewConfigError("storage.bucket is required for kind=s3", nil)
		}
	case StorageKindLocal:
		if c.BaseDir == "" {
			return errs.NewConfigError("storage.base_dir is required for kind=local", nil)
		}
	default:
		return errs.NewConfigError("storage.kind must be one of: s3, local", nil)
	}
	return nil
}

// ArchiverConfig is satori-archiver's full configuration.
type ArchiverConfig struct {
	QueueFile   string               `mapstructure:"queue_file"`
	Interval    config.Duration      `mapstructure:"interval"`
	Storage     StorageConfig        `mapstructure:"storage"`
	Cameras     []string             `mapstructure:"cameras"`
	AgentURLs   map[string]string    `mapstructure:"agent_urls"`
	MaxBackoff  config.Duration      `mapstructure:"max_backoff"`
	ListenAddr  string               `mapstructure:"listen_addr"`
	MQTT        config.MQTTConfig    `mapstructure:"mqtt"`
	Logging     config.LoggingConfig `mapstructure:"logging"`
	Tracing     config.TracingConfig `mapstructure:"tracing"`
}

func archiverDefaults(v *viper.Viper) {
	v.SetDefault("queue_file", "./data/queue.json")
	v.SetDefault("interval", "5s")
	v.SetDefault("max_backoff", "1h")
	v.SetDefault("listen_addr", "0.0.0.0:8091")
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.topic", "satori/archive")
	v.SetDefault("mqtt.client_id", "satori-archiver")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadArchiverConfig reads an ArchiverConfig from v.
func LoadArchiverConfig(v *viper.Viper) (*ArchiverConfig, error) {
	archiverDefaults(v)

	var cfg ArchiverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.NewConfigError("failed to decode archiver configuration", err)
	}

	if cfg.QueueFile == "" {
		return nil, errs.NewConfigError("queue_file is required", nil)
	}
	if cfg.Interval.Duration() <= 0 {
		return nil, errs.NewConfigError("interval must be positive", nil)
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.AgentURLs) == 0 {
		return nil, errs.NewConfigError("at least one entry in agent_urls is required", nil)
	}
	if err := cfg.MQTT.Validate(); err != nil {
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
