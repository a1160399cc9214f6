package satoriconfig

import (
	"github.com/spf13/viper"

	"github.com/satori-nvr/satori/internal/config"
	"github.com/satori-nvr/satori/internal/errs"
)

// TriggerTemplate is one named entry in [triggers.templates], or the
// reserved [triggers.fallback] applied when a trigger names no template.
type TriggerTemplate struct {
	Cameras []string `mapstructure:"cameras"`
	Reason  string   `mapstructure:"reason"`
	Pre     int      `mapstructure:"pre"`
	Post    int      `mapstructure:"post"`
}

// TriggersConfig holds the template table used to resolve an incoming
// Trigger into concrete cameras/reason/pre/post values per DESIGN NOTES
// "Trigger/template merging": a pure function of (trigger, template-table).
type TriggersConfig struct {
	Fallback  TriggerTemplate            `mapstructure:"fallback"`
	Templates map[string]TriggerTemplate `mapstructure:"templates"`
}

// EventdConfig is satori-eventd's full configuration.
type EventdConfig struct {
	EventFile  string               `mapstructure:"event_file"`
	Interval   config.Duration      `mapstructure:"interval"`
	EventTTL   config.Duration      `mapstructure:"event_ttl"`
	Triggers   TriggersConfig       `mapstructure:"triggers"`
	ListenAddr string               `mapstructure:"listen_addr"`
	MQTT       config.MQTTConfig    `mapstructure:"mqtt"`
	Logging    config.LoggingConfig `mapstructure:"logging"`
	Tracing    config.TracingConfig `mapstructure:"tracing"`
}

func eventdDefaults(v *viper.Viper) {
	v.SetDefault("event_file", "./data/events.json")
	v.SetDefault("interval", "5s")
	v.SetDefault("event_ttl", "1h")
	v.SetDefault("listen_addr", "0.0.0.0:8090")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.topic", "satori/archive")
	v.SetDefault("mqtt.client_id", "satori-eventd")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("tracing.sampling_rate", 1.0)
}

// LoadEventdConfig reads an EventdConfig from v.
func LoadEventdConfig(v *viper.Viper) (*EventdConfig, error) {
	eventdDefaults(v)

	var cfg EventdConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.NewConfigError("failed to decode event processor configuration", err)
	}

	if cfg.EventFile == "" {
		return nil, errs.NewConfigError("event_file is required", nil)
	}
	if cfg.Interval.Duration() <= 0 {
		return nil, errs.NewConfigError("interval must be positive", nil)
	}
	if cfg.EventTTL.Duration() <= 0 {
		return nil, errs.NewConfigError("event_ttl must be positive", nil)
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
