// Package config provides the configuration primitives shared by every
// Satori binary: logging configuration and human-readable durations.
// Each binary (satori-agent, satori-eventd, satori-archiver) layers its
// own Viper-backed Config struct in internal/satoriconfig on top of these.
package config

import (
	"strconv"
	"time"

	"github.com/satori-nvr/satori/internal/errs"
)

// LoggingConfig holds logging configuration common to all Satori services.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// DefaultLoggingConfig returns sane logging defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "text",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Validate checks the logging configuration for errors.
func (c LoggingConfig) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Level] {
		return errs.NewConfigError("logging.level must be one of: trace, debug, info, warn, error", nil)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Format] {
		return errs.NewConfigError("logging.format must be one of: json, text", nil)
	}
	return nil
}

// MQTTConfig holds the broker connection shared by the Event Processor
// (publish-only) and the Archiver (subscribe-only).
type MQTTConfig struct {
	Broker     string `mapstructure:"broker"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Topic      string `mapstructure:"topic"`
	ClientID   string `mapstructure:"client_id"`
	QoS        byte   `mapstructure:"qos"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// Validate checks the MQTT configuration for errors.
func (c MQTTConfig) Validate() error {
	if c.Broker == "" {
		return errs.NewConfigError("mqtt.broker is required", nil)
	}
	if c.Port < 1 || c.Port > 65535 {
		return errs.NewConfigError("mqtt.port must be between 1 and 65535", nil)
	}
	if c.Topic == "" {
		return errs.NewConfigError("mqtt.topic is required", nil)
	}
	if c.ClientID == "" {
		return errs.NewConfigError("mqtt.client_id is required", nil)
	}
	return nil
}

// BrokerURL returns the broker address in tcp://host:port form, or
// ssl://host:port when TLS is enabled, suitable for paho's AddBroker.
func (c MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.TLSEnabled {
		scheme = "ssl"
	}
	return scheme + "://" + c.Broker + ":" + strconv.Itoa(c.Port)
}

// TracingConfig holds the OTLP tracing settings common to all Satori
// services. Disabled by default: Enabled must be set explicitly.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Validate checks the tracing configuration for errors.
func (c TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return errs.NewConfigError("tracing.endpoint is required when tracing.enabled is true", nil)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return errs.NewConfigError("tracing.sampling_rate must be between 0 and 1", nil)
	}
	return nil
}
