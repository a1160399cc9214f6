// Package mqttutil wraps github.com/eclipse/paho.mqtt.golang with the
// connect/reconnect and at-least-once publish/subscribe semantics shared
// by the Event Processor (publish-only) and the Archiver (subscribe-only).
package mqttutil

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/satori-nvr/satori/internal/config"
)

// Client wraps a paho client configured for automatic reconnect with
// a bounded connect timeout and a logger for connection lifecycle events.
type Client struct {
	inner  mqtt.Client
	topic  string
	qos    byte
	logger *slog.Logger
}

// Connect dials the broker described by cfg and blocks until the
// connection succeeds or 15 seconds elapse.
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(1 * time.Minute).
		SetConnectTimeout(10 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	return &Client{inner: client, topic: cfg.Topic, qos: cfg.QoS, logger: logger}, nil
}

// Publish sends payload to the configured topic at the configured QoS
// and blocks until the broker acknowledges or the token errors.
func (c *Client) Publish(payload []byte) error {
	token := c.inner.Publish(c.topic, c.qos, false, payload)
	token.Wait()
	return token.Error()
}

// Subscribe registers handler for the configured topic. Handler MUST
// tolerate duplicate deliveries; paho redelivers unacknowledged QoS 1/2
// messages after reconnect.
func (c *Client) Subscribe(handler func(payload []byte)) error {
	token := c.inner.Subscribe(c.topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker, allowing up to 250ms to flush
// in-flight acknowledgements.
func (c *Client) Close() {
	c.inner.Disconnect(250)
}
