// Package mqtt mirrors dead-letter notices to an MQTT broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kafkarouter/pkg/types"
	"kafkarouter/pkg/validation"
)

const (
	connectTimeout    = 30 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// Notifier publishes a JSON notice for every record sent to the dead-letter
// topic. Delivery is best effort.
type Notifier struct {
	cfg            types.MQTTConfig
	client         mqtt.Client
	logger         zerolog.Logger
	publishTimeout time.Duration
}

// NewNotifier creates a notifier. Connect must be called before use.
func NewNotifier(cfg types.MQTTConfig, logger zerolog.Logger) *Notifier {
	return &Notifier{
		cfg:            cfg,
		logger:         logger.With().Str("component", "MQTTNotifier").Logger(),
		publishTimeout: publishTimeout,
	}
}

// brokerURL returns the broker address in paho's scheme://host:port form.
func brokerURL(cfg types.MQTTConfig) string {
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

// resolveClientID fills the {random} placeholder so that several router
// instances can share a configuration.
func resolveClientID(template string) string {
	if !strings.Contains(template, validation.RandomPlaceholder) {
		return template
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.ReplaceAll(template, validation.RandomPlaceholder, suffix)
}

func (n *Notifier) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(n.cfg))
	opts.SetClientID(resolveClientID(n.cfg.ClientID))

	if n.cfg.Username != "" {
		opts.SetUsername(n.cfg.Username)
		opts.SetPassword(n.cfg.Password)
	}
	if n.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			ServerName: n.cfg.Host,
			MinVersion: tls.VersionTLS12,
		})
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		n.logger.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		n.logger.Info().Str("broker", brokerURL(n.cfg)).Msg("Connected to MQTT broker")
	})
	return opts
}

// Connect establishes the broker connection.
func (n *Notifier) Connect(ctx context.Context) error {
	opts := n.clientOptions()
	n.client = mqtt.NewClient(opts)

	n.logger.Info().Str("broker", brokerURL(n.cfg)).Str("client_id", opts.ClientID).
		Bool("tls", n.cfg.UseTLS).Msg("Connecting to MQTT broker")
	if err := wait(ctx, n.client.Connect(), connectTimeout); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// NotifyDeadLetter publishes notice to the configured topic.
func (n *Notifier) NotifyDeadLetter(ctx context.Context, notice types.DeadLetterNotice) error {
	if n.client == nil || !n.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter notice: %w", err)
	}

	token := n.client.Publish(n.cfg.Topic, n.cfg.QoS, false, payload)
	if err := wait(ctx, token, n.publishTimeout); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", n.cfg.Topic, err)
	}
	n.logger.Debug().Str("topic", n.cfg.Topic).Str("source_topic", notice.SourceTopic).
		Int64("offset", notice.Offset).Msg("Published dead letter notice")
	return nil
}

// Disconnect closes the connection if it is open.
func (n *Notifier) Disconnect() {
	if n.client != nil && n.client.IsConnected() {
		n.logger.Info().Msg("Disconnecting from MQTT broker")
		n.client.Disconnect(disconnectQuiesce)
	}
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}
