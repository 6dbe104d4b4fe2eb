package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/zjrosen/arena/internal/log"
)

// ErrPublishTimeout is returned when the broker does not confirm a publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timeout")

// MQTTConfig configures the MQTT bus.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	CommandPrefix  string
}

// MQTT publishes commands and events to an MQTT broker.
type MQTT struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

var _ Bus = (*MQTT)(nil)

// NewMQTT connects to the broker. Reconnection after a lost connection is
// handled by the client in the background.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "arena-" + uuid.NewString()[:8]
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info(log.CatBus, "mqtt connection established", "broker", cfg.Broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.ErrorErr(log.CatBus, "mqtt connection lost, will auto-reconnect", err, "broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection to %s timed out after %s", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection to %s failed: %w", cfg.Broker, err)
	}

	return newMQTTWithClient(client, cfg), nil
}

func newMQTTWithClient(client mqtt.Client, cfg MQTTConfig) *MQTT {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MQTT{
		client:  client,
		prefix:  cfg.CommandPrefix,
		qos:     cfg.QoS,
		timeout: timeout,
	}
}

// PublishCommand publishes payload on the command topic for name.
func (m *MQTT) PublishCommand(ctx context.Context, name, payload string) error {
	return m.PublishEvent(ctx, CommandTopic(m.prefix, name), payload)
}

// PublishEvent publishes payload on topic, waiting at most the publish timeout
// for the broker to accept it.
func (m *MQTT) PublishEvent(ctx context.Context, topic, payload string) error {
	token := m.client.Publish(topic, m.qos, false, payload)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}

	log.Debug(log.CatBus, "published", "backend", "mqtt", "topic", topic, "qos", m.qos, "size", len(payload))
	return nil
}

// Close disconnects, giving in-flight messages a short grace period.
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
		log.Info(log.CatBus, "mqtt disconnected")
	}
	return nil
}
