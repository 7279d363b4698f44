package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// ErrNotConnected is returned when publishing while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTConfig locates the broker.
type MQTTConfig struct {
	Broker   string // host:port or a full URL such as tcp://host:1883
	ClientID string
	Topic    string // base topic; events go to {Topic}/{type}
	QoS      byte
}

// MQTTPublisher sends events to an MQTT broker as JSON.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// ConnectMQTT connects to the broker with automatic reconnection.
func ConnectMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", cfg.Broker)

	if err := connect(client, connectTimeout); err != nil {
		return nil, err
	}

	return newMQTTPublisher(client, cfg.Topic, cfg.QoS), nil
}

// connect waits up to timeout for the first connection. On failure the
// client is disconnected so its retry loop does not outlive the caller.
func connect(client mqtt.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout after %s", timeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func newMQTTPublisher(client mqtt.Client, topic string, qos byte) *MQTTPublisher {
	if topic == "" {
		topic = "mood-player/events"
	}
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Notify publishes ev to {topic}/{ev.Type}.
func (p *MQTTPublisher) Notify(ctx context.Context, ev Event) error {
	if !p.client.IsConnected() {
		p.countError()
		return ErrNotConnected
	}

	payload, err := ev.Payload()
	if err != nil {
		p.countError()
		return fmt.Errorf("marshaling event: %w", err)
	}

	topic := p.topic + "/" + ev.Type
	token := p.client.Publish(topic, p.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		p.countError()
		return ctx.Err()
	case <-time.After(publishTimeout):
		p.countError()
		return fmt.Errorf("publishing to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	slog.Debug("event published", "topic", topic, "event_id", ev.ID, "size", len(payload))
	return nil
}

// Stats returns the number of published and failed events.
func (p *MQTTPublisher) Stats() (published, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.errors
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	return nil
}
