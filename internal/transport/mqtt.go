package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/szibis/sparkplug-edge/internal/logging"
	tlspkg "github.com/szibis/sparkplug-edge/internal/tls"
)

// MQTTConfig configures an MQTT session.
type MQTTConfig struct {
	Broker         string // tcp://host:1883, ssl://host:8883, ws://...
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	TLS            tlspkg.Config // used with ssl:// and wss:// brokers
}

// DefaultMQTTConfig returns the default MQTT configuration.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:         "tcp://localhost:1883",
		QoS:            1,
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      30 * time.Second,
	}
}

// MQTTDialer returns a Dialer that connects with cfg.
func MQTTDialer(cfg MQTTConfig) Dialer {
	return func(ctx context.Context, clientID string, will *Message) (Transport, error) {
		return DialMQTT(ctx, cfg, clientID, will)
	}
}

// MQTTClient is a Transport over an MQTT 3.1.1 broker.
type MQTTClient struct {
	client mqtt.Client
	qos    byte
}

// DialMQTT connects to the broker. Sparkplug sessions are clean and do not
// auto-reconnect: a lost connection means a new session with a new bdSeq,
// which the owner handles by dialing again.
func DialMQTT(ctx context.Context, cfg MQTTConfig, clientID string, will *Message) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetOrderMatters(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logging.Warn("mqtt connection lost", logging.F("client_id", clientID, "error", err.Error()))
		})
	if will != nil {
		opts.SetBinaryWill(will.Topic, will.Payload, will.QoS, will.Retained)
	}
	tlsConfig, err := tlspkg.Load(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("mqtt tls: %w", err)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	c := mqtt.NewClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &MQTTClient{client: c, qos: cfg.QoS}, nil
}

// Publish implements Transport.
func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.PublishMessage(ctx, Message{Topic: topic, Payload: payload, QoS: c.qos})
}

// PublishMessage publishes msg with its own QoS and retain flag.
func (c *MQTTClient) PublishMessage(ctx context.Context, msg Message) error {
	if err := ValidTopic(msg.Topic); err != nil {
		return err
	}
	if !c.client.IsConnectionOpen() {
		return ErrClosed
	}
	// paho keeps the slice until the publish completes; the caller's buffer
	// is reused for the next payload
	payload := append([]byte(nil), msg.Payload...)
	if err := wait(ctx, c.client.Publish(msg.Topic, msg.QoS, msg.Retained, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe implements Transport. With order-preserving delivery paho calls
// handlers from its router goroutine, so a handler that publishes does so on
// a separate goroutine inside the node or host.
func (c *MQTTClient) Subscribe(ctx context.Context, filter string, h Handler) error {
	if err := ValidFilter(filter); err != nil {
		return err
	}
	cb := func(_ mqtt.Client, m mqtt.Message) {
		h(Message{Topic: m.Topic(), Payload: m.Payload(), QoS: m.Qos(), Retained: m.Retained()})
	}
	if err := wait(ctx, c.client.Subscribe(filter, c.qos, cb)); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", filter, err)
	}
	return nil
}

// Close disconnects gracefully; the broker discards the will.
func (c *MQTTClient) Close() error {
	c.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
