package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// MQTTConfig configures an MQTTBearer.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string

	// ClientID defaults to csrmesh-<uuid>.
	ClientID string

	Username string
	Password string

	// TopicPrefix defaults to "csrmesh". Frames are published to
	// <prefix>/<networkID>.
	TopicPrefix string
	NetworkID   uint8

	// QoS for publish and subscribe. Mesh traffic is lossy anyway so 0 is
	// the default.
	QoS byte

	// DefaultRSSI is reported for frames that carry no RSSI.
	DefaultRSSI int8

	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	Logger *slog.Logger
}

// DefaultMQTTConfig returns a configuration for a local broker.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:         "tcp://localhost:1883",
		TopicPrefix:    "csrmesh",
		DefaultRSSI:    -60,
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      30 * time.Second,
	}
}

// Topic returns the topic all nodes of the network share.
func (c MQTTConfig) Topic() string {
	return fmt.Sprintf("%s/%d", c.TopicPrefix, c.NetworkID)
}

// mqttClient is the subset of mqtt.Client used by the bearer.
type mqttClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// newMQTTClient is replaced in tests.
var newMQTTClient = func(opts *mqtt.ClientOptions) mqttClient {
	return mqtt.NewClient(opts)
}

// MQTTBearer carries CBOR frames over an MQTT broker. Every node of a
// network subscribes to the same topic, which makes the broker behave like
// a shared radio medium.
type MQTTBearer struct {
	cfg    MQTTConfig
	client mqttClient
	logger *slog.Logger

	mu     sync.RWMutex
	recv   Receiver
	closed bool
}

// NewMQTTBearer creates a bearer. Start connects to the broker.
func NewMQTTBearer(cfg MQTTConfig) *MQTTBearer {
	if cfg.ClientID == "" {
		cfg.ClientID = "csrmesh-" + uuid.NewString()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "csrmesh"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := &MQTTBearer{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		// Subscriptions do not survive a clean-session reconnect.
		if err := b.subscribe(); err != nil {
			b.logger.Error("mqtt: resubscribe failed", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("mqtt: connection lost", "error", err)
	})

	b.client = newMQTTClient(opts)
	return b
}

// Start connects to the broker and subscribes to the network topic.
func (b *MQTTBearer) Start(recv Receiver) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.recv = recv
	b.mu.Unlock()

	token := b.client.Connect()
	if !token.WaitTimeout(b.connectTimeout()) {
		return fmt.Errorf("mqtt connect %s: timeout", b.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, err)
	}
	b.logger.Info("mqtt: connected", "broker", b.cfg.Broker, "client_id", b.cfg.ClientID, "topic", b.cfg.Topic())
	return nil
}

func (b *MQTTBearer) connectTimeout() time.Duration {
	if b.cfg.ConnectTimeout > 0 {
		return b.cfg.ConnectTimeout
	}
	return 10 * time.Second
}

func (b *MQTTBearer) subscribe() error {
	token := b.client.Subscribe(b.cfg.Topic(), b.cfg.QoS, b.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", b.cfg.Topic(), err)
	}
	return nil
}

// Send publishes msg to the network topic.
func (b *MQTTBearer) Send(msg mesh.Message) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	data, err := wire.EncodeFrame(msg.ToFrame())
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	token := b.client.Publish(b.cfg.Topic(), b.cfg.QoS, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (b *MQTTBearer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.recv = nil
	b.mu.Unlock()

	b.client.Disconnect(250)
	return nil
}

func (b *MQTTBearer) onMessage(_ mqtt.Client, m mqtt.Message) {
	b.mu.RLock()
	recv := b.recv
	b.mu.RUnlock()
	if recv == nil {
		return
	}

	f, err := wire.DecodeFrame(m.Payload())
	if err != nil {
		b.logger.Warn("mqtt: dropping undecodable frame", "topic", m.Topic(), "error", err)
		return
	}
	if f.NetworkID != b.cfg.NetworkID {
		return
	}
	recv(mesh.FromFrame(f, b.cfg.DefaultRSSI))
}

var _ Bearer = (*MQTTBearer)(nil)
