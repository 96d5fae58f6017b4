package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeBroker fans every publish out to all subscribers of the topic,
// including the publisher.
type fakeBroker struct {
	mu         sync.Mutex
	subs       map[string][]mqtt.MessageHandler
	connectErr error
	clientIDs  []string
}

func (b *fakeBroker) publish(topic string, payload []byte) {
	b.mu.Lock()
	handlers := append([]mqtt.MessageHandler(nil), b.subs[topic]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(nil, &fakeMessage{topic: topic, payload: payload})
	}
}

type fakeClient struct {
	broker       *fakeBroker
	opts         *mqtt.ClientOptions
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	if c.broker.connectErr != nil {
		return newToken(c.broker.connectErr)
	}
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(nil)
	}
	return newToken(nil)
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	c.broker.publish(topic, payload.([]byte))
	return newToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.broker.subs == nil {
		c.broker.subs = make(map[string][]mqtt.MessageHandler)
	}
	c.broker.subs[topic] = append(c.broker.subs[topic], cb)
	return newToken(nil)
}

func useFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	broker := &fakeBroker{}
	orig := newMQTTClient
	newMQTTClient = func(opts *mqtt.ClientOptions) mqttClient {
		broker.mu.Lock()
		broker.clientIDs = append(broker.clientIDs, opts.ClientID)
		broker.mu.Unlock()
		return &fakeClient{broker: broker, opts: opts}
	}
	t.Cleanup(func() { newMQTTClient = orig })
	return broker
}

func TestMQTTConfigTopic(t *testing.T) {
	cfg := DefaultMQTTConfig()
	cfg.NetworkID = 7
	assert.Equal(t, "csrmesh/7", cfg.Topic())
}

func TestMQTTBearerExchange(t *testing.T) {
	broker := useFakeBroker(t)

	cfg := DefaultMQTTConfig()
	cfg.NetworkID = 1
	a, b := NewMQTTBearer(cfg), NewMQTTBearer(cfg)

	var ia, ib inbox
	require.NoError(t, a.Start(ia.receive))
	require.NoError(t, b.Start(ib.receive))

	require.Len(t, broker.clientIDs, 2)
	assert.NotEqual(t, broker.clientIDs[0], broker.clientIDs[1])
	assert.Contains(t, broker.clientIDs[0], "csrmesh-")

	require.NoError(t, a.Send(announce(1, mesh.AddrBroadcast)))

	// Brokers echo publishes; the node drops its own source address.
	require.Len(t, ia.all(), 1)
	require.Len(t, ib.all(), 1)
	got := ib.all()[0]
	assert.Equal(t, uint16(1), got.Src)
	assert.Equal(t, wire.OpAssetAnnounce, got.Opcode)
	assert.Equal(t, int8(-60), got.RSSI)
}

func TestMQTTBearerDropsForeignFrames(t *testing.T) {
	broker := useFakeBroker(t)

	cfg := DefaultMQTTConfig()
	cfg.NetworkID = 1
	b := NewMQTTBearer(cfg)
	var in inbox
	require.NoError(t, b.Start(in.receive))

	other := announce(2, mesh.AddrBroadcast)
	other.NetworkID = 2
	data, err := wire.EncodeFrame(other.ToFrame())
	require.NoError(t, err)

	broker.publish(cfg.Topic(), data)
	broker.publish(cfg.Topic(), []byte{0xFF})
	assert.Empty(t, in.all())
}

func TestMQTTBearerConnectError(t *testing.T) {
	broker := useFakeBroker(t)
	broker.connectErr = errors.New("refused")

	b := NewMQTTBearer(DefaultMQTTConfig())
	err := b.Start(func(mesh.Message) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestMQTTBearerClose(t *testing.T) {
	useFakeBroker(t)

	b := NewMQTTBearer(DefaultMQTTConfig())
	require.NoError(t, b.Start(func(mesh.Message) bool { return true }))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.True(t, b.client.(*fakeClient).disconnected)
	assert.ErrorIs(t, b.Send(announce(1, mesh.AddrBroadcast)), ErrClosed)
}
