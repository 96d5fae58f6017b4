package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/transport"
)

// slowBearer takes a while to come up, like a BLE adapter being enabled
// or a gateway being dialled, and records sends made before it is up.
type slowBearer struct {
	mu      sync.Mutex
	up      bool
	sent    int
	early   int
	startIn time.Duration
}

func (b *slowBearer) Start(transport.Receiver) error {
	time.Sleep(b.startIn)
	b.mu.Lock()
	b.up = true
	b.mu.Unlock()
	return nil
}

func (b *slowBearer) Send(mesh.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent++
	if !b.up {
		b.early++
	}
	return nil
}

func (b *slowBearer) Close() error { return nil }

func (b *slowBearer) counts() (sent, early int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent, b.early
}

func TestStartNodeBringsBearerUpFirst(t *testing.T) {
	cfg := DefaultConfig()
	rt := &session{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
	t.Cleanup(rt.shutdown)

	nc := NodeConfig{
		DeviceID: 0x0100,
		Asset: &AssetConfig{
			Interval:         1,
			Destination:      0xFFFF,
			NumAnnounces:     3,
			AnnounceInterval: 1,
		},
	}
	b := &slowBearer{startIn: 50 * time.Millisecond}
	require.NoError(t, rt.startNode(context.Background(), nc, b, nil))

	require.Eventually(t, func() bool {
		sent, _ := b.counts()
		return sent >= 3
	}, 2*time.Second, 5*time.Millisecond)
	_, early := b.counts()
	assert.Zero(t, early, "announces sent before the bearer was up")
	assert.Len(t, rt.nodes, 1)
	assert.Len(t, rt.bearers, 1)
}
