package node_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csrmesh/csrmesh-go/pkg/asset"
	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/node"
	"github.com/csrmesh/csrmesh-go/pkg/store"
	"github.com/csrmesh/csrmesh-go/pkg/tracker"
	"github.com/csrmesh/csrmesh-go/pkg/transport"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

const (
	assetID    uint16 = 0x0100
	nearID     uint16 = 0x0201
	farID      uint16 = 0x0202
	listenerID uint16 = 0x0300
)

type reportLog struct {
	mu      sync.Mutex
	senders []uint16
}

func (l *reportLog) receive(msg mesh.Message) bool {
	if msg.Opcode != wire.OpTrackerReport {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.senders = append(l.senders, msg.Src)
	return true
}

func (l *reportLog) from(src uint16) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.senders {
		if s == src {
			n++
		}
	}
	return n
}

func attachNode(t *testing.T, bus *transport.Bus, cfg node.Config, st store.Store) *node.Node {
	t.Helper()
	ep := bus.Attach(cfg.DeviceID, cfg.Groups...)
	n, err := node.New(cfg, ep, st)
	require.NoError(t, err)
	require.NoError(t, ep.Start(n.Deliver))
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() {
		_ = n.Stop()
		_ = ep.Close()
	})
	return n
}

// The tracker hearing the asset more strongly reports first; its report
// suppresses the weaker tracker's pending sighting.
func TestStrongestTrackerReportsOverBus(t *testing.T) {
	rssi := func(from, to uint16) int8 {
		switch {
		case from == assetID && to == nearID:
			return -40
		case from == assetID && to == farID:
			return -100
		}
		return -60
	}
	bus := transport.NewBus(rssi, nil)

	var reports reportLog
	listener := bus.Attach(listenerID)
	require.NoError(t, listener.Start(reports.receive))
	t.Cleanup(func() { _ = listener.Close() })

	// Short ticks keep the race within a fraction of a second: the near
	// tracker waits 100 ticks, the far one 160.
	fast := tracker.DefaultProximityConfig()
	fast.DelayFactor = 2

	trackers := make([]*node.Node, 0, 2)
	for _, id := range []uint16{nearID, farID} {
		st := store.NewMemoryStore(store.DefaultSize)
		cfg := node.DefaultConfig()
		cfg.DeviceID = id
		require.NoError(t, tracker.WriteConfig(st, cfg.TrackerOffset, fast))
		trackers = append(trackers, attachNode(t, bus, cfg, st))
	}

	st := store.NewMemoryStore(store.DefaultSize)
	w := asset.EncodeState(asset.State{
		Interval:         60,
		ToDestinationID:  mesh.AddrBroadcast,
		NumAnnounces:     1,
		AnnounceInterval: 10,
	})
	require.NoError(t, st.Write(0, w[:]))
	cfg := node.DefaultConfig()
	cfg.DeviceID = assetID
	cfg.Asset = true
	cfg.Tracker = false
	attachNode(t, bus, cfg, st)

	require.Eventually(t, func() bool { return reports.from(nearID) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Well past the far tracker's deadline.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1, reports.from(nearID))
	assert.Zero(t, reports.from(farID), "weaker tracker must stay silent")

	var near, far tracker.Snapshot
	require.NoError(t, trackers[0].Do(func() { near = trackers[0].Tracker().Snapshot() }))
	require.NoError(t, trackers[1].Do(func() { far = trackers[1].Tracker().Snapshot() }))

	require.Len(t, near.Confirmed, 1)
	assert.Equal(t, assetID, near.Confirmed[0].DeviceID)
	assert.Equal(t, tracker.ZoneImmediate, near.Confirmed[0].Zone)
	assert.Empty(t, far.Pending)
	assert.Empty(t, far.Confirmed)
}

// A tracker answers TRACKER_FIND for an asset it has confirmed.
func TestTrackerFindOverBus(t *testing.T) {
	bus := transport.NewBus(transport.FixedRSSI(-55), nil)

	st := store.NewMemoryStore(store.DefaultSize)
	fast := tracker.DefaultProximityConfig()
	fast.DelayFactor = 1
	cfg := node.DefaultConfig()
	cfg.DeviceID = nearID
	require.NoError(t, tracker.WriteConfig(st, cfg.TrackerOffset, fast))
	tr := attachNode(t, bus, cfg, st)

	finder := bus.Attach(listenerID)
	t.Cleanup(func() { _ = finder.Close() })

	var mu sync.Mutex
	var found []wire.TrackerFound
	require.NoError(t, finder.Start(func(msg mesh.Message) bool {
		if msg.Opcode != wire.OpTrackerFound || msg.Dst != listenerID {
			return false
		}
		var f wire.TrackerFound
		if err := f.UnmarshalBinary(msg.Payload); err != nil {
			return false
		}
		mu.Lock()
		found = append(found, f)
		mu.Unlock()
		return true
	}))

	ann, err := mesh.NewMessage(mesh.AddrBroadcast, 0, wire.OpAssetAnnounce, &wire.AssetAnnounce{Interval: 30, NumAnnounces: 1})
	require.NoError(t, err)
	ann.Src = assetID
	ann.RSSI = -55
	require.True(t, tr.Deliver(ann))

	require.Eventually(t, func() bool {
		var n int
		return tr.Do(func() { n = len(tr.Tracker().Snapshot().Confirmed) }) == nil && n == 1
	}, 2*time.Second, 5*time.Millisecond)

	find, err := mesh.NewMessage(nearID, mesh.DefaultTTL, wire.OpTrackerFind, &wire.TrackerFind{AssetDeviceID: assetID, TransactionID: 7})
	require.NoError(t, err)
	find.Src = listenerID
	require.NoError(t, finder.Send(find))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(found) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, assetID, found[0].AssetDeviceID)
	assert.Equal(t, uint8(7), found[0].TransactionID)
	assert.Equal(t, int8(-55), found[0].RSSI)
}

// powerTable is a bus radio model: every link hears the sender at base dBm
// raised by the sender's transmit power.
type powerTable struct {
	mu    sync.Mutex
	base  int8
	power map[uint16]int8
}

func (p *powerTable) rssi(from, _ uint16) int8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base + p.power[from]
}

func (p *powerTable) radio(id uint16) mesh.Radio {
	return tableRadio{table: p, id: id}
}

type tableRadio struct {
	table *powerTable
	id    uint16
}

func (r tableRadio) SetTxPower(dBm int8) error {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	r.table.power[r.id] = dBm
	return nil
}

// Raising an asset's transmit power through ASSET_SET_STATE raises the
// signal strength its trackers record.
func TestAssetTxPowerReachesTracker(t *testing.T) {
	table := &powerTable{base: -80, power: make(map[uint16]int8)}
	bus := transport.NewBus(table.rssi, nil)

	fast := tracker.DefaultProximityConfig()
	fast.DelayFactor = 1
	trackerStore := store.NewMemoryStore(store.DefaultSize)
	tcfg := node.DefaultConfig()
	tcfg.DeviceID = nearID
	require.NoError(t, tracker.WriteConfig(trackerStore, tcfg.TrackerOffset, fast))
	tr := attachNode(t, bus, tcfg, trackerStore)

	state := asset.State{
		Interval:         1,
		ToDestinationID:  mesh.AddrBroadcast,
		NumAnnounces:     1,
		AnnounceInterval: 10,
	}
	assetStore := store.NewMemoryStore(store.DefaultSize)
	w := asset.EncodeState(state)
	require.NoError(t, assetStore.Write(0, w[:]))
	acfg := node.DefaultConfig()
	acfg.DeviceID = assetID
	acfg.Asset = true
	acfg.Tracker = false
	acfg.Radio = table.radio(assetID)
	attachNode(t, bus, acfg, assetStore)

	confirmedRSSI := func() int8 {
		var rssi int8
		_ = tr.Do(func() {
			if c := tr.Tracker().Snapshot().Confirmed; len(c) == 1 {
				rssi = c[0].RSSI
			}
		})
		return rssi
	}
	require.Eventually(t, func() bool { return confirmedRSSI() == -80 }, 2*time.Second, 5*time.Millisecond)

	controller := bus.Attach(listenerID)
	require.NoError(t, controller.Start(func(mesh.Message) bool { return false }))
	t.Cleanup(func() { _ = controller.Close() })

	set, err := mesh.NewMessage(assetID, mesh.DefaultTTL, wire.OpAssetSetState, &wire.AssetState{
		Interval:         1,
		ToDestinationID:  mesh.AddrBroadcast,
		TxPower:          12,
		NumAnnounces:     1,
		AnnounceInterval: 10,
	})
	require.NoError(t, err)
	set.Src = listenerID
	require.NoError(t, controller.Send(set))

	require.Eventually(t, func() bool { return confirmedRSSI() == -68 }, 2*time.Second, 5*time.Millisecond)
}
