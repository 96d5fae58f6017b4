package interactive

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/node"
	"github.com/csrmesh/csrmesh-go/pkg/store"
	"github.com/csrmesh/csrmesh-go/pkg/timer"
)

type fixture struct {
	shell   *Shell
	out     *bytes.Buffer
	sim     *timer.Sim
	tracker *node.Node
	asset   *node.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := timer.NewSim()
	discard := mesh.SenderFunc(func(mesh.Message) error { return nil })

	start := func(id uint16, withAsset, withTracker bool) *node.Node {
		cfg := node.DefaultConfig()
		cfg.DeviceID = id
		cfg.Asset = withAsset
		cfg.Tracker = withTracker
		cfg.Timers = sim
		n, err := node.New(cfg, discard, store.NewMemoryStore(store.DefaultSize))
		require.NoError(t, err)
		require.NoError(t, n.Start(context.Background()))
		t.Cleanup(func() { _ = n.Stop() })
		return n
	}

	f := &fixture{out: &bytes.Buffer{}, sim: sim}
	f.tracker = start(0x0201, false, true)
	f.asset = start(0x0100, true, false)
	f.shell = New(f.out)
	f.shell.Add(f.tracker, f.asset)
	return f
}

// run executes line and returns what it printed.
func (f *fixture) run(t *testing.T, line string) string {
	t.Helper()
	f.out.Reset()
	require.True(t, f.shell.Execute(line), "command %q ended the shell", line)
	return f.out.String()
}

func TestShellNodes(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, "nodes")
	assert.Contains(t, out, "* 0201")
	assert.Contains(t, out, "  0100")
	assert.Contains(t, out, "tracker")
	assert.Contains(t, out, "asset")
	assert.Less(t, bytes.Index([]byte(out), []byte("0100")), bytes.Index([]byte(out), []byte("0201")), "sorted by id")

	assert.Contains(t, f.run(t, "use 0x0100"), "Selected 0100")
	assert.Contains(t, f.run(t, "nodes"), "* 0100")
	assert.Contains(t, f.run(t, "use 0x0999"), "No node 0999")
	assert.Contains(t, f.run(t, "use"), "Usage")
	assert.Contains(t, f.run(t, "use nope"), "Invalid id")
}

func TestShellAssetCommands(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.run(t, "state"), "Asset model not enabled")
	f.run(t, "use 0x0100")

	out := f.run(t, "state")
	assert.Contains(t, out, "Phase:        IDLE")
	assert.Contains(t, out, "Interval:     0s")

	assert.Contains(t, f.run(t, "set interval=10 announces=2 spacing=50 dest=0xFFFF txpower=-4"), "OK")
	out = f.run(t, "state")
	assert.Contains(t, out, "Interval:     10s")
	assert.Contains(t, out, "Announces:    2 every 50ms")
	assert.Contains(t, out, "Destination:  ffff")
	assert.Contains(t, out, "TxPower:      -4 dBm")
	assert.NotContains(t, out, "IDLE")

	assert.Contains(t, f.run(t, "set interval"), "expected key=value")
	assert.Contains(t, f.run(t, "set colour=red"), "unknown key")
	assert.Contains(t, f.run(t, "set interval=70000"), "interval")
	assert.Contains(t, f.run(t, "set"), "Usage")

	var st uint16
	require.NoError(t, f.asset.Do(func() { st = f.asset.Asset().State().Interval }))
	assert.Equal(t, uint16(10), st, "failed sets leave the state alone")
}

func TestShellTrackerCommands(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.tracker.Do(func() {
		f.tracker.Tracker().OnAssetAnnounce(0x0100, -50, 0)
	}))
	out := f.run(t, "snapshot")
	assert.Contains(t, out, "Pending (1)")
	assert.Contains(t, out, "0100  rssi=-50")
	assert.Contains(t, out, "Confirmed (0)")
	assert.Contains(t, f.run(t, "find 0x0100"), "not in cache")

	require.NoError(t, f.tracker.Do(func() { f.sim.Advance(4 * time.Second) }))

	out = f.run(t, "snapshot")
	assert.Contains(t, out, "Pending (0)")
	assert.Contains(t, out, "Confirmed (1)")
	assert.Contains(t, f.run(t, "find 0x0100"), "Asset 0100: ")
	assert.Contains(t, f.run(t, "find"), "Usage")
	assert.Contains(t, f.run(t, "find x"), "Invalid asset")

	assert.Contains(t, f.run(t, "clear"), "Cache cleared")
	assert.Contains(t, f.run(t, "find 0x0100"), "not in cache")

	f.run(t, "use 0x0100")
	assert.Contains(t, f.run(t, "snapshot"), "Tracker model not enabled")
	assert.Contains(t, f.run(t, "clear"), "Tracker model not enabled")
	assert.Contains(t, f.run(t, "find 0x0100"), "Tracker model not enabled")
	assert.Contains(t, f.run(t, "config"), "Tracker model not enabled")
}

func TestShellConfig(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, "config")
	assert.Contains(t, out, "Thresholds:")
	assert.Contains(t, out, "x 30ms")

	out = f.run(t, "config factor=10 thresholds=-40,-60,-80 delete=120 dest=0x0300")
	assert.Contains(t, out, "x 10ms")
	assert.Contains(t, out, "-40 / -60 / -80 dBm")
	assert.Contains(t, out, "Delete after: 120s")
	assert.Contains(t, out, "Reports to:   0300")

	assert.Contains(t, f.run(t, "config thresholds=1,2"), "want three values")
	assert.Contains(t, f.run(t, "config thresholds=a,b,c"), "thresholds")
	assert.Contains(t, f.run(t, "config speed=3"), "unknown key")

	var factor uint8
	require.NoError(t, f.tracker.Do(func() { factor = f.tracker.Tracker().Config().DelayFactor }))
	assert.Equal(t, uint8(10), factor)
}

func TestShellGeneral(t *testing.T) {
	f := newFixture(t)

	assert.Empty(t, f.run(t, "   "))
	assert.Contains(t, f.run(t, "help"), "CSRmesh Node Commands")
	assert.Contains(t, f.run(t, "frobnicate"), "Unknown command: frobnicate")
	assert.False(t, f.shell.Execute("quit"))
}

func TestShellWithoutNodes(t *testing.T) {
	var out bytes.Buffer
	s := New(&out)
	assert.True(t, s.Execute("state"))
	assert.Contains(t, out.String(), "No node selected")
	assert.Equal(t, "mesh> ", s.prompt())
}

func TestShellStoppedNode(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tracker.Stop())
	assert.Contains(t, f.run(t, "snapshot"), "Error:")
}
