package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

func TestDecodeAdvertisement(t *testing.T) {
	data, err := wire.EncodeCompact(announce(5, mesh.AddrBroadcast).ToFrame())
	require.NoError(t, err)

	msg, ok := decodeAdvertisement(CSRCompanyID, data, -77)
	require.True(t, ok)
	assert.Equal(t, uint16(5), msg.Src)
	assert.Equal(t, mesh.AddrBroadcast, msg.Dst)
	assert.Equal(t, int8(-77), msg.RSSI)
	assert.Equal(t, []byte{1, 2, 3}, msg.Payload)

	_, ok = decodeAdvertisement(0x004C, data, -77)
	assert.False(t, ok, "other vendors are ignored")

	_, ok = decodeAdvertisement(CSRCompanyID, data[:3], -77)
	assert.False(t, ok, "truncated frames are ignored")
}

func TestClampScanRSSI(t *testing.T) {
	assert.Equal(t, int8(-128), clampScanRSSI(-200))
	assert.Equal(t, int8(127), clampScanRSSI(300))
	assert.Equal(t, int8(-65), clampScanRSSI(-65))
}

// newQueuedBLEBearer returns a bearer whose advertiser records frames on
// aired instead of driving an adapter. Each frame stays on air until
// release is signalled or the bearer closes.
func newQueuedBLEBearer(t *testing.T, queueSize int) (*BLEBearer, chan []byte, chan struct{}) {
	t.Helper()
	b := NewBLEBearer(BLEConfig{AdvertiseFor: time.Hour, QueueSize: queueSize})
	aired := make(chan []byte, 16)
	release := make(chan struct{})
	b.advertise = func(data []byte, done <-chan struct{}) error {
		aired <- data
		select {
		case <-release:
		case <-done:
		}
		return nil
	}
	b.startAdvertiser()
	t.Cleanup(func() { _ = b.Close() })
	return b, aired, release
}

func TestBLEBearerSendDoesNotWaitForAirtime(t *testing.T) {
	b, aired, release := newQueuedBLEBearer(t, 4)

	start := time.Now()
	for i := uint16(1); i <= 3; i++ {
		require.NoError(t, b.Send(announce(i, mesh.AddrBroadcast)))
	}
	assert.Less(t, time.Since(start), time.Second, "Send must not hold for AdvertiseFor")

	for i := uint16(1); i <= 3; i++ {
		select {
		case data := <-aired:
			f, err := wire.DecodeCompact(data)
			require.NoError(t, err)
			assert.Equal(t, i, mesh.FromFrame(f, 0).Src, "frames go on air in send order")
		case <-time.After(time.Second):
			t.Fatalf("frame %d never advertised", i)
		}
		if i < 3 {
			release <- struct{}{}
		}
	}
}

func TestBLEBearerQueueFull(t *testing.T) {
	b, aired, _ := newQueuedBLEBearer(t, 1)

	require.NoError(t, b.Send(announce(1, mesh.AddrBroadcast)))
	<-aired // first frame is on air and holds the advertiser

	require.NoError(t, b.Send(announce(2, mesh.AddrBroadcast)))
	assert.ErrorIs(t, b.Send(announce(3, mesh.AddrBroadcast)), ErrQueueFull)
}

func TestBLEBearerSendAfterClose(t *testing.T) {
	b, _, _ := newQueuedBLEBearer(t, 1)
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Send(announce(1, mesh.AddrBroadcast)), ErrClosed)
}
