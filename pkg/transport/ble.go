package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// CSRCompanyID is the Bluetooth SIG company identifier carried in the
// manufacturer data of mesh advertisements.
const CSRCompanyID uint16 = 0x000A

// BLEConfig configures a BLEBearer.
type BLEConfig struct {
	// LocalName is advertised alongside the frame. Optional.
	LocalName string

	// AdvertiseFor is how long each frame stays on air.
	AdvertiseFor time.Duration

	// Interval is the advertising interval while a frame is on air.
	Interval time.Duration

	// QueueSize bounds the frames waiting for the advertiser. Send fails
	// with ErrQueueFull beyond it.
	QueueSize int

	Logger *slog.Logger
}

// DefaultBLEConfig returns typical advertising parameters.
func DefaultBLEConfig() BLEConfig {
	return BLEConfig{
		AdvertiseFor: 60 * time.Millisecond,
		Interval:     20 * time.Millisecond,
		QueueSize:    16,
	}
}

// BLEBearer sends frames as non-connectable advertisements and scans for
// those of other nodes. Frames use the compact encoding because the
// advertisement payload is too small for CBOR.
//
// The adapter holds one advertisement at a time, so frames are queued and
// put on air one after another by a single advertiser goroutine. Send never
// waits for the radio.
type BLEBearer struct {
	cfg     BLEConfig
	adapter *bluetooth.Adapter
	logger  *slog.Logger

	// advertise puts one encoded frame on air and withdraws it after
	// AdvertiseFor or when done closes.
	advertise func(data []byte, done <-chan struct{}) error

	queue chan []byte
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.RWMutex
	recv     Receiver
	started  bool
	scanning bool
	closed   bool
}

// NewBLEBearer creates a bearer on the default adapter.
func NewBLEBearer(cfg BLEConfig) *BLEBearer {
	def := DefaultBLEConfig()
	if cfg.AdvertiseFor <= 0 {
		cfg.AdvertiseFor = def.AdvertiseFor
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &BLEBearer{
		cfg:     cfg,
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		queue:   make(chan []byte, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	b.advertise = b.advertiseFrame
	return b
}

// Start enables the adapter, begins scanning and starts the advertiser.
func (b *BLEBearer) Start(recv Receiver) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.recv = recv
	b.mu.Unlock()

	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enable BLE adapter: %w", err)
	}

	b.mu.Lock()
	b.scanning = true
	b.mu.Unlock()
	go func() {
		err := b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			b.onScan(result)
		})
		if err != nil && !b.isClosed() {
			b.logger.Error("ble: scan stopped", "error", err)
		}
	}()
	b.startAdvertiser()
	return nil
}

// Send queues msg for advertising and returns at once. Frames queued
// before Start go on air once the bearer starts.
func (b *BLEBearer) Send(msg mesh.Message) error {
	if b.isClosed() {
		return ErrClosed
	}
	data, err := wire.EncodeCompact(msg.ToFrame())
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	select {
	case b.queue <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops scanning and the advertiser. Queued frames are dropped.
func (b *BLEBearer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.recv = nil
	scanning := b.scanning
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
	if !scanning {
		return nil
	}
	return b.adapter.StopScan()
}

func (b *BLEBearer) startAdvertiser() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	b.wg.Add(1)
	go b.runAdvertiser()
}

func (b *BLEBearer) runAdvertiser() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case data := <-b.queue:
			if err := b.advertise(data, b.done); err != nil {
				b.logger.Warn("ble: advertise failed", "error", err)
			}
		}
	}
}

func (b *BLEBearer) advertiseFrame(data []byte, done <-chan struct{}) error {
	adv := b.adapter.DefaultAdvertisement()
	err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName: b.cfg.LocalName,
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: CSRCompanyID, Data: data},
		},
		Interval: bluetooth.NewDuration(b.cfg.Interval),
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("start advertisement: %w", err)
	}
	t := time.NewTimer(b.cfg.AdvertiseFor)
	select {
	case <-t.C:
	case <-done:
		t.Stop()
	}
	if err := adv.Stop(); err != nil {
		return fmt.Errorf("stop advertisement: %w", err)
	}
	return nil
}

func (b *BLEBearer) onScan(result bluetooth.ScanResult) {
	b.mu.RLock()
	recv := b.recv
	b.mu.RUnlock()
	if recv == nil {
		return
	}
	for _, md := range result.ManufacturerData() {
		msg, ok := decodeAdvertisement(md.CompanyID, md.Data, result.RSSI)
		if !ok {
			continue
		}
		recv(msg)
	}
}

// decodeAdvertisement extracts a mesh message from one manufacturer data
// element. Elements of other vendors and malformed frames are skipped.
func decodeAdvertisement(companyID uint16, data []byte, rssi int16) (mesh.Message, bool) {
	if companyID != CSRCompanyID {
		return mesh.Message{}, false
	}
	f, err := wire.DecodeCompact(data)
	if err != nil {
		return mesh.Message{}, false
	}
	return mesh.FromFrame(f, clampScanRSSI(rssi)), true
}

func clampScanRSSI(rssi int16) int8 {
	switch {
	case rssi < -128:
		return -128
	case rssi > 127:
		return 127
	}
	return int8(rssi)
}

func (b *BLEBearer) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

var _ Bearer = (*BLEBearer)(nil)
