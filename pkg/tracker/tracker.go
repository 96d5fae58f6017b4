package tracker

import (
	"encoding"
	"errors"
	"log/slog"
	"time"

	"github.com/csrmesh/csrmesh-go/pkg/log"
	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/metrics"
	"github.com/csrmesh/csrmesh-go/pkg/store"
	"github.com/csrmesh/csrmesh-go/pkg/timer"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// Default cache capacities.
const (
	MaxCachedAssets  = 8
	MaxPendingAssets = 8
)

// agingPeriod is the period of the cache-aging tick.
const agingPeriod = time.Second

// Tracker errors.
var (
	ErrNoTimers = errors.New("tracker: timer service required")
	ErrNoSender = errors.New("tracker: sender required")
)

// Options configures a Tracker.
type Options struct {
	// Timers drives the pending-delay and aging ticks. Required.
	Timers timer.Service

	// Sender transmits reports and find responses. Required.
	Sender mesh.Sender

	// Store persists the proximity configuration at BaseOffset. Nil
	// disables persistence.
	Store      store.Store
	BaseOffset uint16

	// Cache capacities. Zero uses MaxCachedAssets and MaxPendingAssets.
	MaxCachedAssets  int
	MaxPendingAssets int

	// RollingAverage averages RSSI over repeated pending sightings instead
	// of keeping the latest value.
	RollingAverage bool

	// Logger for operational logs. Nil disables logging.
	Logger *slog.Logger

	// Events receives cache transitions. Nil disables the protocol log.
	Events log.Logger

	Metrics *metrics.Metrics
}

// Tracker is the Tracker model handler.
type Tracker struct {
	opts   Options
	logger *slog.Logger
	events log.Logger

	cfg       ProximityConfig
	pending   *cache
	confirmed *cache

	ticks   uint16 // pending-delay ticks
	seconds uint16 // aging ticks

	tickSlot  *timer.Slot
	agingSlot *timer.Slot
}

// New creates a tracker with the default configuration and empty caches.
func New(opts Options) (*Tracker, error) {
	if opts.Timers == nil {
		return nil, ErrNoTimers
	}
	if opts.Sender == nil {
		return nil, ErrNoSender
	}
	if opts.MaxCachedAssets <= 0 {
		opts.MaxCachedAssets = MaxCachedAssets
	}
	if opts.MaxPendingAssets <= 0 {
		opts.MaxPendingAssets = MaxPendingAssets
	}

	t := &Tracker{
		opts:      opts,
		logger:    opts.Logger,
		events:    log.OrNoop(opts.Events),
		cfg:       DefaultProximityConfig(),
		pending:   newCache(opts.MaxPendingAssets),
		confirmed: newCache(opts.MaxCachedAssets),
		tickSlot:  timer.NewSlot(opts.Timers),
		agingSlot: timer.NewSlot(opts.Timers),
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	return t, nil
}

// Opcodes returns the opcodes handled by HandleMessage.
func (t *Tracker) Opcodes() []wire.Opcode {
	return []wire.Opcode{
		wire.OpAssetAnnounce,
		wire.OpTrackerReport,
		wire.OpTrackerFind,
		wire.OpTrackerClearCache,
		wire.OpTrackerSetProximityConfig,
	}
}

// Load reads the proximity configuration from the store. If the store
// holds none, the defaults are written.
func (t *Tracker) Load() error {
	if t.opts.Store == nil {
		return nil
	}
	cfg, ok, err := ReadConfig(t.opts.Store, t.opts.BaseOffset)
	if err != nil {
		return err
	}
	if !ok {
		return WriteConfig(t.opts.Store, t.opts.BaseOffset, t.cfg)
	}
	t.cfg = cfg
	return nil
}

// Config returns the current proximity configuration.
func (t *Tracker) Config() ProximityConfig {
	return t.cfg
}

// Snapshot is a copy of the tracker's caches and counters.
type Snapshot struct {
	Pending   []Entry
	Confirmed []Entry
	Ticks     uint16
	Seconds   uint16
}

// Snapshot returns the occupied entries of both caches.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Pending:   t.pending.occupied(),
		Confirmed: t.confirmed.occupied(),
		Ticks:     t.ticks,
		Seconds:   t.seconds,
	}
}

// HandleMessage dispatches the tracker's inbound opcodes. Malformed
// payloads and other opcodes are ignored.
func (t *Tracker) HandleMessage(msg mesh.Message) {
	switch msg.Opcode {
	case wire.OpAssetAnnounce:
		var p wire.AssetAnnounce
		if t.decode(msg, &p) {
			t.OnAssetAnnounce(msg.Src, msg.RSSI, p.SideEffects)
		}

	case wire.OpTrackerReport:
		var p wire.TrackerReport
		if t.decode(msg, &p) {
			t.OnTrackerReport(&p)
		}

	case wire.OpTrackerFind:
		var p wire.TrackerFind
		if !t.decode(msg, &p) {
			return
		}
		if found, ok := t.OnTrackerFind(p.AssetDeviceID, p.TransactionID); ok {
			t.send(msg.Src, wire.OpTrackerFound, found)
		}

	case wire.OpTrackerClearCache:
		t.OnTrackerClearCache()

	case wire.OpTrackerSetProximityConfig:
		var p wire.TrackerSetProximityConfig
		if t.decode(msg, &p) {
			t.OnSetProximityConfig(ConfigFromWire(&p))
		}
	}
}

func (t *Tracker) decode(msg mesh.Message, p encoding.BinaryUnmarshaler) bool {
	if err := p.UnmarshalBinary(msg.Payload); err != nil {
		t.logger.Debug("dropping message", "opcode", msg.Opcode, "src", msg.Src, "error", err)
		return false
	}
	return true
}

// OnAssetAnnounce records a sighting of asset src.
func (t *Tracker) OnAssetAnnounce(src uint16, rssi int8, sideEffects uint16) {
	if src == mesh.AddrUnassigned {
		return
	}
	rssi = clampRSSI(rssi)

	if e := t.pending.find(src); e != nil {
		t.sample(e, rssi)
		e.LastHeardAt = t.seconds
	} else {
		e, displaced := t.pending.alloc(t.seconds)
		if !displaced.free() {
			t.evicted(metrics.CachePending, displaced.DeviceID, "displaced")
		}
		*e = Entry{
			DeviceID:    src,
			Status:      StatusActive,
			RSSI:        rssi,
			SampleCount: 1,
			SideEffects: sideEffects,
			LastHeardAt: t.seconds,
			DeleteAt:    t.ticks + t.reportDelay(rssi),
		}
		t.transition(src, "", "PENDING", "announce heard")
	}

	if c := t.confirmed.find(src); c != nil {
		c.RSSI = rssi
		c.Zone = classifyZone(rssi, t.cfg.ZoneThresholds)
		c.SideEffects = sideEffects
		c.LastHeardAt = t.seconds
		c.DeleteAt = t.expiry()
	}

	if !t.tickSlot.Active() {
		t.armTick()
	}
	if !t.agingSlot.Active() {
		t.armAging()
	}
	t.updateGauges()
}

// reportDelay is the number of ticks a sighting waits before promotion.
// Stronger signals wait less.
func (t *Tracker) reportDelay(rssi int8) uint16 {
	return uint16(int(t.cfg.DelayOffset) - int(rssi))
}

func (t *Tracker) sample(e *Entry, rssi int8) {
	if t.opts.RollingAverage {
		n := int(e.SampleCount)
		e.RSSI = int8((int(rssi) + int(e.RSSI)*n) / (n + 1))
	} else {
		e.RSSI = rssi
	}
	if e.SampleCount < 0xFFFF {
		e.SampleCount++
	}
}

func (t *Tracker) onPendingTick() {
	t.ticks++

	for i := range t.pending.entries {
		e := &t.pending.entries[i]
		if e.free() || e.DeleteAt != t.ticks {
			continue
		}
		if e.Status == StatusMarkedForDelete {
			t.opts.Metrics.Suppressed()
			t.transition(e.DeviceID, e.Status.String(), "DISCARDED", "peer reported stronger signal")
		} else {
			t.promote(e)
		}
		*e = Entry{}
	}

	if t.pending.len() > 0 {
		t.armTick()
	}
	t.updateGauges()
}

// promote moves a pending sighting into the confirmed cache and reports it.
func (t *Tracker) promote(p *Entry) {
	c := t.confirmed.find(p.DeviceID)
	if c == nil {
		var displaced Entry
		c, displaced = t.confirmed.alloc(t.seconds)
		if !displaced.free() {
			t.evicted(metrics.CacheConfirmed, displaced.DeviceID, "displaced")
		}
	}
	*c = Entry{
		DeviceID:    p.DeviceID,
		Zone:        classifyZone(p.RSSI, t.cfg.ZoneThresholds),
		Status:      StatusActive,
		RSSI:        p.RSSI,
		LastHeardAt: p.LastHeardAt,
		SampleCount: p.SampleCount,
		SideEffects: p.SideEffects,
		DeleteAt:    t.expiry(),
	}
	t.transition(c.DeviceID, "PENDING", "CONFIRMED", c.Zone.String())

	report := &wire.TrackerReport{
		AssetDeviceID: c.DeviceID,
		RSSI:          c.RSSI,
		Zone:          uint8(c.Zone),
		AgeSeconds:    wrappingElapsed(t.seconds, c.LastHeardAt, counterLimit),
		SideEffects:   c.SideEffects,
	}
	if t.send(t.cfg.ReportDestination, wire.OpTrackerReport, report) {
		t.opts.Metrics.Report()
	}
}

// expiry is the aging count at which a confirmed entry heard now is
// evicted. The counter is 16 bits wide, so an interval that wraps to zero
// would otherwise keep the entry for a full counter cycle; it expires on
// the next aging tick instead.
func (t *Tracker) expiry() uint16 {
	d := uint16(t.cfg.DeleteInterval)
	if d == 0 {
		d = 1
	}
	return t.seconds + d
}

func (t *Tracker) onAgingTick() {
	t.seconds++

	for i := range t.confirmed.entries {
		e := &t.confirmed.entries[i]
		if e.free() || e.DeleteAt != t.seconds {
			continue
		}
		t.evicted(metrics.CacheConfirmed, e.DeviceID, "aged")
		*e = Entry{}
	}

	if t.pending.len() > 0 || t.confirmed.len() > 0 {
		t.armAging()
	} else {
		t.seconds = 0
	}
	t.updateGauges()
}

// OnTrackerReport handles a peer's report. A stronger peer signal
// suppresses our pending report and displaces our confirmed entry.
func (t *Tracker) OnTrackerReport(r *wire.TrackerReport) {
	peer := clampRSSI(r.RSSI)

	if p := t.pending.find(r.AssetDeviceID); p != nil && peer > p.RSSI && p.Status != StatusMarkedForDelete {
		p.Status = StatusMarkedForDelete
		t.transition(p.DeviceID, "PENDING", p.Status.String(), "peer reported stronger signal")
	}
	if c := t.confirmed.find(r.AssetDeviceID); c != nil && peer > c.RSSI {
		t.evicted(metrics.CacheConfirmed, c.DeviceID, "superseded")
		*c = Entry{}
		t.updateGauges()
	}
}

// OnTrackerFind looks up an asset in the confirmed cache.
func (t *Tracker) OnTrackerFind(assetID uint16, tid uint8) (*wire.TrackerFound, bool) {
	c := t.confirmed.find(assetID)
	if c == nil {
		return nil, false
	}
	return &wire.TrackerFound{
		AssetDeviceID: c.DeviceID,
		RSSI:          c.RSSI,
		Zone:          uint8(c.Zone),
		AgeSeconds:    wrappingElapsed(t.seconds, c.LastHeardAt, counterLimit),
		SideEffects:   c.SideEffects,
		TransactionID: tid,
	}, true
}

// OnTrackerClearCache empties both caches and stops both timers.
func (t *Tracker) OnTrackerClearCache() {
	t.tickSlot.Cancel()
	t.agingSlot.Cancel()
	t.pending.clear()
	t.confirmed.clear()
	t.ticks, t.seconds = 0, 0
	t.transition(0, "", "CLEARED", "clear cache")
	t.updateGauges()
}

// OnSetProximityConfig replaces the configuration and persists it.
// Entries already cached keep their deadlines.
func (t *Tracker) OnSetProximityConfig(cfg ProximityConfig) {
	t.cfg = cfg
	if t.opts.Store == nil {
		return
	}
	if err := WriteConfig(t.opts.Store, t.opts.BaseOffset, cfg); err != nil {
		t.logger.Warn("persist tracker config", "offset", t.opts.BaseOffset, "error", err)
	}
}

// Stop cancels both timers. Cache contents are kept.
func (t *Tracker) Stop() {
	t.tickSlot.Cancel()
	t.agingSlot.Cancel()
}

func (t *Tracker) tickPeriod() time.Duration {
	f := t.cfg.DelayFactor
	if f == 0 {
		f = DefaultDelayFactor
	}
	return time.Duration(f) * time.Millisecond
}

func (t *Tracker) armTick() {
	if err := t.tickSlot.Arm(t.tickPeriod(), t.onPendingTick); err != nil {
		t.logger.Warn("pending tick not armed", "error", err)
	}
}

func (t *Tracker) armAging() {
	if err := t.agingSlot.Arm(agingPeriod, t.onAgingTick); err != nil {
		t.logger.Warn("aging tick not armed", "error", err)
	}
}

func (t *Tracker) send(dst uint16, op wire.Opcode, payload encoding.BinaryMarshaler) bool {
	msg, err := mesh.NewMessage(dst, mesh.DefaultTTL, op, payload)
	if err != nil {
		t.logger.Error("encode message", "opcode", op, "error", err)
		return false
	}
	if err := t.opts.Sender.Send(msg); err != nil {
		t.logger.Warn("send message", "opcode", op, "dst", dst, "error", err)
		return false
	}
	return true
}

func (t *Tracker) evicted(cache string, deviceID uint16, reason string) {
	t.opts.Metrics.Evicted(cache, reason)
	t.transition(deviceID, cache, "EVICTED", reason)
}

func (t *Tracker) transition(assetID uint16, from, to, reason string) {
	t.logger.Debug("tracker entry", "asset", assetID, "from", from, "to", to, "reason", reason)
	t.events.Log(log.StateChange(log.ModelTracker, assetID, from, to, reason))
}

func (t *Tracker) updateGauges() {
	t.opts.Metrics.SetCacheEntries(metrics.CachePending, t.pending.len())
	t.opts.Metrics.SetCacheEntries(metrics.CacheConfirmed, t.confirmed.len())
}

// Compile-time interface satisfaction check.
var _ mesh.Handler = (*Tracker)(nil)
