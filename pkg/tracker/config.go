package tracker

import (
	"fmt"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/store"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// Default proximity configuration.
const (
	DefaultDeleteInterval = 600 // seconds
	DefaultDelayOffset    = 60
	DefaultDelayFactor    = 30 // ms per pending-delay tick
)

// DefaultZoneThresholds are the Immediate, Near and Distant RSSI thresholds in dBm.
var DefaultZoneThresholds = [3]int8{-60, -83, -100}

// ProximityConfig is the persisted Tracker model configuration.
type ProximityConfig struct {
	// ZoneThresholds in dBm, expected strictly decreasing. Not enforced.
	ZoneThresholds [3]int8

	// DeleteInterval is how long a confirmed entry lives without a new
	// sighting, in seconds. Only the low 16 bits count; zero expires the
	// entry at the next aging tick.
	DeleteInterval uint32

	// ReportDestination receives TRACKER_REPORT messages.
	ReportDestination uint16

	// DelayOffset and DelayFactor shape the report race: a sighting with
	// rssi r waits (DelayOffset - r) ticks of DelayFactor ms each.
	DelayOffset uint8
	DelayFactor uint8
}

// DefaultProximityConfig returns the factory configuration.
func DefaultProximityConfig() ProximityConfig {
	return ProximityConfig{
		ZoneThresholds:    DefaultZoneThresholds,
		DeleteInterval:    DefaultDeleteInterval,
		ReportDestination: mesh.AddrBroadcast,
		DelayOffset:       DefaultDelayOffset,
		DelayFactor:       DefaultDelayFactor,
	}
}

// ConfigFromWire converts a TRACKER_SET_PROXIMITY_CONFIG payload.
func ConfigFromWire(m *wire.TrackerSetProximityConfig) ProximityConfig {
	return ProximityConfig{
		ZoneThresholds:    m.ZoneThresholds,
		DeleteInterval:    uint32(m.CacheDeleteInterval),
		ReportDestination: m.ReportDestination,
		DelayOffset:       m.DelayOffset,
		DelayFactor:       m.DelayFactor,
	}
}

// Wire returns c as a TRACKER_SET_PROXIMITY_CONFIG payload. The delete
// interval is truncated to 16 bits.
func (c ProximityConfig) Wire() *wire.TrackerSetProximityConfig {
	return &wire.TrackerSetProximityConfig{
		ZoneThresholds:      c.ZoneThresholds,
		CacheDeleteInterval: uint16(c.DeleteInterval),
		DelayOffset:         c.DelayOffset,
		DelayFactor:         c.DelayFactor,
		ReportDestination:   c.ReportDestination,
	}
}

// ConfigWords is the number of store words occupied by the Tracker model.
const ConfigWords = 8

// Word offsets relative to the model's base offset.
const (
	wordThresholds     = 0 // three words, int8 sign-extended
	wordDeleteInterval = 3 // u32, low word first
	wordReportDest     = 5
	wordDelayOffset    = 6
	wordDelayFactor    = 7
)

// EncodeConfig lays c out in store words.
func EncodeConfig(c ProximityConfig) [ConfigWords]uint16 {
	var w [ConfigWords]uint16
	for i, th := range c.ZoneThresholds {
		w[wordThresholds+i] = uint16(int16(th))
	}
	w[wordDeleteInterval] = uint16(c.DeleteInterval)
	w[wordDeleteInterval+1] = uint16(c.DeleteInterval >> 16)
	w[wordReportDest] = c.ReportDestination
	w[wordDelayOffset] = uint16(c.DelayOffset)
	w[wordDelayFactor] = uint16(c.DelayFactor)
	return w
}

// DecodeConfig is the inverse of EncodeConfig.
func DecodeConfig(w [ConfigWords]uint16) ProximityConfig {
	var c ProximityConfig
	for i := range c.ZoneThresholds {
		c.ZoneThresholds[i] = int8(int16(w[wordThresholds+i]))
	}
	c.DeleteInterval = uint32(w[wordDeleteInterval]) | uint32(w[wordDeleteInterval+1])<<16
	c.ReportDestination = w[wordReportDest]
	c.DelayOffset = uint8(w[wordDelayOffset])
	c.DelayFactor = uint8(w[wordDelayFactor])
	return c
}

// WriteConfig persists c at offset.
func WriteConfig(st store.Store, offset uint16, c ProximityConfig) error {
	w := EncodeConfig(c)
	if err := st.Write(offset, w[:]); err != nil {
		return fmt.Errorf("write tracker config: %w", err)
	}
	return nil
}

// ReadConfig reads the configuration persisted at offset. The second
// result is false if the words are all zero, meaning nothing was stored.
func ReadConfig(st store.Store, offset uint16) (ProximityConfig, bool, error) {
	var w [ConfigWords]uint16
	if err := st.Read(offset, w[:]); err != nil {
		return ProximityConfig{}, false, fmt.Errorf("read tracker config: %w", err)
	}
	if w == ([ConfigWords]uint16{}) {
		return ProximityConfig{}, false, nil
	}
	return DecodeConfig(w), true, nil
}
