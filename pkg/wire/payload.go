package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload is returned when a payload is shorter than its layout.
var ErrShortPayload = errors.New("payload too short")

// Payload sizes in bytes.
const (
	AssetStateSize                = 10
	AssetGetStateSize             = 1
	AssetAnnounceSize             = 9
	TrackerFindSize               = 3
	TrackerFoundSize              = 9
	TrackerReportSize             = 8
	TrackerClearCacheSize         = 0
	TrackerSetProximityConfigSize = 9
)

var le = binary.LittleEndian

func need(b []byte, n int, what string) error {
	if len(b) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortPayload, what, n, len(b))
	}
	return nil
}

// AssetState is the payload of ASSET_SET_STATE and ASSET_STATE.
//
//	interval(u16) sideEffects(u16) toDestinationId(u16) txPower(i8)
//	numAnnounces(u8) announceInterval(u8) tid(u8)
type AssetState struct {
	Interval         uint16
	SideEffects      uint16
	ToDestinationID  uint16
	TxPower          int8
	NumAnnounces     uint8
	AnnounceInterval uint8
	TransactionID    uint8
}

// MarshalBinary encodes the payload.
func (m *AssetState) MarshalBinary() ([]byte, error) {
	b := make([]byte, AssetStateSize)
	le.PutUint16(b[0:], m.Interval)
	le.PutUint16(b[2:], m.SideEffects)
	le.PutUint16(b[4:], m.ToDestinationID)
	b[6] = byte(m.TxPower)
	b[7] = m.NumAnnounces
	b[8] = m.AnnounceInterval
	b[9] = m.TransactionID
	return b, nil
}

// UnmarshalBinary decodes the payload.
func (m *AssetState) UnmarshalBinary(b []byte) error {
	if err := need(b, AssetStateSize, "ASSET_STATE"); err != nil {
		return err
	}
	m.Interval = le.Uint16(b[0:])
	m.SideEffects = le.Uint16(b[2:])
	m.ToDestinationID = le.Uint16(b[4:])
	m.TxPower = int8(b[6])
	m.NumAnnounces = b[7]
	m.AnnounceInterval = b[8]
	m.TransactionID = b[9]
	return nil
}

// AssetGetState is the payload of ASSET_GET_STATE.
type AssetGetState struct {
	TransactionID uint8
}

// MarshalBinary encodes the payload.
func (m *AssetGetState) MarshalBinary() ([]byte, error) {
	return []byte{m.TransactionID}, nil
}

// UnmarshalBinary decodes the payload.
func (m *AssetGetState) UnmarshalBinary(b []byte) error {
	if err := need(b, AssetGetStateSize, "ASSET_GET_STATE"); err != nil {
		return err
	}
	m.TransactionID = b[0]
	return nil
}

// AssetAnnounce is the payload of ASSET_ANNOUNCE. Same layout as
// AssetState without the transaction id.
type AssetAnnounce struct {
	Interval         uint16
	SideEffects      uint16
	ToDestinationID  uint16
	TxPower          int8
	NumAnnounces     uint8
	AnnounceInterval uint8
}

// MarshalBinary encodes the payload.
func (m *AssetAnnounce) MarshalBinary() ([]byte, error) {
	b := make([]byte, AssetAnnounceSize)
	le.PutUint16(b[0:], m.Interval)
	le.PutUint16(b[2:], m.SideEffects)
	le.PutUint16(b[4:], m.ToDestinationID)
	b[6] = byte(m.TxPower)
	b[7] = m.NumAnnounces
	b[8] = m.AnnounceInterval
	return b, nil
}

// UnmarshalBinary decodes the payload.
func (m *AssetAnnounce) UnmarshalBinary(b []byte) error {
	if err := need(b, AssetAnnounceSize, "ASSET_ANNOUNCE"); err != nil {
		return err
	}
	m.Interval = le.Uint16(b[0:])
	m.SideEffects = le.Uint16(b[2:])
	m.ToDestinationID = le.Uint16(b[4:])
	m.TxPower = int8(b[6])
	m.NumAnnounces = b[7]
	m.AnnounceInterval = b[8]
	return nil
}

// TrackerFind is the payload of TRACKER_FIND.
type TrackerFind struct {
	AssetDeviceID uint16
	TransactionID uint8
}

// MarshalBinary encodes the payload.
func (m *TrackerFind) MarshalBinary() ([]byte, error) {
	b := make([]byte, TrackerFindSize)
	le.PutUint16(b[0:], m.AssetDeviceID)
	b[2] = m.TransactionID
	return b, nil
}

// UnmarshalBinary decodes the payload.
func (m *TrackerFind) UnmarshalBinary(b []byte) error {
	if err := need(b, TrackerFindSize, "TRACKER_FIND"); err != nil {
		return err
	}
	m.AssetDeviceID = le.Uint16(b[0:])
	m.TransactionID = b[2]
	return nil
}

// TrackerFound is the payload of TRACKER_FOUND.
//
//	assetDeviceId(u16) rssi(i8) zone(u8) ageSeconds(u16) sideEffects(u16) tid(u8)
type TrackerFound struct {
	AssetDeviceID uint16
	RSSI          int8
	Zone          uint8
	AgeSeconds    uint16
	SideEffects   uint16
	TransactionID uint8
}

// MarshalBinary encodes the payload.
func (m *TrackerFound) MarshalBinary() ([]byte, error) {
	b := make([]byte, TrackerFoundSize)
	le.PutUint16(b[0:], m.AssetDeviceID)
	b[2] = byte(m.RSSI)
	b[3] = m.Zone
	le.PutUint16(b[4:], m.AgeSeconds)
	le.PutUint16(b[6:], m.SideEffects)
	b[8] = m.TransactionID
	return b, nil
}

// UnmarshalBinary decodes the payload.
func (m *TrackerFound) UnmarshalBinary(b []byte) error {
	if err := need(b, TrackerFoundSize, "TRACKER_FOUND"); err != nil {
		return err
	}
	m.AssetDeviceID = le.Uint16(b[0:])
	m.RSSI = int8(b[2])
	m.Zone = b[3]
	m.AgeSeconds = le.Uint16(b[4:])
	m.SideEffects = le.Uint16(b[6:])
	m.TransactionID = b[8]
	return nil
}

// TrackerReport is the payload of TRACKER_REPORT. Same layout as
// TrackerFound without the transaction id.
type TrackerReport struct {
	AssetDeviceID uint16
	RSSI          int8
	Zone          uint8
	AgeSeconds    uint16
	SideEffects   uint16
}

// MarshalBinary encodes the payload.
func (m *TrackerReport) MarshalBinary() ([]byte, error) {
	b := make([]byte, TrackerReportSize)
	le.PutUint16(b[0:], m.AssetDeviceID)
	b[2] = byte(m.RSSI)
	b[3] = m.Zone
	le.PutUint16(b[4:], m.AgeSeconds)
	le.PutUint16(b[6:], m.SideEffects)
	return b, nil
}

// UnmarshalBinary decodes the payload.
func (m *TrackerReport) UnmarshalBinary(b []byte) error {
	if err := need(b, TrackerReportSize, "TRACKER_REPORT"); err != nil {
		return err
	}
	m.AssetDeviceID = le.Uint16(b[0:])
	m.RSSI = int8(b[2])
	m.Zone = b[3]
	m.AgeSeconds = le.Uint16(b[4:])
	m.SideEffects = le.Uint16(b[6:])
	return nil
}

// TrackerClearCache is the empty payload of TRACKER_CLEAR_CACHE.
type TrackerClearCache struct{}

// MarshalBinary encodes the payload.
func (m *TrackerClearCache) MarshalBinary() ([]byte, error) {
	return []byte{}, nil
}

// UnmarshalBinary decodes the payload.
func (m *TrackerClearCache) UnmarshalBinary([]byte) error {
	return nil
}

// TrackerSetProximityConfig is the payload of TRACKER_SET_PROXIMITY_CONFIG.
//
//	zone0Threshold(i8) zone1Threshold(i8) zone2Threshold(i8)
//	cacheDeleteInterval(u16) delayOffset(u8) delayFactor(u8) reportDest(u16)
type TrackerSetProximityConfig struct {
	ZoneThresholds      [3]int8
	CacheDeleteInterval uint16
	DelayOffset         uint8
	DelayFactor         uint8
	ReportDestination   uint16
}

// MarshalBinary encodes the payload.
func (m *TrackerSetProximityConfig) MarshalBinary() ([]byte, error) {
	b := make([]byte, TrackerSetProximityConfigSize)
	for i, th := range m.ZoneThresholds {
		b[i] = byte(th)
	}
	le.PutUint16(b[3:], m.CacheDeleteInterval)
	b[5] = m.DelayOffset
	b[6] = m.DelayFactor
	le.PutUint16(b[7:], m.ReportDestination)
	return b, nil
}

// UnmarshalBinary decodes the payload.
func (m *TrackerSetProximityConfig) UnmarshalBinary(b []byte) error {
	if err := need(b, TrackerSetProximityConfigSize, "TRACKER_SET_PROXIMITY_CONFIG"); err != nil {
		return err
	}
	for i := range m.ZoneThresholds {
		m.ZoneThresholds[i] = int8(b[i])
	}
	m.CacheDeleteInterval = le.Uint16(b[3:])
	m.DelayOffset = b[5]
	m.DelayFactor = b[6]
	m.ReportDestination = le.Uint16(b[7:])
	return nil
}
