package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcode identifies a model message.
type Opcode uint16

// Asset model opcodes.
const (
	OpAssetSetState Opcode = 0x8204
	OpAssetGetState Opcode = 0x8205
	OpAssetState    Opcode = 0x8206
	OpAssetAnnounce Opcode = 0x8207
)

// Tracker model opcodes.
const (
	OpTrackerFind               Opcode = 0x8210
	OpTrackerFound              Opcode = 0x8211
	OpTrackerReport             Opcode = 0x8212
	OpTrackerClearCache         Opcode = 0x8213
	OpTrackerSetProximityConfig Opcode = 0x8214
)

// String returns the opcode name.
func (o Opcode) String() string {
	switch o {
	case OpAssetSetState:
		return "ASSET_SET_STATE"
	case OpAssetGetState:
		return "ASSET_GET_STATE"
	case OpAssetState:
		return "ASSET_STATE"
	case OpAssetAnnounce:
		return "ASSET_ANNOUNCE"
	case OpTrackerFind:
		return "TRACKER_FIND"
	case OpTrackerFound:
		return "TRACKER_FOUND"
	case OpTrackerReport:
		return "TRACKER_REPORT"
	case OpTrackerClearCache:
		return "TRACKER_CLEAR_CACHE"
	case OpTrackerSetProximityConfig:
		return "TRACKER_SET_PROXIMITY_CONFIG"
	default:
		return fmt.Sprintf("OPCODE_%04X", uint16(o))
	}
}

// IsAsset reports whether the opcode belongs to the Asset model.
func (o Opcode) IsAsset() bool {
	return o >= OpAssetSetState && o <= OpAssetAnnounce
}

// IsTracker reports whether the opcode belongs to the Tracker model.
func (o Opcode) IsTracker() bool {
	return o >= OpTrackerFind && o <= OpTrackerSetProximityConfig
}

// Opcodes lists every known opcode.
func Opcodes() []Opcode {
	return []Opcode{
		OpAssetSetState, OpAssetGetState, OpAssetState, OpAssetAnnounce,
		OpTrackerFind, OpTrackerFound, OpTrackerReport,
		OpTrackerClearCache, OpTrackerSetProximityConfig,
	}
}

// ParseOpcode accepts an opcode name (case-insensitive) or a hex value
// such as 0x8207.
func ParseOpcode(s string) (Opcode, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, op := range Opcodes() {
		if op.String() == name {
			return op, nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("unknown opcode %q", s)
	}
	return Opcode(v), nil
}
