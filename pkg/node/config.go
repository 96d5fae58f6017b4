package node

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/csrmesh/csrmesh-go/pkg/asset"
	"github.com/csrmesh/csrmesh-go/pkg/log"
	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/metrics"
	"github.com/csrmesh/csrmesh-go/pkg/timer"
	"github.com/csrmesh/csrmesh-go/pkg/tracker"
)

// Node errors.
var (
	ErrNotStarted     = errors.New("node not started")
	ErrAlreadyStarted = errors.New("node already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Config configures a Node.
type Config struct {
	// DeviceID is the node's mesh address. Must not be 0 or broadcast.
	DeviceID uint16

	// NetworkID selects the mesh network; messages of other networks are dropped.
	NetworkID uint8

	// Groups lists the group addresses this node is a member of.
	Groups []uint16

	// Asset and Tracker enable the model handlers.
	Asset   bool
	Tracker bool

	// Store base offsets of the model state, in words.
	AssetOffset   uint16
	TrackerOffset uint16

	// Tracker cache options.
	MaxCachedAssets  int
	MaxPendingAssets int
	RollingAverage   bool

	// InboxSize bounds the number of queued inbound messages. Messages
	// arriving while the inbox is full are dropped.
	InboxSize int

	// Radio receives the Asset model's transmit power. Nil discards it.
	Radio mesh.Radio

	// Timers overrides the timer service. Nil uses wall-clock timers whose
	// callbacks run on the event loop.
	Timers timer.Service

	// Logger for operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives message and state events. Nil disables it.
	ProtocolLogger log.Logger

	// Metrics collects node activity. Nil disables metrics.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a tracker node configuration with default cache
// sizes. DeviceID must still be set.
func DefaultConfig() Config {
	return Config{
		Tracker:          true,
		AssetOffset:      0,
		TrackerOffset:    16,
		MaxCachedAssets:  tracker.MaxCachedAssets,
		MaxPendingAssets: tracker.MaxPendingAssets,
		InboxSize:        64,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DeviceID == mesh.AddrUnassigned || c.DeviceID == mesh.AddrBroadcast {
		return fmt.Errorf("%w: device id %#04x", ErrInvalidConfig, c.DeviceID)
	}
	if !c.Asset && !c.Tracker {
		return fmt.Errorf("%w: no model enabled", ErrInvalidConfig)
	}
	if c.InboxSize <= 0 {
		return fmt.Errorf("%w: inbox size %d", ErrInvalidConfig, c.InboxSize)
	}
	if c.Asset && c.Tracker && overlaps(c.AssetOffset, asset.StateWords, c.TrackerOffset, tracker.ConfigWords) {
		return fmt.Errorf("%w: asset and tracker store regions overlap", ErrInvalidConfig)
	}
	return nil
}

func overlaps(a uint16, an int, b uint16, bn int) bool {
	return int(a) < int(b)+bn && int(b) < int(a)+an
}
