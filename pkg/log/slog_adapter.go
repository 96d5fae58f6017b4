package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
		slog.Int("device_id", int(event.DeviceID)),
	}

	switch {
	case event.Message != nil:
		attrs = append(attrs,
			slog.String("opcode", event.Message.Opcode.String()),
			slog.Int("src", int(event.Message.Src)),
			slog.Int("dst", int(event.Message.Dst)),
			slog.Int("ttl", int(event.Message.TTL)),
		)
		if event.Direction == DirectionIn {
			attrs = append(attrs, slog.Int("rssi", int(event.Message.RSSI)))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("model", event.StateChange.Model.String()),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.AssetID != 0 {
			attrs = append(attrs, slog.Int("asset_id", int(event.StateChange.AssetID)))
		}
		if event.StateChange.OldState != "" {
			attrs = append(attrs, slog.String("old_state", event.StateChange.OldState))
		}
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
