// Package commands implements the csrmesh-log CLI commands.
package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/csrmesh/csrmesh-go/pkg/log"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	Opcode    *wire.Opcode
}

func (f ViewFilter) matches(e log.Event) bool {
	if f.Layer != nil && e.Layer != *f.Layer {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	if f.Opcode != nil && (e.Message == nil || e.Message.Opcode != *f.Opcode) {
		return false
	}
	return true
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timestampLayout)

	var label string
	switch {
	case event.Message != nil:
		label = event.Message.Opcode.String()
	case event.StateChange != nil:
		label = event.StateChange.Model.String()
	case event.Error != nil:
		label = "ERROR"
	default:
		label = "UNKNOWN"
	}

	fmt.Fprintf(w, "%s [%04x %s] %-3s %s %s\n", ts, event.DeviceID, shortenSessionID(event.SessionID),
		event.Direction.String(), event.Layer.String(), label)

	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Direction, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMessageDetails(w io.Writer, dir log.Direction, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  %04x -> %04x  ttl=%d", msg.Src, msg.Dst, msg.TTL)
	if dir == log.DirectionIn {
		fmt.Fprintf(w, "  rssi=%d", msg.RSSI)
	}
	fmt.Fprintln(w)
	if len(msg.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s\n", hex.EncodeToString(msg.Payload))
		if s := describePayload(msg.Opcode, msg.Payload); s != "" {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
}

// describePayload decodes well-known payloads. Returns "" when the payload
// does not decode.
func describePayload(op wire.Opcode, b []byte) string {
	switch op {
	case wire.OpAssetAnnounce:
		var p wire.AssetAnnounce
		if p.UnmarshalBinary(b) == nil {
			return fmt.Sprintf("interval=%ds side_effects=%#04x to=%04x tx_power=%d repeats=%d spacing=%dms",
				p.Interval, p.SideEffects, p.ToDestinationID, p.TxPower, p.NumAnnounces, p.AnnounceInterval)
		}
	case wire.OpTrackerReport:
		var p wire.TrackerReport
		if p.UnmarshalBinary(b) == nil {
			return fmt.Sprintf("asset=%04x rssi=%d zone=%d age=%ds", p.AssetDeviceID, p.RSSI, p.Zone, p.AgeSeconds)
		}
	case wire.OpTrackerFound:
		var p wire.TrackerFound
		if p.UnmarshalBinary(b) == nil {
			return fmt.Sprintf("asset=%04x rssi=%d zone=%d age=%ds tid=%d", p.AssetDeviceID, p.RSSI, p.Zone, p.AgeSeconds, p.TransactionID)
		}
	case wire.OpTrackerFind:
		var p wire.TrackerFind
		if p.UnmarshalBinary(b) == nil {
			return fmt.Sprintf("asset=%04x tid=%d", p.AssetDeviceID, p.TransactionID)
		}
	}
	return ""
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.AssetID != 0 {
		fmt.Fprintf(w, "  Asset: %04x\n", sc.AssetID)
	}
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "bearer":
		return log.LayerBearer, nil
	case "model":
		return log.LayerModel, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be bearer or model)", s)
	}
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if filter.matches(event) {
			formatEvent(output, event)
		}
	}
	return nil
}
