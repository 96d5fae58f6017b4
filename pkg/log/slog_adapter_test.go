package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

func decodeJSONLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	if buf.Len() == 0 {
		t.Fatal("no output produced")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return entry
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		Timestamp: time.Now(),
		SessionID: "s-1",
		Direction: DirectionIn,
		Layer:     LayerModel,
		Category:  CategoryMessage,
		DeviceID:  0x8001,
		Message: &MessageEvent{
			Opcode: wire.OpTrackerReport,
			Src:    0x8003,
			Dst:    0xFFFF,
			TTL:    50,
			RSSI:   -70,
		},
	})

	entry := decodeJSONLine(t, &buf)
	if entry["session"] != "s-1" {
		t.Errorf("session: got %v", entry["session"])
	}
	if entry["opcode"] != "TRACKER_REPORT" {
		t.Errorf("opcode: got %v", entry["opcode"])
	}
	if entry["rssi"] != float64(-70) {
		t.Errorf("rssi: got %v", entry["rssi"])
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("level: got %v", entry["level"])
	}
}

func TestSlogAdapterLogsStateChange(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(StateChange(ModelAsset, 0, "REPEATING", "WRAP_WAITING", "announces done"))

	entry := decodeJSONLine(t, &buf)
	if entry["model"] != "ASSET" {
		t.Errorf("model: got %v", entry["model"])
	}
	if entry["old_state"] != "REPEATING" || entry["new_state"] != "WRAP_WAITING" {
		t.Errorf("states: got %v -> %v", entry["old_state"], entry["new_state"])
	}
	if _, ok := entry["asset_id"]; ok {
		t.Error("asset_id should be omitted when zero")
	}
}

func TestSlogAdapterLogsError(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerBearer, Message: "short payload", Context: "decode"},
	})

	entry := decodeJSONLine(t, &buf)
	if entry["error_msg"] != "short payload" || entry["error_layer"] != "BEARER" {
		t.Errorf("error fields: got %v", entry)
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	adapter.Log(Event{SessionID: "hidden"})

	if buf.Len() != 0 {
		t.Errorf("expected no output at Info level, got %q", buf.String())
	}
}
