package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/csrmesh/csrmesh-go/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{"timestamp", "session_id", "device_id", "direction", "layer", "category", "opcode", "src", "dst", "rssi", "asset_id", "new_state"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(e log.Event) []string {
	row := []string{
		e.Timestamp.UTC().Format(timestampLayout),
		e.SessionID,
		fmt.Sprintf("%04x", e.DeviceID),
		e.Direction.String(),
		e.Layer.String(),
		e.Category.String(),
		"", "", "", "", "", "",
	}
	if m := e.Message; m != nil {
		row[6] = m.Opcode.String()
		row[7] = fmt.Sprintf("%04x", m.Src)
		row[8] = fmt.Sprintf("%04x", m.Dst)
		if e.Direction == log.DirectionIn {
			row[9] = strconv.Itoa(int(m.RSSI))
		}
	}
	if sc := e.StateChange; sc != nil {
		row[10] = fmt.Sprintf("%04x", sc.AssetID)
		row[11] = sc.NewState
	}
	return row
}
