package commands

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/csrmesh/csrmesh-go/pkg/log"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByOpcode  map[wire.Opcode]int
	Nodes             map[uint16]*NodeStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// NodeStats holds statistics for a single node.
type NodeStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Sessions   map[string]struct{}
	Announces  int
	Reports    int
	Suppressed int
}

// CollectStats reads every event of the log file.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByOpcode:  make(map[wire.Opcode]int),
		Nodes:             make(map[uint16]*NodeStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	if event.Message != nil {
		s.EventsByDirection[event.Direction]++
	}

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	node, ok := s.Nodes[event.DeviceID]
	if !ok {
		node = &NodeStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Sessions:  make(map[string]struct{}),
		}
		s.Nodes[event.DeviceID] = node
	}
	node.Events++
	if event.Timestamp.After(node.LastSeen) {
		node.LastSeen = event.Timestamp
	}
	if event.SessionID != "" {
		node.Sessions[event.SessionID] = struct{}{}
	}

	switch {
	case event.Message != nil:
		s.MessagesByOpcode[event.Message.Opcode]++
		if event.Direction == log.DirectionOut {
			switch event.Message.Opcode {
			case wire.OpAssetAnnounce:
				node.Announces++
			case wire.OpTrackerReport:
				node.Reports++
			}
		}
	case event.StateChange != nil:
		if event.StateChange.NewState == "DISCARDED" {
			node.Suppressed++
		}
	case event.Error != nil:
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== CSRmesh Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerBearer, log.LayerModel} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Messages by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByOpcode) > 0 {
		fmt.Fprintln(w, "Messages by Opcode:")
		for _, op := range wire.Opcodes() {
			if count := stats.MessagesByOpcode[op]; count > 0 {
				fmt.Fprintf(w, "  %-30s %d\n", op.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Nodes: %d\n", len(stats.Nodes))
	ids := make([]uint16, 0, len(stats.Nodes))
	for id := range stats.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		n := stats.Nodes[id]
		fmt.Fprintf(w, "  [%04x] %d events, %d session(s), duration %s\n",
			id, n.Events, len(n.Sessions), n.LastSeen.Sub(n.FirstSeen).Round(time.Millisecond))
		if n.Announces > 0 {
			fmt.Fprintf(w, "         Announces: %d\n", n.Announces)
		}
		if n.Reports > 0 || n.Suppressed > 0 {
			fmt.Fprintf(w, "         Reports: %d sent, %d suppressed\n", n.Reports, n.Suppressed)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
