package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/csrmesh/csrmesh-go/pkg/log"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	SessionID string
	DeviceID  string
	AssetID   string
	Opcode    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

func (o FilterOptions) build() (log.Filter, error) {
	filter := log.Filter{SessionID: o.SessionID}

	if o.DeviceID != "" {
		id, err := parseAddress(o.DeviceID)
		if err != nil {
			return filter, fmt.Errorf("invalid device-id: %w", err)
		}
		filter.DeviceID = &id
	}
	if o.AssetID != "" {
		id, err := parseAddress(o.AssetID)
		if err != nil {
			return filter, fmt.Errorf("invalid asset-id: %w", err)
		}
		filter.AssetID = &id
	}
	if o.Opcode != "" {
		op, err := wire.ParseOpcode(o.Opcode)
		if err != nil {
			return filter, err
		}
		filter.Opcode = &op
	}
	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayerFlag(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirectionFlag(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// parseAddress accepts mesh addresses in hex (0x0201) or decimal.
func parseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// RunFilter filters the log file and writes matching events to a new file.
// It returns the number of events written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := opts.build()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return logger.Written(), fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
	}
	return logger.Written(), nil
}
