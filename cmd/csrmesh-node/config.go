package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/csrmesh/csrmesh-go/pkg/asset"
	"github.com/csrmesh/csrmesh-go/pkg/node"
	"github.com/csrmesh/csrmesh-go/pkg/tracker"
)

// Mode selects the bearer.
type Mode string

const (
	ModeSim    Mode = "sim"
	ModeMQTT   Mode = "mqtt"
	ModeBLE    Mode = "ble"
	ModeStream Mode = "stream"
)

// Address is a mesh address that unmarshals from "0x0201" or 513.
type Address uint16

// UnmarshalYAML accepts hex strings and integers.
func (a *Address) UnmarshalYAML(n *yaml.Node) error {
	v, err := strconv.ParseUint(n.Value, 0, 16)
	if err != nil {
		return fmt.Errorf("line %d: invalid address %q", n.Line, n.Value)
	}
	*a = Address(v)
	return nil
}

// Set implements flag.Value.
func (a *Address) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid address %q", s)
	}
	*a = Address(v)
	return nil
}

func (a Address) String() string {
	return fmt.Sprintf("0x%04x", uint16(a))
}

// Config is the csrmesh-node configuration file.
type Config struct {
	Mode      Mode   `yaml:"mode"`
	LogLevel  string `yaml:"log_level"`
	NetworkID uint8  `yaml:"network_id"`

	// ProtocolLog is a CBOR event file readable by csrmesh-log.
	ProtocolLog string `yaml:"protocol_log"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9102".
	MetricsAddr string `yaml:"metrics_addr"`

	Interactive bool `yaml:"interactive"`

	// Node is used by every mode except sim.
	Node NodeConfig `yaml:"node"`

	MQTT   MQTTConfig   `yaml:"mqtt"`
	Stream StreamConfig `yaml:"stream"`
	BLE    BLEConfig    `yaml:"ble"`
	Sim    SimConfig    `yaml:"sim"`
}

// NodeConfig describes one node.
type NodeConfig struct {
	DeviceID Address   `yaml:"device_id"`
	Groups   []Address `yaml:"groups"`

	// Store is a JSON file holding the node's persistent words. Empty keeps
	// state in memory.
	Store string `yaml:"store"`

	Asset   *AssetConfig   `yaml:"asset"`
	Tracker *TrackerConfig `yaml:"tracker"`

	// Position places the node in a simulation, in metres.
	Position Point `yaml:"position"`
}

// AssetConfig enables the Asset model. Non-nil fields seed the state when
// the store holds none.
type AssetConfig struct {
	Interval         uint16  `yaml:"interval"`
	SideEffects      uint16  `yaml:"side_effects"`
	Destination      Address `yaml:"destination"`
	TxPower          int8    `yaml:"tx_power"`
	NumAnnounces     uint8   `yaml:"num_announces"`
	AnnounceInterval uint8   `yaml:"announce_interval"`

	// Path moves the node between waypoints in a simulation.
	Path  []Point `yaml:"path"`
	Speed float64 `yaml:"speed"`
}

// TrackerConfig enables the Tracker model.
type TrackerConfig struct {
	RollingAverage   bool `yaml:"rolling_average"`
	MaxCachedAssets  int  `yaml:"max_cached_assets"`
	MaxPendingAssets int  `yaml:"max_pending_assets"`

	// DelayFactor seeds the pending tick in ms when the store holds no
	// configuration yet.
	DelayFactor uint8 `yaml:"delay_factor"`
}

// MQTTConfig configures the MQTT bearer.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	DefaultRSSI int8   `yaml:"default_rssi"`
}

// StreamConfig configures the gateway stream bearer.
type StreamConfig struct {
	Address     string        `yaml:"address"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	DefaultRSSI int8          `yaml:"default_rssi"`

	// MaxBackoff caps the delay between redials after the link drops.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// BLEConfig configures the BLE bearer.
type BLEConfig struct {
	LocalName    string        `yaml:"local_name"`
	AdvertiseFor time.Duration `yaml:"advertise_for"`
	Interval     time.Duration `yaml:"interval"`
}

// SimConfig describes a simulated mesh on an in-process bus.
type SimConfig struct {
	Nodes []NodeConfig `yaml:"nodes"`

	// Radio model: rssi = TxPower + p - 10 * PathLossExponent * log10(d),
	// where p is the sending asset's configured tx_power (0 for trackers).
	TxPower          float64 `yaml:"tx_power"`
	PathLossExponent float64 `yaml:"path_loss_exponent"`
}

// DefaultConfig is a small simulation: one asset walking past three
// trackers.
func DefaultConfig() Config {
	return Config{
		Mode:     ModeSim,
		LogLevel: "info",
		Node: NodeConfig{
			DeviceID: 0x0201,
			Tracker:  &TrackerConfig{},
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "csrmesh",
			DefaultRSSI: -60,
		},
		Stream: StreamConfig{
			DialTimeout: 5 * time.Second,
			DefaultRSSI: -60,
		},
		BLE: BLEConfig{
			AdvertiseFor: 60 * time.Millisecond,
			Interval:     20 * time.Millisecond,
		},
		Sim: SimConfig{
			TxPower:          -40,
			PathLossExponent: 2.2,
			Nodes: []NodeConfig{
				{
					DeviceID: 0x0100,
					Asset: &AssetConfig{
						Interval:         5,
						Destination:      0xFFFF,
						NumAnnounces:     3,
						AnnounceInterval: 100,
						Path:             []Point{{0, 0}, {20, 0}},
						Speed:            1,
					},
				},
				{DeviceID: 0x0201, Tracker: &TrackerConfig{}, Position: Point{0, 2}},
				{DeviceID: 0x0202, Tracker: &TrackerConfig{}, Position: Point{10, 2}},
				{DeviceID: 0x0203, Tracker: &TrackerConfig{}, Position: Point{20, 2}},
			},
		},
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for the selected mode.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeSim:
		if len(c.Sim.Nodes) == 0 {
			return fmt.Errorf("sim: no nodes")
		}
		seen := make(map[Address]bool)
		for _, n := range c.Sim.Nodes {
			if seen[n.DeviceID] {
				return fmt.Errorf("sim: duplicate device id %s", n.DeviceID)
			}
			seen[n.DeviceID] = true
			if err := c.nodeConfig(n).Validate(); err != nil {
				return fmt.Errorf("sim node %s: %w", n.DeviceID, err)
			}
		}
	case ModeMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt: broker required")
		}
	case ModeStream:
		if c.Stream.Address == "" {
			return fmt.Errorf("stream: address required")
		}
	case ModeBLE:
	default:
		return fmt.Errorf("unknown mode %q (must be sim, mqtt, ble, or stream)", c.Mode)
	}
	if c.Mode != ModeSim {
		if err := c.nodeConfig(c.Node).Validate(); err != nil {
			return fmt.Errorf("node: %w", err)
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// nodeConfig maps a node entry onto the node package configuration. The
// caller fills in timers, loggers and metrics.
func (c Config) nodeConfig(n NodeConfig) node.Config {
	cfg := node.DefaultConfig()
	cfg.DeviceID = uint16(n.DeviceID)
	cfg.NetworkID = c.NetworkID
	for _, g := range n.Groups {
		cfg.Groups = append(cfg.Groups, uint16(g))
	}
	cfg.Asset = n.Asset != nil
	cfg.Tracker = n.Tracker != nil
	if t := n.Tracker; t != nil {
		cfg.RollingAverage = t.RollingAverage
		if t.MaxCachedAssets > 0 {
			cfg.MaxCachedAssets = t.MaxCachedAssets
		}
		if t.MaxPendingAssets > 0 {
			cfg.MaxPendingAssets = t.MaxPendingAssets
		}
	}
	return cfg
}

// State returns the asset state seeded from the configuration.
func (a *AssetConfig) State() asset.State {
	return asset.State{
		Interval:         a.Interval,
		SideEffects:      a.SideEffects,
		ToDestinationID:  uint16(a.Destination),
		TxPower:          a.TxPower,
		NumAnnounces:     a.NumAnnounces,
		AnnounceInterval: a.AnnounceInterval,
	}
}

// ProximityConfig returns the tracker configuration seeded from the file.
func (t *TrackerConfig) ProximityConfig() tracker.ProximityConfig {
	cfg := tracker.DefaultProximityConfig()
	if t.DelayFactor != 0 {
		cfg.DelayFactor = t.DelayFactor
	}
	return cfg
}
