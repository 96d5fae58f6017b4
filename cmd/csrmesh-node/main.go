// Command csrmesh-node runs CSRmesh asset and tracker nodes.
//
// A node is attached to one bearer: an in-process simulated mesh, an MQTT
// broker, the BLE adapter, or a TCP gateway stream.
//
// Usage:
//
//	csrmesh-node [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-mode string          Bearer: sim, mqtt, ble, stream
//	-device address       Device ID of the node (e.g. 0x0201)
//	-network int          Network ID
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Write protocol events to this file
//	-metrics-addr string  Serve Prometheus metrics on this address
//	-broker string        MQTT broker URL
//	-stream-addr string   Gateway address for stream mode
//	-i                    Start the interactive shell
//
// Examples:
//
//	# Simulate one asset walking past three trackers
//	csrmesh-node -i
//
//	# Run a tracker on an MQTT broker
//	csrmesh-node -mode mqtt -device 0x0201 -broker tcp://broker:1883
//
//	# Record a session for csrmesh-log
//	csrmesh-node -config mesh.yaml -protocol-log mesh.clog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/csrmesh/csrmesh-go/cmd/csrmesh-node/interactive"
	"github.com/csrmesh/csrmesh-go/pkg/asset"
	"github.com/csrmesh/csrmesh-go/pkg/connection"
	"github.com/csrmesh/csrmesh-go/pkg/log"
	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/metrics"
	"github.com/csrmesh/csrmesh-go/pkg/node"
	"github.com/csrmesh/csrmesh-go/pkg/store"
	"github.com/csrmesh/csrmesh-go/pkg/tracker"
	"github.com/csrmesh/csrmesh-go/pkg/transport"
)

// walkStep is how often simulated assets move.
const walkStep = 250 * time.Millisecond

type flags struct {
	configFile  string
	mode        string
	device      Address
	network     int
	logLevel    string
	protocolLog string
	metricsAddr string
	broker      string
	streamAddr  string
	interactive bool
}

// apply overrides file settings with the flags that were set.
func (f *flags) apply(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "mode":
			cfg.Mode = Mode(f.mode)
		case "device":
			cfg.Node.DeviceID = f.device
		case "network":
			cfg.NetworkID = uint8(f.network)
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "protocol-log":
			cfg.ProtocolLog = f.protocolLog
		case "metrics-addr":
			cfg.MetricsAddr = f.metricsAddr
		case "broker":
			cfg.MQTT.Broker = f.broker
		case "stream-addr":
			cfg.Stream.Address = f.streamAddr
		case "i":
			cfg.Interactive = f.interactive
		}
	})
}

func main() {
	var f flags
	fs := flag.NewFlagSet("csrmesh-node", flag.ExitOnError)
	fs.StringVar(&f.configFile, "config", "", "Configuration file path (YAML)")
	fs.StringVar(&f.mode, "mode", "sim", "Bearer: sim, mqtt, ble, stream")
	fs.Var(&f.device, "device", "Device ID of the node (e.g. 0x0201)")
	fs.IntVar(&f.network, "network", 0, "Network ID")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.protocolLog, "protocol-log", "", "Write protocol events to this file")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&f.broker, "broker", "", "MQTT broker URL")
	fs.StringVar(&f.streamAddr, "stream-addr", "", "Gateway address for stream mode")
	fs.BoolVar(&f.interactive, "i", false, "Start the interactive shell")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: csrmesh-node [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	cfg, err := LoadConfig(f.configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	f.apply(fs, &cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session holds everything started for a session so it can be torn down
// in reverse order.
type session struct {
	cfg     Config
	logger  *slog.Logger
	events  log.Logger
	metrics *metrics.Metrics

	nodes   []*node.Node
	bearers []transport.Bearer
	closers []io.Closer
}

func run(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out io.Writer = os.Stderr
	var sh *interactive.Shell
	if cfg.Interactive {
		sh = interactive.New(os.Stdout)
		if err := sh.Attach(); err != nil {
			return err
		}
		out = sh.Stdout()
	}

	rt := &session{
		cfg:    cfg,
		logger: newLogger(out, cfg.LogLevel),
	}
	defer rt.shutdown()

	if err := rt.setupProtocolLog(); err != nil {
		return err
	}
	rt.setupMetrics()

	var err error
	switch cfg.Mode {
	case ModeSim:
		err = rt.startSim(ctx)
	default:
		err = rt.startSingle(ctx)
	}
	if err != nil {
		return err
	}

	rt.logger.Info("csrmesh node running", "mode", cfg.Mode, "nodes", len(rt.nodes), "network", cfg.NetworkID)

	if sh != nil {
		sh.Add(rt.nodes...)
		go sh.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		rt.logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// setupProtocolLog sends protocol events to the debug log and, when
// configured, to a file.
func (rt *session) setupProtocolLog() error {
	loggers := []log.Logger{log.NewSlogAdapter(rt.logger.With("component", "protocol"))}
	if rt.cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(rt.cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		rt.closers = append(rt.closers, fl)
		loggers = append(loggers, fl)
		rt.logger.Info("protocol log enabled", "path", rt.cfg.ProtocolLog)
	}
	rt.events = log.NewMultiLogger(loggers...)
	return nil
}

func (rt *session) setupMetrics() {
	rt.metrics = metrics.New(prometheus.DefaultRegisterer)
	if rt.cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: rt.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server failed", "addr", rt.cfg.MetricsAddr, "error", err)
		}
	}()
	rt.closers = append(rt.closers, srv)
	rt.logger.Info("metrics enabled", "addr", rt.cfg.MetricsAddr)
}

// startSim attaches every configured node to one bus whose signal
// strength follows the node positions.
func (rt *session) startSim(ctx context.Context) error {
	floor := NewFloorplan(rt.cfg.Sim.TxPower, rt.cfg.Sim.PathLossExponent)
	bus := transport.NewBus(floor.RSSI, rt.logger.With("component", "bus"))

	for _, nc := range rt.cfg.Sim.Nodes {
		id := uint16(nc.DeviceID)
		floor.Place(id, nc.Position)

		ncfg := rt.cfg.nodeConfig(nc)
		ep := bus.Attach(id, ncfg.Groups...)
		if err := rt.startNode(ctx, nc, ep, floor.Radio(id)); err != nil {
			_ = ep.Close()
			return err
		}

		if a := nc.Asset; a != nil && len(a.Path) > 0 {
			speed := a.Speed
			if speed <= 0 {
				speed = 1
			}
			go floor.Walk(ctx, id, a.Path, speed, walkStep)
		}
	}
	return nil
}

// startSingle runs the configured node on a radio or network bearer. None
// of them exposes transmit power control, so the node gets no radio.
func (rt *session) startSingle(ctx context.Context) error {
	bearer, err := rt.newBearer()
	if err != nil {
		return err
	}
	if err := rt.startNode(ctx, rt.cfg.Node, bearer, nil); err != nil {
		_ = bearer.Close()
		return err
	}
	return nil
}

func (rt *session) newBearer() (transport.Bearer, error) {
	logger := rt.logger.With("component", "bearer", "mode", rt.cfg.Mode)

	switch rt.cfg.Mode {
	case ModeMQTT:
		mc := transport.DefaultMQTTConfig()
		mc.Broker = rt.cfg.MQTT.Broker
		mc.Username = rt.cfg.MQTT.Username
		mc.Password = rt.cfg.MQTT.Password
		if rt.cfg.MQTT.TopicPrefix != "" {
			mc.TopicPrefix = rt.cfg.MQTT.TopicPrefix
		}
		mc.QoS = rt.cfg.MQTT.QoS
		if rt.cfg.MQTT.DefaultRSSI != 0 {
			mc.DefaultRSSI = rt.cfg.MQTT.DefaultRSSI
		}
		mc.NetworkID = rt.cfg.NetworkID
		mc.Logger = logger
		return transport.NewMQTTBearer(mc), nil

	case ModeBLE:
		bc := transport.DefaultBLEConfig()
		bc.LocalName = rt.cfg.BLE.LocalName
		if rt.cfg.BLE.AdvertiseFor > 0 {
			bc.AdvertiseFor = rt.cfg.BLE.AdvertiseFor
		}
		if rt.cfg.BLE.Interval > 0 {
			bc.Interval = rt.cfg.BLE.Interval
		}
		bc.Logger = logger
		return transport.NewBLEBearer(bc), nil

	case ModeStream:
		addr := rt.cfg.Stream.Address
		dialer := &net.Dialer{Timeout: rt.cfg.Stream.DialTimeout}
		backoff := connection.DefaultBackoffConfig()
		if rt.cfg.Stream.MaxBackoff > 0 {
			backoff.Max = rt.cfg.Stream.MaxBackoff
		}
		return transport.NewGatewayBearer(transport.GatewayConfig{
			Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
				return dialer.DialContext(ctx, "tcp", addr)
			},
			DefaultRSSI: rt.cfg.Stream.DefaultRSSI,
			Backoff:     backoff,
			Logger:      logger,
			OnStateChange: func(_, state connection.State) {
				logger.Info("gateway link", "addr", addr, "state", state)
			},
		}), nil

	default:
		return nil, fmt.Errorf("unknown mode %q", rt.cfg.Mode)
	}
}

// startNode opens the node's store, creates the node, starts its bearer
// and then the node. The bearer comes first so the first announce burst
// finds it up. Messages heard before the node runs are dropped.
func (rt *session) startNode(ctx context.Context, nc NodeConfig, bearer transport.Bearer, radio mesh.Radio) error {
	id := uint16(nc.DeviceID)
	ncfg := rt.cfg.nodeConfig(nc)
	ncfg.Radio = radio
	ncfg.Logger = rt.logger.With("device", fmt.Sprintf("%04x", id))
	ncfg.ProtocolLogger = rt.events
	ncfg.Metrics = rt.metrics

	st, err := openStore(nc.Store)
	if err != nil {
		return fmt.Errorf("node %04x: %w", id, err)
	}
	if err := seedStore(st, ncfg, nc); err != nil {
		return fmt.Errorf("node %04x: %w", id, err)
	}

	n, err := node.New(ncfg, bearer, st)
	if err != nil {
		return fmt.Errorf("node %04x: %w", id, err)
	}
	if err := bearer.Start(n.Deliver); err != nil {
		return fmt.Errorf("node %04x: start bearer: %w", id, err)
	}
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("node %04x: %w", id, err)
	}
	rt.nodes = append(rt.nodes, n)
	rt.bearers = append(rt.bearers, bearer)
	return nil
}

func openStore(path string) (store.Store, error) {
	if path == "" {
		return store.NewMemoryStore(store.DefaultSize), nil
	}
	return store.OpenFileStore(path, store.DefaultSize)
}

// seedStore writes the configured initial state for models whose store
// region is still empty. State saved by an earlier run wins.
func seedStore(st store.Store, ncfg node.Config, nc NodeConfig) error {
	if a := nc.Asset; a != nil {
		var w [asset.StateWords]uint16
		if err := st.Read(ncfg.AssetOffset, w[:]); err != nil {
			return fmt.Errorf("read asset state: %w", err)
		}
		if w == ([asset.StateWords]uint16{}) {
			w = asset.EncodeState(a.State())
			if err := st.Write(ncfg.AssetOffset, w[:]); err != nil {
				return fmt.Errorf("seed asset state: %w", err)
			}
		}
	}
	if t := nc.Tracker; t != nil {
		_, ok, err := tracker.ReadConfig(st, ncfg.TrackerOffset)
		if err != nil {
			return err
		}
		if !ok {
			if err := tracker.WriteConfig(st, ncfg.TrackerOffset, t.ProximityConfig()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (rt *session) shutdown() {
	for i := len(rt.bearers) - 1; i >= 0; i-- {
		if err := rt.bearers[i].Close(); err != nil {
			rt.logger.Warn("close bearer", "error", err)
		}
	}
	for i := len(rt.nodes) - 1; i >= 0; i-- {
		if err := rt.nodes[i].Stop(); err != nil && !errors.Is(err, node.ErrNotStarted) {
			rt.logger.Warn("stop node", "device", fmt.Sprintf("%04x", rt.nodes[i].DeviceID()), "error", err)
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.logger.Warn("close", "error", err)
		}
	}
}
