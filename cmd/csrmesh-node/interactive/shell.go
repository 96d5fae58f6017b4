// Package interactive provides the csrmesh-node command shell.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/csrmesh/csrmesh-go/pkg/asset"
	"github.com/csrmesh/csrmesh-go/pkg/node"
	"github.com/csrmesh/csrmesh-go/pkg/tracker"
)

// doTimeout bounds every command run on a node's event loop.
const doTimeout = 2 * time.Second

// Shell runs operator commands against one or more nodes.
type Shell struct {
	nodes   map[uint16]*node.Node
	ids     []uint16
	current *node.Node
	out     io.Writer
	rl      *readline.Instance
}

// New creates a shell writing to out.
func New(out io.Writer) *Shell {
	return &Shell{nodes: make(map[uint16]*node.Node), out: out}
}

// Add makes nodes available to the shell. The first node added is selected.
func (s *Shell) Add(nodes ...*node.Node) {
	for _, n := range nodes {
		s.nodes[n.DeviceID()] = n
		s.ids = append(s.ids, n.DeviceID())
		if s.current == nil {
			s.current = n
		}
	}
	slices.Sort(s.ids)
	if s.rl != nil {
		s.rl.SetPrompt(s.prompt())
	}
}

// Attach switches output to a readline prompt. Use Stdout for log output
// so it does not clobber the prompt.
func (s *Shell) Attach() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	s.rl = rl
	s.out = rl.Stdout()
	return nil
}

// Stdout returns the writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

func (s *Shell) prompt() string {
	if s.current == nil {
		return "mesh> "
	}
	return fmt.Sprintf("%04x> ", s.current.DeviceID())
}

// Run reads commands until quit, EOF or ctx is done. Attach must have
// been called.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
		if !s.Execute(line) {
			cancel()
			return
		}
		s.rl.SetPrompt(s.prompt())
	}
}

// Execute runs one command line. It returns false when the shell should
// exit.
func (s *Shell) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "nodes", "n":
		s.cmdNodes()
	case "use", "u":
		s.cmdUse(args)
	case "state", "s":
		s.cmdState()
	case "set":
		s.cmdSet(args)
	case "snapshot", "snap":
		s.cmdSnapshot()
	case "find", "f":
		s.cmdFind(args)
	case "clear":
		s.cmdClear()
	case "config", "cfg":
		s.cmdConfig(args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
CSRmesh Node Commands:
  Nodes:
    nodes                  - List nodes
    use <id>               - Select a node (e.g. use 0x0201)

  Asset:
    state                  - Show asset state and timer phase
    set <key=value>...     - Change asset state and restart broadcasting
                             keys: interval, effects, dest, txpower, announces, spacing

  Tracker:
    snapshot               - Show pending and confirmed caches
    find <asset>           - Look up an asset in the confirmed cache
    clear                  - Empty both caches
    config [key=value]...  - Show or change the proximity configuration
                             keys: thresholds=a,b,c delete dest offset factor

  General:
    help                   - Show this help
    quit                   - Exit`)
}

// do runs fn on the selected node's loop.
func (s *Shell) do(fn func(n *node.Node)) bool {
	n := s.current
	if n == nil {
		fmt.Fprintln(s.out, "No node selected")
		return false
	}
	if err := n.DoTimeout(func() { fn(n) }, doTimeout); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return false
	}
	return true
}

func (s *Shell) cmdNodes() {
	for _, id := range s.ids {
		n := s.nodes[id]
		var models []string
		if n.Asset() != nil {
			models = append(models, "asset")
		}
		if n.Tracker() != nil {
			models = append(models, "tracker")
		}
		marker := " "
		if n == s.current {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %04x  %-8s %s\n", marker, id, n.State(), strings.Join(models, "+"))
	}
}

func (s *Shell) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: use <id>")
		return
	}
	id, err := parseAddress(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Invalid id: %v\n", err)
		return
	}
	n, ok := s.nodes[id]
	if !ok {
		fmt.Fprintf(s.out, "No node %04x\n", id)
		return
	}
	s.current = n
	fmt.Fprintf(s.out, "Selected %04x\n", id)
}

func (s *Shell) cmdState() {
	var st asset.State
	var phase asset.Phase
	var enabled bool
	if !s.do(func(n *node.Node) {
		if a := n.Asset(); a != nil {
			enabled = true
			st, phase = a.State(), a.Phase()
		}
	}) {
		return
	}
	if !enabled {
		fmt.Fprintln(s.out, "Asset model not enabled on this node")
		return
	}
	fmt.Fprintf(s.out, "Phase:        %s\n", phase)
	fmt.Fprintf(s.out, "Interval:     %ds\n", st.Interval)
	fmt.Fprintf(s.out, "Announces:    %d every %dms\n", st.NumAnnounces, st.AnnounceInterval)
	fmt.Fprintf(s.out, "Destination:  %04x\n", st.ToDestinationID)
	fmt.Fprintf(s.out, "TxPower:      %d dBm\n", st.TxPower)
	fmt.Fprintf(s.out, "SideEffects:  %#04x\n", st.SideEffects)
}

func (s *Shell) cmdSet(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: set <key=value>...")
		return
	}

	var parseErr error
	var enabled bool
	ok := s.do(func(n *node.Node) {
		a := n.Asset()
		if a == nil {
			return
		}
		enabled = true
		st := a.State()
		if parseErr = applyAssetArgs(&st, args); parseErr != nil {
			return
		}
		a.SetState(st)
	})
	switch {
	case !ok:
	case !enabled:
		fmt.Fprintln(s.out, "Asset model not enabled on this node")
	case parseErr != nil:
		fmt.Fprintf(s.out, "Error: %v\n", parseErr)
	default:
		fmt.Fprintln(s.out, "OK")
	}
}

func applyAssetArgs(st *asset.State, args []string) error {
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", arg)
		}
		var err error
		switch strings.ToLower(key) {
		case "interval":
			st.Interval, err = parseUint16(val)
		case "effects":
			st.SideEffects, err = parseUint16(val)
		case "dest":
			st.ToDestinationID, err = parseAddress(val)
		case "txpower":
			var v int64
			v, err = strconv.ParseInt(val, 0, 8)
			st.TxPower = int8(v)
		case "announces":
			st.NumAnnounces, err = parseUint8(val)
		case "spacing":
			st.AnnounceInterval, err = parseUint8(val)
		default:
			return fmt.Errorf("unknown key %q", key)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func (s *Shell) cmdSnapshot() {
	var snap tracker.Snapshot
	var enabled bool
	if !s.do(func(n *node.Node) {
		if t := n.Tracker(); t != nil {
			enabled = true
			snap = t.Snapshot()
		}
	}) {
		return
	}
	if !enabled {
		fmt.Fprintln(s.out, "Tracker model not enabled on this node")
		return
	}

	fmt.Fprintf(s.out, "Ticks: %d  Seconds: %d\n", snap.Ticks, snap.Seconds)
	fmt.Fprintf(s.out, "Pending (%d):\n", len(snap.Pending))
	for _, e := range snap.Pending {
		fmt.Fprintf(s.out, "  %04x  rssi=%-4d samples=%-3d deleteAt=%d %s\n", e.DeviceID, e.RSSI, e.SampleCount, e.DeleteAt, e.Status)
	}
	fmt.Fprintf(s.out, "Confirmed (%d):\n", len(snap.Confirmed))
	for _, e := range snap.Confirmed {
		fmt.Fprintf(s.out, "  %04x  rssi=%-4d zone=%-9s heard=%d deleteAt=%d\n", e.DeviceID, e.RSSI, e.Zone, e.LastHeardAt, e.DeleteAt)
	}
}

func (s *Shell) cmdFind(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: find <asset>")
		return
	}
	id, err := parseAddress(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Invalid asset: %v\n", err)
		return
	}

	var enabled, found bool
	var zone tracker.Zone
	var rssi int8
	var age uint16
	if !s.do(func(n *node.Node) {
		t := n.Tracker()
		if t == nil {
			return
		}
		enabled = true
		if f, ok := t.OnTrackerFind(id, 0); ok {
			found = true
			zone, rssi, age = tracker.Zone(f.Zone), f.RSSI, f.AgeSeconds
		}
	}) {
		return
	}
	switch {
	case !enabled:
		fmt.Fprintln(s.out, "Tracker model not enabled on this node")
	case !found:
		fmt.Fprintf(s.out, "Asset %04x not in cache\n", id)
	default:
		fmt.Fprintf(s.out, "Asset %04x: %s rssi=%d age=%ds\n", id, zone, rssi, age)
	}
}

func (s *Shell) cmdClear() {
	var enabled bool
	if s.do(func(n *node.Node) {
		if t := n.Tracker(); t != nil {
			enabled = true
			t.OnTrackerClearCache()
		}
	}) {
		if enabled {
			fmt.Fprintln(s.out, "Cache cleared")
		} else {
			fmt.Fprintln(s.out, "Tracker model not enabled on this node")
		}
	}
}

func (s *Shell) cmdConfig(args []string) {
	var cfg tracker.ProximityConfig
	var enabled bool
	var parseErr error
	if !s.do(func(n *node.Node) {
		t := n.Tracker()
		if t == nil {
			return
		}
		enabled = true
		cfg = t.Config()
		if len(args) == 0 {
			return
		}
		if parseErr = applyConfigArgs(&cfg, args); parseErr == nil {
			t.OnSetProximityConfig(cfg)
		}
	}) {
		return
	}
	switch {
	case !enabled:
		fmt.Fprintln(s.out, "Tracker model not enabled on this node")
		return
	case parseErr != nil:
		fmt.Fprintf(s.out, "Error: %v\n", parseErr)
		return
	}

	th := cfg.ZoneThresholds
	fmt.Fprintf(s.out, "Thresholds:   %d / %d / %d dBm\n", th[0], th[1], th[2])
	fmt.Fprintf(s.out, "Delete after: %ds\n", cfg.DeleteInterval)
	fmt.Fprintf(s.out, "Reports to:   %04x\n", cfg.ReportDestination)
	fmt.Fprintf(s.out, "Delay:        (%d - rssi) x %dms\n", cfg.DelayOffset, cfg.DelayFactor)
}

func applyConfigArgs(cfg *tracker.ProximityConfig, args []string) error {
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", arg)
		}
		var err error
		switch strings.ToLower(key) {
		case "thresholds":
			fields := strings.Split(val, ",")
			if len(fields) != 3 {
				return fmt.Errorf("thresholds: want three values")
			}
			for i, f := range fields {
				var v int64
				if v, err = strconv.ParseInt(strings.TrimSpace(f), 10, 8); err != nil {
					break
				}
				cfg.ZoneThresholds[i] = int8(v)
			}
		case "delete":
			var v uint64
			v, err = strconv.ParseUint(val, 0, 32)
			cfg.DeleteInterval = uint32(v)
		case "dest":
			cfg.ReportDestination, err = parseAddress(val)
		case "offset":
			cfg.DelayOffset, err = parseUint8(val)
		case "factor":
			cfg.DelayFactor, err = parseUint8(val)
		default:
			return fmt.Errorf("unknown key %q", key)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func parseAddress(s string) (uint16, error) {
	return parseUint16(s)
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	return uint16(v), err
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	return uint8(v), err
}
