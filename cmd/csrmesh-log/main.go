// Command csrmesh-log views and analyzes CSRmesh protocol log files.
//
// Log files are written by csrmesh-node when run with the -protocol-log flag.
//
// Usage:
//
//	csrmesh-log <command> [flags] <file.clog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show per-node statistics
//
// Examples:
//
//	# View reports only
//	csrmesh-log view -opcode tracker_report mesh.clog
//
//	# Everything one tracker did
//	csrmesh-log filter -device-id 0x0202 -o far.clog mesh.clog
//
//	# Who reported, who was suppressed
//	csrmesh-log stats mesh.clog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/csrmesh/csrmesh-go/cmd/csrmesh-log/commands"
	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

const usage = `csrmesh-log - CSRmesh Protocol Log Analyzer

Usage:
  csrmesh-log <command> [flags] <file.clog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV format
  filter   Filter log file and write to new file
  stats    Show per-node statistics

Use "csrmesh-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// parseArgs parses fs and returns the single log file argument.
func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func setUsage(fs *flag.FlagSet, synopsis string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\nUsage:\n  csrmesh-log %s [flags] <file.clog>\n\nFlags:\n", synopsis, fs.Name())
		fs.PrintDefaults()
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	setUsage(fs, "csrmesh-log view - View log file in human-readable format")

	layer := fs.String("layer", "", "Filter by layer (bearer, model)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	opcode := fs.String("opcode", "", "Filter by opcode name or value")

	path := parseArgs(fs, args)

	var filter commands.ViewFilter
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}
	if *opcode != "" {
		op, err := wire.ParseOpcode(*opcode)
		if err != nil {
			fail(err)
		}
		filter.Opcode = &op
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	setUsage(fs, "csrmesh-log export - Export log file to JSONL or CSV format")

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path := parseArgs(fs, args)
	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	setUsage(fs, "csrmesh-log filter - Filter log file and write to new file")

	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.SessionID, "session-id", "", "Filter by node session ID")
	fs.StringVar(&opts.DeviceID, "device-id", "", "Filter by logging node address (e.g. 0x0201)")
	fs.StringVar(&opts.AssetID, "asset-id", "", "Filter state changes by asset address")
	fs.StringVar(&opts.Opcode, "opcode", "", "Filter messages by opcode name or value")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (bearer, model)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")

	path := parseArgs(fs, args)
	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, opts.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	setUsage(fs, "csrmesh-log stats - Show per-node statistics")

	path := parseArgs(fs, args)
	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
