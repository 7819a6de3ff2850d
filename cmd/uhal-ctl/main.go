// Command uhal-ctl reads and writes registers on IPbus devices.
//
// The target is a device from a connections file (-connections, -device) or
// a URI given directly (-uri). Each command is dispatched on its own; the
// interactive shell can batch several commands into one dispatch.
//
// Usage:
//
//	uhal-ctl [flags] <command> [args]
//
// Commands:
//
//	read ADDR [N]            Read a register or N incrementing registers
//	fifo ADDR N              Read N words from a non-incrementing port
//	write ADDR VAL...        Write consecutive registers
//	mwrite ADDR VAL MASK     Masked write
//	rmw-bits ADDR AND OR     Read-modify-write bits, prints the new value
//	rmw-sum ADDR ADDEND      Read-modify-write sum, prints the new value
//	info                     Reserved address info (IPbus 1.3)
//	ping                     Check the target answers
//	devices [PATTERN]        List devices in the connections file
//
// Examples:
//
//	# Read a register over IPbus 2.0
//	uhal-ctl -uri ipbustcp-2.0://10.0.0.10:50001 read 0x1000
//
//	# Wait up to 30s for a board to come up
//	uhal-ctl -connections devices.xml -device board0 -wait 30s ping
//
//	# Interactive shell with a capture file
//	uhal-ctl -connections devices.yaml -device board0 -protocol-log board0.ucap -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ipbus/uhal-go/pkg/client"
	"github.com/ipbus/uhal-go/pkg/connection"
	"github.com/ipbus/uhal-go/pkg/log"
)

// Config holds the command line configuration.
type Config struct {
	Connections   string
	Device        string
	URI           string
	Timeout       time.Duration
	MaxPacketSize int
	Wait          time.Duration
	LogLevel      string
	ProtocolLog   string
	Interactive   bool
}

var config Config

func init() {
	flag.StringVar(&config.Connections, "connections", "", "Connections file (.xml, .yaml, .toml); may be a comma separated list")
	flag.StringVar(&config.Device, "device", "", "Device ID from the connections file")
	flag.StringVar(&config.URI, "uri", "", "Target URI, e.g. ipbustcp-2.0://host:50001")
	flag.DurationVar(&config.Timeout, "timeout", client.DefaultTimeout, "Timeout per packet exchange")
	flag.IntVar(&config.MaxPacketSize, "max-packet-size", client.DefaultMaxPacketSize, "Maximum packet size in bytes")
	flag.DurationVar(&config.Wait, "wait", 0, "For ping: keep retrying with backoff for this long")
	flag.StringVar(&config.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write a capture file (view with uhal-log)")
	flag.BoolVar(&config.Interactive, "interactive", false, "Start the interactive shell")
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: uhal-ctl [flags] <command> [args]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(config, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config, args []string, stdout io.Writer) error {
	if !cfg.Interactive && len(args) == 0 {
		flag.Usage()
		return errors.New("no command given")
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	var sh *shell
	logOut := io.Writer(os.Stderr)
	if cfg.Interactive {
		if sh, err = newShell(); err != nil {
			return err
		}
		defer sh.Close()
		logOut, stdout = sh.Stdout(), sh.Stdout()
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	var capture log.Logger = log.NoopLogger{}
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to open protocol log: %w", err)
		}
		defer func() {
			if n, err := fl.Dropped(); n > 0 {
				logger.Warn("Protocol log incomplete", "dropped", n, "error", err)
			}
			fl.Close()
		}()
		capture = fl
		if level <= slog.LevelDebug {
			capture = log.NewMultiLogger(fl, log.NewSlogAdapter(logger))
		}
		logger.Info("Protocol logging enabled", "file", cfg.ProtocolLog)
	}

	clientCfg := client.Config{
		Timeout:        cfg.Timeout,
		MaxPacketSize:  cfg.MaxPacketSize,
		Logger:         logger,
		ProtocolLogger: capture,
	}

	mgr := connection.NewManager(client.DefaultRegistry(), clientCfg)
	for _, path := range splitList(cfg.Connections) {
		if err := mgr.Load(path); err != nil {
			return err
		}
	}

	s := newSession(mgr, stdout)
	s.wait = cfg.Wait
	defer s.close()

	switch {
	case cfg.Device != "" && cfg.URI != "":
		return errors.New("-device and -uri are mutually exclusive")
	case cfg.Device != "":
		if err := s.use(cfg.Device); err != nil {
			return err
		}
	case cfg.URI != "":
		if err := s.connect(client.DefaultRegistry(), cfg.URI, clientCfg); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sh != nil {
		sh.s = s
		sh.Run(ctx)
		return nil
	}

	return s.exec(ctx, args)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q (use: debug, info, warn, error)", s)
	}
	return level, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
