package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ipbus/uhal-go/pkg/client"
	"github.com/ipbus/uhal-go/pkg/connection"
	"github.com/ipbus/uhal-go/pkg/wire"
)

var (
	errNoTarget = errors.New("no target selected (use -device, -uri or 'use <id>')")
	errUsage    = errors.New("usage")
)

// printer writes a resolved result once its dispatch has completed.
type printer func(w io.Writer) error

// session runs register commands against the current target. Outside batch
// mode every command is dispatched immediately.
type session struct {
	mgr     *connection.Manager
	current *client.Client
	adhoc   *client.Client
	batch   bool
	wait    time.Duration
	pending []printer
	out     io.Writer
}

func newSession(mgr *connection.Manager, out io.Writer) *session {
	return &session{mgr: mgr, out: out}
}

// use selects a device from the connections table.
func (s *session) use(id string) error {
	c, err := s.mgr.Client(id)
	if err != nil {
		return err
	}
	if c != s.current {
		s.discard()
	}
	s.current = c
	return nil
}

// connect selects a target by URI, outside the connections table.
func (s *session) connect(registry *client.Registry, uri string, cfg client.Config) error {
	c, err := registry.New("uri", uri, cfg)
	if err != nil {
		return err
	}
	s.discard()
	if s.adhoc != nil {
		s.adhoc.Close()
	}
	s.adhoc, s.current = c, c
	return nil
}

func (s *session) close() error {
	var errs []error
	if s.adhoc != nil {
		errs = append(errs, s.adhoc.Close())
	}
	errs = append(errs, s.mgr.Close())
	return errors.Join(errs...)
}

// discard drops the transactions and results queued against the current
// target. Manager clients are cached, so anything left queued would go out
// on the next dispatch after switching back.
func (s *session) discard() {
	if s.current != nil {
		if n := s.current.Discard(); n > 0 {
			fmt.Fprintf(s.out, "discarding %d queued packet(s)\n", n)
		}
	}
	if len(s.pending) > 0 {
		fmt.Fprintf(s.out, "dropping %d pending result(s)\n", len(s.pending))
	}
	s.pending = nil
}

func (s *session) target() (*client.Client, error) {
	if s.current == nil {
		return nil, errNoTarget
	}
	return s.current, nil
}

// exec runs one command line split into fields.
func (s *session) exec(ctx context.Context, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	queued := true
	switch cmd {
	case "read", "r":
		err = s.cmdRead(args, wire.Incremental)
	case "fifo":
		err = s.cmdRead(args, wire.NonIncremental)
	case "write", "w":
		err = s.cmdWrite(args)
	case "mwrite":
		err = s.cmdWriteMasked(args)
	case "rmw-bits":
		err = s.cmdRMWBits(args)
	case "rmw-sum":
		err = s.cmdRMWSum(args)
	case "info":
		err = s.cmdInfo()
	default:
		queued = false
	}
	if queued {
		if err != nil || s.batch {
			return err
		}
		return s.dispatch(ctx)
	}

	switch cmd {
	case "dispatch", "d":
		return s.dispatch(ctx)
	case "queue":
		return s.cmdQueue(args)
	case "ping":
		return s.cmdPing(ctx)
	case "devices", "ls":
		return s.cmdDevices(args)
	case "use":
		if len(args) != 1 {
			return fmt.Errorf("%w: use <device-id>", errUsage)
		}
		return s.use(args[0])
	case "status":
		return s.cmdStatus()
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (s *session) dispatch(ctx context.Context) error {
	c, err := s.target()
	if err != nil {
		return err
	}
	pending := s.pending
	s.pending = nil

	if err := c.Dispatch(ctx); err != nil {
		return err
	}
	for _, p := range pending {
		if err := p(s.out); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) cmdRead(args []string, mode wire.BlockMode) error {
	c, err := s.target()
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: read <addr> [count]", errUsage)
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return err
	}

	if len(args) == 1 && mode == wire.Incremental {
		v, err := c.Read(addr)
		if err != nil {
			return err
		}
		s.pending = append(s.pending, func(w io.Writer) error {
			x, err := v.Value()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "0x%08x: 0x%08x\n", addr, x)
			return nil
		})
		return nil
	}

	count := uint32(1)
	if len(args) == 2 {
		if count, err = parseWord(args[1]); err != nil {
			return err
		}
	}
	v, err := c.ReadBlock(addr, count, mode)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, func(w io.Writer) error {
		values, err := v.Value()
		if err != nil {
			return err
		}
		for i, x := range values {
			a := addr
			if mode == wire.Incremental {
				a += uint32(i)
			}
			fmt.Fprintf(w, "0x%08x: 0x%08x\n", a, x)
		}
		return nil
	})
	return nil
}

func (s *session) cmdWrite(args []string) error {
	c, err := s.target()
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("%w: write <addr> <value>...", errUsage)
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return err
	}
	values, err := parseWords(args[1:])
	if err != nil {
		return err
	}
	if len(values) == 1 {
		return c.Write(addr, values[0])
	}
	return c.WriteBlock(addr, values, wire.Incremental)
}

func (s *session) cmdWriteMasked(args []string) error {
	c, err := s.target()
	if err != nil {
		return err
	}
	if len(args) != 3 {
		return fmt.Errorf("%w: mwrite <addr> <value> <mask>", errUsage)
	}
	w, err := parseWords(args)
	if err != nil {
		return err
	}
	return c.WriteMasked(w[0], w[1], w[2])
}

func (s *session) cmdRMWBits(args []string) error {
	c, err := s.target()
	if err != nil {
		return err
	}
	if len(args) != 3 {
		return fmt.Errorf("%w: rmw-bits <addr> <and> <or>", errUsage)
	}
	w, err := parseWords(args)
	if err != nil {
		return err
	}
	v, err := c.RMWBits(w[0], w[1], w[2])
	if err != nil {
		return err
	}
	s.pending = append(s.pending, func(out io.Writer) error {
		x, err := v.Value()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "0x%08x: 0x%08x\n", w[0], x)
		return nil
	})
	return nil
}

func (s *session) cmdRMWSum(args []string) error {
	c, err := s.target()
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: rmw-sum <addr> <addend>", errUsage)
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return err
	}
	addend, err := strconv.ParseInt(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("bad addend %q: %w", args[1], err)
	}
	v, err := c.RMWSum(addr, int32(addend))
	if err != nil {
		return err
	}
	s.pending = append(s.pending, func(out io.Writer) error {
		x, err := v.Value()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "0x%08x: %d\n", addr, x)
		return nil
	})
	return nil
}

func (s *session) cmdInfo() error {
	c, err := s.target()
	if err != nil {
		return err
	}
	v, err := c.ReadReservedAddressInfo()
	if err != nil {
		return err
	}
	s.pending = append(s.pending, func(out io.Writer) error {
		words, err := v.Value()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "reserved base 0x%08x, size 0x%08x\n", words[0], words[1])
		return nil
	})
	return nil
}

func (s *session) cmdQueue(args []string) error {
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on":
			s.batch = true
		case "off":
			s.batch = false
		default:
			return fmt.Errorf("%w: queue [on|off]", errUsage)
		}
	}
	mode := "immediate"
	if s.batch {
		mode = "batched"
	}
	queued := 0
	if s.current != nil {
		queued = s.current.Queued()
	}
	fmt.Fprintf(s.out, "mode: %s, %d packet(s) queued, %d result(s) pending\n", mode, queued, len(s.pending))
	return nil
}

func (s *session) cmdPing(ctx context.Context) error {
	c, err := s.target()
	if err != nil {
		return err
	}
	start := time.Now()
	if s.wait > 0 {
		ctx, cancel := context.WithTimeout(ctx, s.wait)
		defer cancel()
		err = connection.WaitReachable(ctx, c, connection.NewBackoff(), 0)
	} else {
		err = c.Ping(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: alive (%s)\n", c.URL(), time.Since(start).Round(time.Microsecond))
	return nil
}

func (s *session) cmdDevices(args []string) error {
	ids := s.mgr.Devices()
	if len(args) == 1 {
		var err error
		if ids, err = s.mgr.DevicesMatching(args[0]); err != nil {
			return err
		}
	}
	for _, id := range ids {
		e, err := s.mgr.Entry(id)
		if err != nil {
			return err
		}
		mark := " "
		if s.current != nil && s.current.ID() == id {
			mark = "*"
		}
		fmt.Fprintf(s.out, "%s %-20s %s\n", mark, id, e.URI)
		if e.AddressTable != "" {
			fmt.Fprintf(s.out, "  %-20s table: %s\n", "", e.AddressTable)
		}
	}
	return nil
}

func (s *session) cmdStatus() error {
	c, err := s.target()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "target:  %s (%s)\n", c.ID(), c.URL())
	fmt.Fprintf(s.out, "timeout: %s\n", c.Timeout())
	return s.cmdQueue(nil)
}

func parseWord(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad value %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseWords(args []string) ([]uint32, error) {
	out := make([]uint32, len(args))
	for i, a := range args {
		v, err := parseWord(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
