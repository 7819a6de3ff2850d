// Package dummyhw provides an in-process IPbus device served over TCP.
//
// The device keeps a sparse 32-bit register space and answers IPbus 1.3 and
// 2.0 control transactions the way firmware would. Tests use it as the far
// end of a client; SetSilent and SetReplyDelay make it misbehave on purpose.
package dummyhw

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ipbus/uhal-go/pkg/version"
	"github.com/ipbus/uhal-go/pkg/wire"
)

// Device errors.
var (
	// ErrAlreadyRunning is returned by Start on a running device.
	ErrAlreadyRunning = errors.New("device already running")

	// ErrBadHeader indicates a request word that is not a valid header.
	ErrBadHeader = errors.New("bad header")
)

// DefaultReservedAddressInfo is returned for reserved address info requests
// when Config leaves it empty: base 0x0 and size 0x1000.
var DefaultReservedAddressInfo = [2]uint32{0x00000000, 0x00001000}

// Config configures a Device.
type Config struct {
	// Address to listen on (default "127.0.0.1:0").
	Address string

	// Version is the protocol spoken (default IPbus 2.0).
	Version version.Version

	// ReservedAddressInfo is the reply to a 1.3 reserved address info request.
	ReservedAddressInfo [2]uint32

	// Logger for operational messages (optional).
	Logger *slog.Logger
}

// Device is a dummy IPbus target.
type Device struct {
	config   Config
	logger   *slog.Logger
	listener net.Listener

	regsMu sync.Mutex
	regs   map[uint32]uint32

	conns   map[net.Conn]struct{}
	connsMu sync.Mutex

	silent       atomic.Bool
	replyDelay   atomic.Int64
	busError     atomic.Int64
	transactions atomic.Uint64

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New creates a stopped device.
func New(config Config) *Device {
	if config.Address == "" {
		config.Address = "127.0.0.1:0"
	}
	if config.Version == (version.Version{}) {
		config.Version = version.IPbus20
	}
	if config.ReservedAddressInfo == [2]uint32{} {
		config.ReservedAddressInfo = DefaultReservedAddressInfo
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Device{
		config: config,
		logger: logger,
		regs:   make(map[uint32]uint32),
		conns:  make(map[net.Conn]struct{}),
	}
	d.busError.Store(-1)
	return d
}

// Start listens and serves connections until Stop or ctx is cancelled.
func (d *Device) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if d.config.Version != version.IPbus20 && d.config.Version != version.IPbus13 {
		d.running.Store(false)
		return fmt.Errorf("unsupported version %s", d.config.Version)
	}

	listener, err := net.Listen("tcp", d.config.Address)
	if err != nil {
		d.running.Store(false)
		return fmt.Errorf("failed to listen: %w", err)
	}
	d.listener = listener

	ctx, d.cancel = context.WithCancel(ctx)
	d.group, ctx = errgroup.WithContext(ctx)
	d.group.Go(func() error {
		<-ctx.Done()
		return d.listener.Close()
	})
	d.group.Go(func() error {
		return d.acceptLoop(ctx)
	})

	d.logger.Info("dummy device listening", "addr", listener.Addr().String(), "version", d.config.Version.String())
	return nil
}

// Stop closes the listener and all connections and waits for them to end.
func (d *Device) Stop() error {
	if !d.running.CompareAndSwap(true, false) {
		return nil
	}
	d.cancel()

	d.connsMu.Lock()
	for conn := range d.conns {
		conn.Close()
	}
	d.connsMu.Unlock()

	err := d.group.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the listen address, or nil before Start.
func (d *Device) Addr() net.Addr {
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// URI returns the client URI addressing this device.
func (d *Device) URI() string {
	return fmt.Sprintf("%s://%s", version.Scheme("tcp", d.config.Version), d.Addr())
}

// ConnectionCount returns the number of open client connections.
func (d *Device) ConnectionCount() int {
	d.connsMu.Lock()
	defer d.connsMu.Unlock()
	return len(d.conns)
}

// Transactions returns the number of transactions handled so far.
func (d *Device) Transactions() uint64 {
	return d.transactions.Load()
}

// SetSilent makes the device consume requests without replying.
func (d *Device) SetSilent(silent bool) {
	d.silent.Store(silent)
}

// SetReplyDelay delays every reply flush by delay.
func (d *Device) SetReplyDelay(delay time.Duration) {
	d.replyDelay.Store(int64(delay))
}

// SetBusError makes reads and writes based at addr fail with a bus error
// info code. A negative addr clears it.
func (d *Device) SetBusError(addr int64) {
	d.busError.Store(addr)
}

// status returns the info code for a transaction based at addr.
func (d *Device) status(addr uint32, write bool) wire.InfoCode {
	if d.busError.Load() != int64(addr) {
		return wire.InfoSuccess
	}
	if write {
		return wire.InfoBusWriteError
	}
	return wire.InfoBusReadError
}

// Peek returns a register value.
func (d *Device) Peek(addr uint32) uint32 {
	d.regsMu.Lock()
	defer d.regsMu.Unlock()
	return d.regs[addr]
}

// Poke sets a register value.
func (d *Device) Poke(addr, value uint32) {
	d.regsMu.Lock()
	defer d.regsMu.Unlock()
	d.regs[addr] = value
}

func (d *Device) acceptLoop(ctx context.Context) error {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept error: %w", err)
		}

		d.connsMu.Lock()
		d.conns[conn] = struct{}{}
		d.connsMu.Unlock()

		d.group.Go(func() error {
			defer func() {
				d.connsMu.Lock()
				delete(d.conns, conn)
				d.connsMu.Unlock()
				conn.Close()
			}()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()

			if err := d.serve(conn); err != nil {
				d.logger.Debug("connection closed", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return nil
		})
	}
}

// serve answers requests on one connection. Replies are buffered and
// flushed whenever no more request bytes are pending.
func (d *Device) serve(conn net.Conn) error {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	s := &session{dev: d, conn: conn, r: r, w: w}

	for {
		var err error
		if d.config.Version == version.IPbus13 {
			err = s.handle13()
		} else {
			err = s.handle2()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Send what was answered so far, including any error header.
			s.flush()
			return err
		}
		if r.Buffered() == 0 {
			if err := s.flush(); err != nil {
				return err
			}
		}
	}
}

// session holds per-connection codec state.
type session struct {
	dev  *Device
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	buf  [4]byte
}

func (s *session) readWord() (uint32, error) {
	if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(s.buf[:]), nil
}

func (s *session) writeWord(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.w.Write(b[:])
}

func (s *session) flush() error {
	if delay := time.Duration(s.dev.replyDelay.Load()); delay > 0 {
		time.Sleep(delay)
	}
	if s.dev.silent.Load() {
		s.w.Reset(s.conn)
		return nil
	}
	return s.w.Flush()
}
