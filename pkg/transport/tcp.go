package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ipbus/uhal-go/pkg/log"
	"github.com/ipbus/uhal-go/pkg/wire"
)

// Transport errors.
var (
	// ErrTimeout indicates no complete reply arrived within the timeout.
	ErrTimeout = errors.New("transport timeout")

	// ErrTransport indicates an I/O failure: resolve, connect, write, read
	// or a connection reset.
	ErrTransport = errors.New("transport error")

	// ErrClosed indicates the transport was closed by its owner.
	ErrClosed = errors.New("transport closed")
)

// DefaultTimeout is the per-packet timeout used when none is configured.
const DefaultTimeout = 10 * time.Second

// Config configures a TCP transport.
type Config struct {
	// Timeout bounds connecting and each packet exchange (default: 10s).
	Timeout time.Duration

	// MaxPacketSize is the largest packet in bytes (default: 1472).
	MaxPacketSize int

	// Resolver resolves host and service (default: net.DefaultResolver).
	Resolver *net.Resolver

	// Logger receives operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger receives capture events (optional).
	ProtocolLogger log.Logger

	// DeviceID labels capture events.
	DeviceID string

	// Protocol labels capture events, e.g. "ipbustcp-2.0".
	Protocol string
}

// TCP exchanges packets over a single TCP connection. It is owned by one
// client; Dispatch calls are serialized.
type TCP struct {
	host    string
	service string
	config  Config
	logger  *slog.Logger
	capture log.Logger

	mu       sync.Mutex
	conn     net.Conn
	connID   string
	state    State
	deadline deadline
}

// NewTCP creates an unconnected transport for host and service (a port
// number or service name). Nothing is resolved until the first Dispatch.
func NewTCP(host, service string, config Config) *TCP {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxPacketSize <= 0 {
		config.MaxPacketSize = wire.DefaultMaxPacketSize
	}
	if config.Resolver == nil {
		config.Resolver = net.DefaultResolver
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	capture := config.ProtocolLogger
	if capture == nil {
		capture = log.NoopLogger{}
	}
	return &TCP{
		host:    host,
		service: service,
		config:  config,
		logger:  logger.With("target", net.JoinHostPort(host, service)),
		capture: capture,
	}
}

// MaxPacketSize returns the packet size limit the packer must honour.
func (t *TCP) MaxPacketSize() int {
	return t.config.MaxPacketSize
}

// Timeout returns the per-packet timeout.
func (t *TCP) Timeout() time.Duration {
	return t.config.Timeout
}

// State returns the current connection state.
func (t *TCP) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Dispatch sends packets in order, each followed by a wait for its complete
// reply. The first failure aborts the dispatch and tears the connection
// down; later packets are not sent.
func (t *TCP) Dispatch(ctx context.Context, packets []*wire.AccumulatedPacket) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateClosed {
		return fmt.Errorf("%w: %w", ErrTransport, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	for _, p := range packets {
		if p.Empty() {
			continue
		}
		if err := t.exchange(ctx, p); err != nil {
			t.teardown(err)
			return err
		}
	}
	return nil
}

// Close releases the connection without any goodbye.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateClosed {
		return nil
	}
	var err error
	if t.conn != nil {
		err = t.conn.Close()
		t.conn = nil
	}
	t.deadline.disarm()
	t.setState(StateClosed, "closed by owner")
	return err
}

// connect resolves the target and dials each address until one answers,
// all within the timeout.
func (t *TCP) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	port, err := t.config.Resolver.LookupPort(ctx, "tcp", t.service)
	if err != nil {
		return fmt.Errorf("%w: resolve service %q: %w", ErrTransport, t.service, err)
	}
	addrs, err := t.config.Resolver.LookupHost(ctx, t.host)
	if err != nil {
		return fmt.Errorf("%w: resolve host %q: %w", ErrTransport, t.host, err)
	}

	var dialer net.Dialer
	var errs []error
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}
		t.conn = conn
		t.connID = uuid.NewString()
		t.logger.Info("connected", "remote", conn.RemoteAddr().String(), "conn_id", t.connID)
		t.setState(StateConnected, "")
		return nil
	}
	return fmt.Errorf("%w: connect %s: %w", ErrTransport, net.JoinHostPort(t.host, t.service), errors.Join(errs...))
}

// exchange writes one packet and reads its reply.
func (t *TCP) exchange(ctx context.Context, p *wire.AccumulatedPacket) error {
	if t.conn == nil {
		if err := t.connect(ctx); err != nil {
			return err
		}
	}
	conn := t.conn

	// Stale deadlines from an earlier interrupt must not leak into this packet.
	conn.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	t.setState(StateSending, fmt.Sprintf("packet %d", p.ID))
	start := time.Now()
	t.logFrame(log.DirectionOut, p.Bytes)

	conn.SetWriteDeadline(start.Add(t.config.Timeout))
	bufs := make(net.Buffers, len(p.SendBuffers))
	copy(bufs, p.SendBuffers)
	if _, err := bufs.WriteTo(conn); err != nil {
		return t.ioError(ctx, "write", err)
	}
	conn.SetWriteDeadline(time.Time{})

	t.setState(StateAwaitingReply, fmt.Sprintf("packet %d", p.ID))
	t.deadline.arm(t.config.Timeout, func() { conn.SetReadDeadline(time.Now()) })
	defer t.deadline.disarm()

	want := p.ReplySize()
	got := 0
	region, off := 0, 0
	for got < want {
		for off == len(p.ReplyBuffers[region]) {
			region++
			off = 0
		}
		n, err := conn.Read(p.ReplyBuffers[region][off:])
		got += n
		off += n

		if t.deadline.Expired() {
			t.logger.Warn("reply timed out", "packet_id", p.ID, "received", got, "expected", want)
			return fmt.Errorf("%w: packet %d: %d of %d reply bytes after %s",
				ErrTimeout, p.ID, got, want, t.config.Timeout)
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if err != nil {
			return t.ioError(ctx, "read", err)
		}
	}

	rtt := time.Since(start)
	t.setState(StateConnected, fmt.Sprintf("packet %d", p.ID))
	t.logger.Debug("packet exchanged", "packet_id", p.ID, "send_bytes", p.SendSize(), "reply_bytes", want, "rtt", rtt)
	t.logFrame(log.DirectionIn, p.ReplyBytes)
	t.capture.Log(t.event(log.DirectionIn, log.LayerPacking, log.CategoryPacket, func(e *log.Event) {
		e.Packet = &log.PacketEvent{
			PacketID:     p.ID,
			Transactions: p.Transactions(),
			SendWords:    uint32(p.SendSize() / wire.WordSize),
			ReplyWords:   p.CumulativeReturnSize,
			Protocol:     t.config.Protocol,
			Duration:     &rtt,
		}
	}))
	return nil
}

func (t *TCP) ioError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// teardown drops the connection after a failed exchange; the stream is no
// longer aligned to packet boundaries.
func (t *TCP) teardown(cause error) {
	t.deadline.disarm()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.capture.Log(t.event(log.DirectionIn, log.LayerTransport, log.CategoryError, func(e *log.Event) {
		e.Error = &log.ErrorEventData{Layer: log.LayerTransport, Message: cause.Error(), Context: "dispatch"}
	}))
	t.setState(StateUnconnected, cause.Error())
}

func (t *TCP) setState(s State, reason string) {
	old := t.state
	t.state = s
	if old == s {
		return
	}
	t.capture.Log(t.event(log.DirectionOut, log.LayerTransport, log.CategoryState, func(e *log.Event) {
		e.StateChange = &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		}
	}))
}

func (t *TCP) logFrame(dir log.Direction, data func() []byte) {
	if _, off := t.capture.(log.NoopLogger); off {
		return
	}
	t.capture.Log(t.event(dir, log.LayerTransport, log.CategoryPacket, func(e *log.Event) {
		e.Frame = log.NewFrameEvent(data())
	}))
}

func (t *TCP) event(dir log.Direction, layer log.Layer, cat log.Category, fill func(*log.Event)) log.Event {
	e := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.connID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		DeviceID:     t.config.DeviceID,
		RemoteAddr:   net.JoinHostPort(t.host, t.service),
	}
	fill(&e)
	return e
}
