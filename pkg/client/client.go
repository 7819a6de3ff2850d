package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ipbus/uhal-go/pkg/log"
	"github.com/ipbus/uhal-go/pkg/transport"
	"github.com/ipbus/uhal-go/pkg/valmem"
	"github.com/ipbus/uhal-go/pkg/wire"
)

// Client errors.
var (
	ErrPingFailed        = errors.New("ping failed")
	ErrClientClosed      = errors.New("client is closed")
	ErrValueExceedsMask  = errors.New("value exceeds mask")
	ErrUnknownProtocol   = errors.New("unknown protocol")
	ErrDuplicateProtocol = errors.New("protocol already registered")
	ErrInvalidURI        = errors.New("invalid URI")
)

// FullMask selects all 32 bits.
const FullMask uint32 = 0xFFFFFFFF

// Client queues register operations for one target and dispatches them.
// It is safe for concurrent use; calls are serialized.
type Client struct {
	id         string
	uri        URI
	config     Config
	logger     *slog.Logger
	capture    log.Logger
	serializer wire.Serializer
	transport  transport.Transport

	mu      sync.Mutex
	packer  *wire.Packer
	pending []*valmem.Mem
	closed  bool
}

// New creates a client speaking s over tr. The packer honours the
// transport's packet size limit.
func New(id string, uri URI, s wire.Serializer, tr transport.Transport, config Config) (*Client, error) {
	config = config.withDefaults()
	packer, err := wire.NewPacker(s, tr.MaxPacketSize())
	if err != nil {
		return nil, err
	}
	return &Client{
		id:         id,
		uri:        uri,
		config:     config,
		logger:     config.Logger.With("device", id),
		capture:    config.ProtocolLogger,
		serializer: s,
		transport:  tr,
		packer:     packer,
	}, nil
}

// ID returns the client identifier.
func (c *Client) ID() string {
	return c.id
}

// URL returns the target URI as a string.
func (c *Client) URL() string {
	return c.uri.String()
}

// Timeout returns the per-packet timeout.
func (c *Client) Timeout() time.Duration {
	return c.config.Timeout
}

// Queued returns the number of packets awaiting dispatch.
func (c *Client) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.packer.Len()
}

// Discard drops every queued transaction without sending it and returns the
// number of packets dropped. Handles from the dropped transactions never
// become valid.
func (c *Client) Discard() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.packer.Len()
	c.packer.Reset()
	c.pending = nil
	if n > 0 {
		c.logger.Debug("discarded queued packets", "packets", n)
	}
	return n
}

// Write queues a single-register write.
func (c *Client) Write(addr, value uint32) error {
	return c.Pack(wire.NewWriteInfo(addr, []uint32{value}, wire.Incremental))
}

// WriteMasked queues a write of value into the bits selected by mask,
// leaving the other bits untouched. value is shifted up to the lowest set
// bit of mask and must fit in the mask.
func (c *Client) WriteMasked(addr, value, mask uint32) error {
	if mask == FullMask {
		return c.Write(addr, value)
	}
	shift := valmem.MaskShift(mask)
	shifted := value << shift
	if shifted>>shift != value || shifted&^mask != 0 {
		return fmt.Errorf("%w: 0x%x under mask 0x%08x", ErrValueExceedsMask, value, mask)
	}
	return c.Pack(wire.NewRMWBitsInfo(addr, ^mask, shifted, nil))
}

// WriteBlock queues a block write.
func (c *Client) WriteBlock(addr uint32, values []uint32, mode wire.BlockMode) error {
	return c.Pack(wire.NewWriteInfo(addr, values, mode))
}

// Read queues a single-register read.
func (c *Client) Read(addr uint32) (valmem.ValWord[uint32], error) {
	return readWord[uint32](c, addr, FullMask)
}

// ReadMasked queues a read returning the bits under mask, shifted down.
func (c *Client) ReadMasked(addr, mask uint32) (valmem.ValWord[uint32], error) {
	return readWord[uint32](c, addr, mask)
}

// ReadSigned queues a read interpreted as two's complement.
func (c *Client) ReadSigned(addr uint32) (valmem.ValWord[int32], error) {
	return readWord[int32](c, addr, FullMask)
}

// ReadSignedMasked queues a masked read interpreted as two's complement.
func (c *Client) ReadSignedMasked(addr, mask uint32) (valmem.ValWord[int32], error) {
	return readWord[int32](c, addr, mask)
}

// ReadBlock queues a block read of size words.
func (c *Client) ReadBlock(addr, size uint32, mode wire.BlockMode) (valmem.ValVector[uint32], error) {
	return readBlock[uint32](c, addr, size, mode)
}

// ReadBlockSigned queues a block read interpreted as two's complement.
func (c *Client) ReadBlockSigned(addr, size uint32, mode wire.BlockMode) (valmem.ValVector[int32], error) {
	return readBlock[int32](c, addr, size, mode)
}

// ReadReservedAddressInfo queues a fetch of the target's reserved address
// range: base address and size. Only IPbus 1.3 supports it.
func (c *Client) ReadReservedAddressInfo() (valmem.ValVector[uint32], error) {
	m := c.newMem(2)
	if err := c.pack(wire.NewReservedAddressInfo(m.Bytes()), m); err != nil {
		return valmem.ValVector[uint32]{}, err
	}
	return valmem.NewVector[uint32](m), nil
}

// RMWBits queues an atomic (current & andTerm) | orTerm and returns the new
// register value.
func (c *Client) RMWBits(addr, andTerm, orTerm uint32) (valmem.ValWord[uint32], error) {
	m := c.newMem(1)
	if err := c.pack(wire.NewRMWBitsInfo(addr, andTerm, orTerm, m.Bytes()), m); err != nil {
		return valmem.ValWord[uint32]{}, err
	}
	return valmem.NewWord[uint32](m, FullMask), nil
}

// RMWSum queues an atomic current + addend and returns the new register
// value.
func (c *Client) RMWSum(addr uint32, addend int32) (valmem.ValWord[int32], error) {
	m := c.newMem(1)
	if err := c.pack(wire.NewRMWSumInfo(addr, addend, m.Bytes()), m); err != nil {
		return valmem.ValWord[int32]{}, err
	}
	return valmem.NewWord[int32](m, FullMask), nil
}

// Pack queues a transaction described by info. Errors are immediate.
func (c *Client) Pack(info *wire.PacketInfo) error {
	return c.pack(info, nil)
}

// pack queues info and retains m until the next dispatch.
func (c *Client) pack(info *wire.PacketInfo, m *valmem.Mem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if err := c.packer.Pack(info); err != nil {
		return err
	}
	if m != nil {
		c.pending = append(c.pending, m)
	}
	return nil
}

// Ping sends one standalone liveness packet, outside the queue.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	pkt, err := c.packer.Packet(wire.NewPingInfo())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPingFailed, err)
	}
	packets := []*wire.AccumulatedPacket{pkt}
	if err := c.transport.Dispatch(ctx, packets); err != nil {
		c.logger.Warn("ping failed", "error", err)
		return fmt.Errorf("%w: %w", ErrPingFailed, err)
	}
	if err := c.serializer.ValidateReply(pkt); err != nil {
		return fmt.Errorf("%w: %w", ErrPingFailed, err)
	}
	return nil
}

// Dispatch sends every queued packet and waits for the replies. On success
// all handles queued since the last dispatch become valid. On failure none
// do. The queue is cleared either way.
func (c *Client) Dispatch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	packets := c.packer.AccumulatedPackets()
	pending := c.pending
	c.packer.Reset()
	c.pending = nil

	if len(packets) == 0 {
		return nil
	}

	c.logger.Debug("dispatching", "packets", len(packets), "handles", len(pending))
	c.logState("", "STARTED", fmt.Sprintf("%d packets", len(packets)))
	c.logPackets(packets)

	if err := c.transport.Dispatch(ctx, packets); err != nil {
		c.logger.Warn("dispatch failed", "error", err)
		c.logState("STARTED", "FAILED", err.Error())
		return fmt.Errorf("dispatch to %s: %w", c.id, err)
	}
	for _, p := range packets {
		if err := c.serializer.ValidateReply(p); err != nil {
			c.logger.Warn("bad reply", "packet_id", p.ID, "error", err)
			c.logError(err)
			c.logState("STARTED", "FAILED", err.Error())
			return fmt.Errorf("dispatch to %s: %w", c.id, err)
		}
	}

	for _, m := range pending {
		m.Validate()
	}
	c.logState("STARTED", "COMPLETED", "")
	return nil
}

// Close releases the transport. Queued operations are discarded.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.packer.Reset()
	c.pending = nil
	return c.transport.Close()
}

func (c *Client) newMem(words int) *valmem.Mem {
	return valmem.NewMem(words, c.serializer.ByteOrder())
}

func readWord[T valmem.Word](c *Client, addr, mask uint32) (valmem.ValWord[T], error) {
	m := c.newMem(1)
	if err := c.pack(wire.NewReadInfo(addr, 1, wire.Incremental, m.Bytes()), m); err != nil {
		return valmem.ValWord[T]{}, err
	}
	return valmem.NewWord[T](m, mask), nil
}

func readBlock[T valmem.Word](c *Client, addr, size uint32, mode wire.BlockMode) (valmem.ValVector[T], error) {
	m := c.newMem(int(size))
	if err := c.pack(wire.NewReadInfo(addr, size, mode, m.Bytes()), m); err != nil {
		return valmem.ValVector[T]{}, err
	}
	return valmem.NewVector[T](m), nil
}

func (c *Client) event(cat log.Category, fill func(*log.Event)) {
	if _, off := c.capture.(log.NoopLogger); off {
		return
	}
	e := log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionOut,
		Layer:      log.LayerClient,
		Category:   cat,
		DeviceID:   c.id,
		RemoteAddr: c.uri.String(),
	}
	fill(&e)
	c.capture.Log(e)
}

func (c *Client) logState(old, next, reason string) {
	c.event(log.CategoryState, func(e *log.Event) {
		e.StateChange = &log.StateChangeEvent{
			Entity:   log.StateEntityDispatch,
			OldState: old,
			NewState: next,
			Reason:   reason,
		}
	})
}

func (c *Client) logPackets(packets []*wire.AccumulatedPacket) {
	for _, p := range packets {
		c.event(log.CategoryPacket, func(e *log.Event) {
			e.Layer = log.LayerPacking
			e.Packet = &log.PacketEvent{
				PacketID:     p.ID,
				Transactions: p.Transactions(),
				SendWords:    uint32(p.SendSize() / wire.WordSize),
				ReplyWords:   p.CumulativeReturnSize,
				Protocol:     c.uri.Protocol,
			}
		})
	}
}

func (c *Client) logError(err error) {
	c.event(log.CategoryError, func(e *log.Event) {
		e.Direction = log.DirectionIn
		e.Error = &log.ErrorEventData{Layer: log.LayerClient, Message: err.Error(), Context: "validate reply"}
		var infoErr *wire.InfoCodeError
		if errors.As(err, &infoErr) {
			code := int(infoErr.Code)
			e.Error.Code = &code
		}
	})
}
