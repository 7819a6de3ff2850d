package wire

import (
	"fmt"
	"math"
)

// Packer size limits.
const (
	// DefaultMaxPacketSize is an Ethernet MTU less the IP and UDP headers.
	DefaultMaxPacketSize = 1500 - 28

	// MinMaxPacketSize is the smallest limit that still fits an RMWBits
	// transaction behind a packet header.
	MinMaxPacketSize = 5 * WordSize
)

// Packer accumulates transactions into size-bounded packets. Packets and the
// transactions inside them keep the order in which they were packed.
type Packer struct {
	serializer Serializer
	maxWords   uint32
	packets    []*AccumulatedPacket
	nextID     uint16
}

// NewPacker creates a packer that never builds a packet (request or reply)
// larger than maxPacketSize bytes.
func NewPacker(s Serializer, maxPacketSize int) (*Packer, error) {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	p := &Packer{
		serializer: s,
		maxWords:   uint32(maxPacketSize / WordSize),
		nextID:     1,
	}

	// Every supported kind must fit an empty packet, with at least one
	// word for block kinds.
	for k := KindRead; k <= KindReservedAddressInfo; k++ {
		if !s.Supports(k) {
			continue
		}
		if p.room(p.newPacket(0), k) == 0 {
			return nil, fmt.Errorf("%w: max packet size %d cannot hold a %s transaction",
				ErrMalformedPacket, maxPacketSize, k)
		}
	}
	return p, nil
}

// Serializer returns the serializer in use.
func (p *Packer) Serializer() Serializer {
	return p.serializer
}

// MaxPacketSize returns the packet size limit in bytes.
func (p *Packer) MaxPacketSize() int {
	return int(p.maxWords) * WordSize
}

// Pack adds a transaction to the current packet, starting new packets as
// needed. Block transactions are split when they exceed the per-transaction
// word limit or the space left in a packet.
func (p *Packer) Pack(info *PacketInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if !p.serializer.Supports(info.Kind) {
		return fmt.Errorf("%w: %s not supported by IPbus %s",
			ErrMalformedPacket, info.Kind, p.serializer.Version())
	}

	if !info.Kind.IsBlock() {
		return p.serializer.Encode(p.target(info.Kind), info)
	}

	for offset := uint32(0); offset < info.Words; {
		cur := p.target(info.Kind)
		n := min(p.room(cur, info.Kind), info.Words-offset, p.serializer.MaxTransactionWords())
		if err := p.serializer.Encode(cur, info.chunk(offset, n)); err != nil {
			return err
		}
		offset += n
	}
	return nil
}

// Packet builds a standalone packet holding only info. It is not queued and
// carries packet ID 0, which sits outside the sequence of queued packets.
func (p *Packer) Packet(info *PacketInfo) (*AccumulatedPacket, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	pkt := p.newPacket(0)
	if p.room(pkt, info.Kind) < max(info.Words, 1) {
		return nil, fmt.Errorf("%w: %s does not fit a single packet", ErrMalformedPacket, info.Kind)
	}
	if err := p.serializer.Encode(pkt, info); err != nil {
		return nil, err
	}
	return pkt, nil
}

// AccumulatedPackets returns the queued packets in send order.
func (p *Packer) AccumulatedPackets() []*AccumulatedPacket {
	return p.packets
}

// Len returns the number of queued packets.
func (p *Packer) Len() int {
	return len(p.packets)
}

// Reset drops all queued packets.
func (p *Packer) Reset() {
	p.packets = nil
}

// target returns the current packet if a transaction of kind k still fits,
// otherwise it queues a new one.
func (p *Packer) target(k Kind) *AccumulatedPacket {
	if n := len(p.packets); n > 0 && p.room(p.packets[n-1], k) > 0 {
		return p.packets[n-1]
	}
	pkt := p.emptyPacket()
	p.packets = append(p.packets, pkt)
	return pkt
}

// emptyPacket starts a packet with the next packet ID. IDs wrap to 1.
func (p *Packer) emptyPacket() *AccumulatedPacket {
	pkt := p.newPacket(p.nextID)
	p.nextID++
	if p.nextID == 0 {
		p.nextID = 1
	}
	return pkt
}

func (p *Packer) newPacket(id uint16) *AccumulatedPacket {
	pkt := &AccumulatedPacket{ID: id}
	p.serializer.BeginPacket(pkt)
	return pkt
}

// room returns how many payload words a transaction of kind k may carry in
// pkt. For fixed-size kinds any non-zero result means it fits.
func (p *Packer) room(pkt *AccumulatedPacket, k Kind) uint32 {
	if int(pkt.nextTxID) >= p.serializer.MaxTransactions() {
		return 0
	}
	s0, r0 := p.serializer.Sizes(k, 0)
	s1, r1 := p.serializer.Sizes(k, 1)
	if pkt.sendWords+s0 > p.maxWords || pkt.CumulativeReturnSize+r0 > p.maxWords {
		return 0
	}

	n := uint32(math.MaxUint32)
	if ds := s1 - s0; ds > 0 {
		n = min(n, (p.maxWords-pkt.sendWords-s0)/ds)
	}
	if dr := r1 - r0; dr > 0 {
		n = min(n, (p.maxWords-pkt.CumulativeReturnSize-r0)/dr)
	}
	return n
}
