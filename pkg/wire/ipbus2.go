package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/ipbus/uhal-go/pkg/version"
)

// IPbus 2.0 constants.
const (
	ipbus2ProtocolVersion = 2
	ipbus2PacketControl   = 0x0
	ipbus2ByteOrderMark   = 0xF0

	// IPbus2MaxTransactionWords is the largest block in one transaction.
	IPbus2MaxTransactionWords = 0xFF
)

// IPbus 2.0 transaction type IDs.
const (
	ipbus2TypeRead        = 0x0
	ipbus2TypeWrite       = 0x1
	ipbus2TypeReadNonInc  = 0x2
	ipbus2TypeWriteNonInc = 0x3
	ipbus2TypeRMWBits     = 0x4
	ipbus2TypeRMWSum      = 0x5
)

// IPbus2 serializes IPbus 2.0 control packets, big-endian.
//
// Packet header:      ver(4)=2 | rsvd(4) | packet ID(16) | 0xF(4) | type(4)
// Transaction header: ver(4)=2 | ID(12) | words(8) | type(4) | info(4)
type IPbus2 struct{}

// NewIPbus2 returns the IPbus 2.0 serializer.
func NewIPbus2() *IPbus2 {
	return &IPbus2{}
}

// Version implements Serializer.
func (*IPbus2) Version() version.Version { return version.IPbus20 }

// ByteOrder implements Serializer.
func (*IPbus2) ByteOrder() binary.ByteOrder { return binary.BigEndian }

// Supports implements Serializer. Reserved address info does not exist in 2.0.
func (*IPbus2) Supports(k Kind) bool {
	return k.IsValid() && k != KindReservedAddressInfo
}

// MaxTransactionWords implements Serializer.
func (*IPbus2) MaxTransactionWords() uint32 { return IPbus2MaxTransactionWords }

// MaxTransactions implements Serializer.
func (*IPbus2) MaxTransactions() int { return 1 << 12 }

// Sizes implements Serializer.
func (*IPbus2) Sizes(k Kind, words uint32) (uint32, uint32) {
	switch k {
	case KindRead, KindReadNonInc:
		return 2, 1 + words
	case KindWrite, KindWriteNonInc:
		return 2 + words, 1
	case KindRMWBits:
		return 4, 2
	case KindRMWSum:
		return 3, 2
	default:
		return 2, 1
	}
}

// PacketHeader returns the control packet header for id.
func (*IPbus2) PacketHeader(id uint16) uint32 {
	return ipbus2ProtocolVersion<<28 | uint32(id)<<8 | ipbus2ByteOrderMark | ipbus2PacketControl
}

// TransactionHeader builds a transaction header word.
func (*IPbus2) TransactionHeader(id uint16, words uint8, typeID uint8, code InfoCode) uint32 {
	return ipbus2ProtocolVersion<<28 | uint32(id&0xFFF)<<16 | uint32(words)<<8 |
		uint32(typeID&0xF)<<4 | uint32(code&0xF)
}

// BeginPacket implements Serializer. The device echoes the packet header.
func (s *IPbus2) BeginPacket(p *AccumulatedPacket) {
	h := s.PacketHeader(p.ID)
	p.addHeader(binary.BigEndian, h, h)
}

// Encode implements Serializer.
func (s *IPbus2) Encode(p *AccumulatedPacket, info *PacketInfo) error {
	if !s.Supports(info.Kind) {
		return fmt.Errorf("%w: %s not supported by IPbus %s", ErrMalformedPacket, info.Kind, s.Version())
	}

	var typeID uint8
	var words uint32
	switch info.Kind {
	case KindRead:
		typeID, words = ipbus2TypeRead, info.Words
	case KindWrite:
		typeID, words = ipbus2TypeWrite, info.Words
	case KindReadNonInc:
		typeID, words = ipbus2TypeReadNonInc, info.Words
	case KindWriteNonInc:
		typeID, words = ipbus2TypeWriteNonInc, info.Words
	case KindRMWBits:
		typeID, words = ipbus2TypeRMWBits, 1
	case KindRMWSum:
		typeID, words = ipbus2TypeRMWSum, 1
	case KindPing:
		typeID, words = ipbus2TypeRead, 0
	}
	if words > IPbus2MaxTransactionWords {
		return errTooLong(words, IPbus2MaxTransactionWords)
	}

	id := p.allocTxID()
	body := append([]uint32{info.Addr}, info.Payload...)
	p.addTransaction(binary.BigEndian, id, info.Kind,
		s.TransactionHeader(id, uint8(words), typeID, InfoRequest), body,
		s.TransactionHeader(id, uint8(words), typeID, InfoSuccess), info.Reply, info.ReplyWords())
	return nil
}

// ValidateReply implements Serializer.
func (*IPbus2) ValidateReply(p *AccumulatedPacket) error {
	return p.validate(binary.BigEndian, func(w uint32) InfoCode { return InfoCode(w & 0xF) })
}

// Compile-time interface satisfaction check.
var _ Serializer = (*IPbus2)(nil)
