package wire

import (
	"encoding/binary"

	"github.com/ipbus/uhal-go/pkg/version"
)

// IPbus 1.3 constants.
const (
	ipbus13ProtocolVersion = 1
	ipbus13Request         = 0
	ipbus13Response        = 1

	// IPbus13MaxTransactionWords is the largest block in one transaction.
	IPbus13MaxTransactionWords = 0x1FF
)

// IPbus 1.3 transaction type IDs.
const (
	ipbus13TypeRead                = 0x03
	ipbus13TypeWrite               = 0x04
	ipbus13TypeRMWBits             = 0x05
	ipbus13TypeRMWSum              = 0x06
	ipbus13TypeReadNonInc          = 0x08
	ipbus13TypeWriteNonInc         = 0x09
	ipbus13TypeReservedAddressInfo = 0x1E
	ipbus13TypeByteOrder           = 0x1F
)

// IPbus13 serializes IPbus 1.3 packets, big-endian. A packet opens with a
// byte-order transaction instead of a packet header.
//
// Transaction header: ver(4)=1 | ID(11) | words(9) | type(5) | dir(1) | info(2)
type IPbus13 struct{}

// NewIPbus13 returns the IPbus 1.3 serializer.
func NewIPbus13() *IPbus13 {
	return &IPbus13{}
}

// Version implements Serializer.
func (*IPbus13) Version() version.Version { return version.IPbus13 }

// ByteOrder implements Serializer.
func (*IPbus13) ByteOrder() binary.ByteOrder { return binary.BigEndian }

// Supports implements Serializer.
func (*IPbus13) Supports(k Kind) bool { return k.IsValid() }

// MaxTransactionWords implements Serializer.
func (*IPbus13) MaxTransactionWords() uint32 { return IPbus13MaxTransactionWords }

// MaxTransactions implements Serializer.
func (*IPbus13) MaxTransactions() int { return 1 << 11 }

// Sizes implements Serializer.
func (*IPbus13) Sizes(k Kind, words uint32) (uint32, uint32) {
	switch k {
	case KindRead, KindReadNonInc:
		return 2, 1 + words
	case KindWrite, KindWriteNonInc:
		return 2 + words, 1
	case KindRMWBits:
		return 4, 2
	case KindRMWSum:
		return 3, 2
	case KindReservedAddressInfo:
		return 1, 3
	default:
		return 1, 1
	}
}

// TransactionHeader builds a transaction header word.
func (*IPbus13) TransactionHeader(id uint16, words uint16, typeID uint8, dir uint8, code InfoCode) uint32 {
	return ipbus13ProtocolVersion<<28 | uint32(id&0x7FF)<<17 | uint32(words&0x1FF)<<8 |
		uint32(typeID&0x1F)<<3 | uint32(dir&0x1)<<2 | uint32(code&0x3)
}

// BeginPacket implements Serializer.
func (s *IPbus13) BeginPacket(p *AccumulatedPacket) {
	id := p.allocTxID()
	p.addHeader(binary.BigEndian,
		s.TransactionHeader(id, 0, ipbus13TypeByteOrder, ipbus13Request, InfoSuccess),
		s.TransactionHeader(id, 0, ipbus13TypeByteOrder, ipbus13Response, InfoSuccess))
}

// Encode implements Serializer.
func (s *IPbus13) Encode(p *AccumulatedPacket, info *PacketInfo) error {
	var typeID uint8
	var words, replyWords uint16
	body := append([]uint32{info.Addr}, info.Payload...)
	switch info.Kind {
	case KindRead:
		typeID, words = ipbus13TypeRead, uint16(info.Words)
	case KindWrite:
		typeID, words = ipbus13TypeWrite, uint16(info.Words)
	case KindReadNonInc:
		typeID, words = ipbus13TypeReadNonInc, uint16(info.Words)
	case KindWriteNonInc:
		typeID, words = ipbus13TypeWriteNonInc, uint16(info.Words)
	case KindRMWBits:
		typeID, words = ipbus13TypeRMWBits, 1
	case KindRMWSum:
		typeID, words = ipbus13TypeRMWSum, 1
	case KindPing:
		typeID, body = ipbus13TypeByteOrder, nil
	case KindReservedAddressInfo:
		typeID, body, replyWords = ipbus13TypeReservedAddressInfo, nil, 2
	}
	if info.Words > IPbus13MaxTransactionWords {
		return errTooLong(info.Words, IPbus13MaxTransactionWords)
	}
	if replyWords == 0 {
		replyWords = words
	}

	id := p.allocTxID()
	p.addTransaction(binary.BigEndian, id, info.Kind,
		s.TransactionHeader(id, words, typeID, ipbus13Request, InfoSuccess), body,
		s.TransactionHeader(id, replyWords, typeID, ipbus13Response, InfoSuccess), info.Reply, info.ReplyWords())
	return nil
}

// ValidateReply implements Serializer.
func (*IPbus13) ValidateReply(p *AccumulatedPacket) error {
	return p.validate(binary.BigEndian, func(w uint32) InfoCode { return InfoCode(w & 0x3) })
}

// Compile-time interface satisfaction check.
var _ Serializer = (*IPbus13)(nil)
