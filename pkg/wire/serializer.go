package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/ipbus/uhal-go/pkg/version"
)

// Serializer encodes transactions for one protocol version. The packer owns
// the accumulation policy; the serializer only knows the header grammar.
type Serializer interface {
	// Version returns the protocol version spoken.
	Version() version.Version

	// ByteOrder returns the byte order of words on the wire.
	ByteOrder() binary.ByteOrder

	// Supports reports whether the kind can be expressed.
	Supports(k Kind) bool

	// MaxTransactionWords returns the largest block one transaction carries.
	MaxTransactionWords() uint32

	// MaxTransactions returns the number of transaction IDs per packet.
	MaxTransactions() int

	// Sizes returns the request and reply size in words of a transaction of
	// kind k carrying words payload words, headers included.
	Sizes(k Kind, words uint32) (send, reply uint32)

	// BeginPacket writes the packet preamble into an empty packet.
	BeginPacket(p *AccumulatedPacket)

	// Encode appends one transaction to p.
	Encode(p *AccumulatedPacket, info *PacketInfo) error

	// ValidateReply checks the headers of a fully received reply.
	ValidateReply(p *AccumulatedPacket) error
}

// NewSerializer returns the serializer for a protocol version.
func NewSerializer(v version.Version) (Serializer, error) {
	switch v {
	case version.IPbus20:
		return NewIPbus2(), nil
	case version.IPbus13:
		return NewIPbus13(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
}
