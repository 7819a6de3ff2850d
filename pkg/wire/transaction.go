package wire

import (
	"errors"
	"fmt"
)

// Packing errors.
var (
	// ErrMalformedPacket indicates a transaction that cannot be packed: an
	// empty block, inconsistent payload, or one that cannot fit any packet.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrMalformedReply indicates a reply whose headers do not match the
	// request that was sent.
	ErrMalformedReply = errors.New("malformed reply")

	// ErrUnsupportedVersion indicates no serializer exists for a version.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// WordSize is the size of a bus word in bytes.
const WordSize = 4

// PacketInfo describes one logical register operation: what to send and
// where the reply payload must land.
type PacketInfo struct {
	// Kind is the operation.
	Kind Kind

	// Addr is the target (base) address.
	Addr uint32

	// Words is the block length for block kinds.
	Words uint32

	// Payload holds outbound words: write data, AND/OR terms or the addend.
	Payload []uint32

	// Reply receives the reply payload words in wire byte order. When nil,
	// the packer allocates a scratch region and the payload is discarded.
	Reply []byte
}

// NewReadInfo describes a block read of words registers.
func NewReadInfo(addr, words uint32, mode BlockMode, reply []byte) *PacketInfo {
	return &PacketInfo{Kind: ReadKind(mode), Addr: addr, Words: words, Reply: reply}
}

// NewWriteInfo describes a block write of values.
func NewWriteInfo(addr uint32, values []uint32, mode BlockMode) *PacketInfo {
	return &PacketInfo{Kind: WriteKind(mode), Addr: addr, Words: uint32(len(values)), Payload: values}
}

// NewRMWBitsInfo describes an atomic (current & andTerm) | orTerm.
func NewRMWBitsInfo(addr, andTerm, orTerm uint32, reply []byte) *PacketInfo {
	return &PacketInfo{Kind: KindRMWBits, Addr: addr, Payload: []uint32{andTerm, orTerm}, Reply: reply}
}

// NewRMWSumInfo describes an atomic current + addend.
func NewRMWSumInfo(addr uint32, addend int32, reply []byte) *PacketInfo {
	return &PacketInfo{Kind: KindRMWSum, Addr: addr, Payload: []uint32{uint32(addend)}, Reply: reply}
}

// NewPingInfo describes a liveness transaction.
func NewPingInfo() *PacketInfo {
	return &PacketInfo{Kind: KindPing}
}

// NewReservedAddressInfo describes a fetch of the reserved address range.
func NewReservedAddressInfo(reply []byte) *PacketInfo {
	return &PacketInfo{Kind: KindReservedAddressInfo, Reply: reply}
}

// ReplyWords returns the number of payload words the reply carries, not
// counting the transaction header.
func (pi *PacketInfo) ReplyWords() uint32 {
	switch pi.Kind {
	case KindRead, KindReadNonInc:
		return pi.Words
	case KindRMWBits, KindRMWSum:
		return 1
	case KindReservedAddressInfo:
		return 2
	default:
		return 0
	}
}

// Validate checks that the descriptor is self-consistent.
func (pi *PacketInfo) Validate() error {
	if !pi.Kind.IsValid() {
		return fmt.Errorf("%w: unknown transaction kind %d", ErrMalformedPacket, pi.Kind)
	}

	switch pi.Kind {
	case KindRead, KindReadNonInc:
		if pi.Words == 0 {
			return fmt.Errorf("%w: %s of zero words", ErrMalformedPacket, pi.Kind)
		}
		if len(pi.Payload) != 0 {
			return fmt.Errorf("%w: %s with %d payload words", ErrMalformedPacket, pi.Kind, len(pi.Payload))
		}
	case KindWrite, KindWriteNonInc:
		if pi.Words == 0 {
			return fmt.Errorf("%w: %s of zero words", ErrMalformedPacket, pi.Kind)
		}
		if uint32(len(pi.Payload)) != pi.Words {
			return fmt.Errorf("%w: %s of %d words with %d payload words",
				ErrMalformedPacket, pi.Kind, pi.Words, len(pi.Payload))
		}
	case KindRMWBits:
		if len(pi.Payload) != 2 {
			return fmt.Errorf("%w: RMWBits needs AND and OR terms, got %d words", ErrMalformedPacket, len(pi.Payload))
		}
	case KindRMWSum:
		if len(pi.Payload) != 1 {
			return fmt.Errorf("%w: RMWSum needs one addend, got %d words", ErrMalformedPacket, len(pi.Payload))
		}
	}

	if pi.Reply != nil && len(pi.Reply) != int(pi.ReplyWords())*WordSize {
		return fmt.Errorf("%w: %s reply region of %d bytes, expected %d",
			ErrMalformedPacket, pi.Kind, len(pi.Reply), pi.ReplyWords()*WordSize)
	}

	return nil
}

// chunk returns the sub-transaction covering words [offset, offset+n) of a
// block transaction. Reply and payload regions alias the parent's.
func (pi *PacketInfo) chunk(offset, n uint32) *PacketInfo {
	c := &PacketInfo{Kind: pi.Kind, Addr: pi.Addr, Words: n}
	if pi.Kind == KindRead || pi.Kind == KindWrite {
		c.Addr = pi.Addr + offset
	}
	if pi.Kind.IsWrite() {
		c.Payload = pi.Payload[offset : offset+n]
	}
	if pi.Reply != nil && !pi.Kind.IsWrite() {
		c.Reply = pi.Reply[offset*WordSize : (offset+n)*WordSize]
	}
	return c
}

func errTooLong(words, limit uint32) error {
	return fmt.Errorf("%w: %d words exceed the %d word transaction limit", ErrMalformedPacket, words, limit)
}
