package wire

import (
	"encoding/binary"
	"fmt"
)

// AccumulatedPacket is one wire packet under construction or ready to send:
// an ordered list of outbound fragments and an ordered list of inbound
// regions the reply is scattered into.
type AccumulatedPacket struct {
	// ID is the packet ID (IPbus 2.0 only; zero otherwise).
	ID uint16

	// SendBuffers are written to the transport in order.
	SendBuffers [][]byte

	// ReplyBuffers are filled from the transport in order.
	ReplyBuffers [][]byte

	// CumulativeReturnSize is the expected reply size in words.
	CumulativeReturnSize uint32

	sendWords    uint32
	nextTxID     uint16
	transactions int
	checks       []headerCheck
}

// headerCheck pairs a reply header region with the word expected in it.
type headerCheck struct {
	region []byte
	want   uint32
	txID   uint16
	kind   Kind
	packet bool
}

// SendSize returns the request size in bytes.
func (p *AccumulatedPacket) SendSize() int {
	return int(p.sendWords) * WordSize
}

// ReplySize returns the expected reply size in bytes.
func (p *AccumulatedPacket) ReplySize() int {
	return int(p.CumulativeReturnSize) * WordSize
}

// Transactions returns the number of packed operations.
func (p *AccumulatedPacket) Transactions() int {
	return p.transactions
}

// Empty reports whether there is nothing to send.
func (p *AccumulatedPacket) Empty() bool {
	return len(p.SendBuffers) == 0
}

// Bytes returns a copy of the request as one contiguous buffer.
func (p *AccumulatedPacket) Bytes() []byte {
	return concat(p.SendBuffers, p.SendSize())
}

// ReplyBytes returns a copy of the reply regions as one contiguous buffer.
func (p *AccumulatedPacket) ReplyBytes() []byte {
	return concat(p.ReplyBuffers, p.ReplySize())
}

func concat(bufs [][]byte, size int) []byte {
	out := make([]byte, 0, size)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

func (p *AccumulatedPacket) allocTxID() uint16 {
	id := p.nextTxID
	p.nextTxID++
	return id
}

// addHeader appends a header-only element, used for packet headers.
func (p *AccumulatedPacket) addHeader(order binary.ByteOrder, request, reply uint32) {
	send := make([]byte, WordSize)
	order.PutUint32(send, request)
	region := make([]byte, WordSize)

	p.SendBuffers = append(p.SendBuffers, send)
	p.ReplyBuffers = append(p.ReplyBuffers, region)
	p.sendWords++
	p.CumulativeReturnSize++
	p.checks = append(p.checks, headerCheck{region: region, want: reply, packet: true})
}

// addTransaction appends one serialized transaction. body follows the
// request header; replyWords payload words follow the reply header.
func (p *AccumulatedPacket) addTransaction(order binary.ByteOrder, txID uint16, kind Kind,
	request uint32, body []uint32, reply uint32, replyPayload []byte, replyWords uint32) {
	send := make([]byte, WordSize*(1+len(body)))
	order.PutUint32(send, request)
	for i, w := range body {
		order.PutUint32(send[WordSize*(i+1):], w)
	}

	header := make([]byte, WordSize)
	p.SendBuffers = append(p.SendBuffers, send)
	p.ReplyBuffers = append(p.ReplyBuffers, header)
	if replyWords > 0 {
		if replyPayload == nil {
			replyPayload = make([]byte, replyWords*WordSize)
		}
		p.ReplyBuffers = append(p.ReplyBuffers, replyPayload)
	}

	p.sendWords += uint32(1 + len(body))
	p.CumulativeReturnSize += 1 + replyWords
	p.transactions++
	p.checks = append(p.checks, headerCheck{region: header, want: reply, txID: txID, kind: kind})
}

// validate compares every reply header with the expected word.
func (p *AccumulatedPacket) validate(order binary.ByteOrder, infoOf func(uint32) InfoCode) error {
	for _, c := range p.checks {
		got := order.Uint32(c.region)
		if got == c.want {
			continue
		}
		if c.packet {
			return fmt.Errorf("%w: packet %d header 0x%08x, expected 0x%08x", ErrMalformedReply, p.ID, got, c.want)
		}
		if code := infoOf(got); !code.IsSuccess() {
			return &InfoCodeError{PacketID: p.ID, TransactionID: c.txID, Kind: c.kind, Code: code}
		}
		return fmt.Errorf("%w: packet %d transaction %d (%s) header 0x%08x, expected 0x%08x",
			ErrMalformedReply, p.ID, c.txID, c.kind, got, c.want)
	}
	return nil
}
