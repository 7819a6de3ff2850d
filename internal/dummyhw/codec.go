package dummyhw

import (
	"fmt"

	"github.com/ipbus/uhal-go/pkg/wire"
)

// IPbus 2.0 transaction types as seen by the device.
const (
	type2Read        = 0x0
	type2Write       = 0x1
	type2ReadNonInc  = 0x2
	type2WriteNonInc = 0x3
	type2RMWBits     = 0x4
	type2RMWSum      = 0x5
)

// IPbus 1.3 transaction types as seen by the device.
const (
	type13Read                = 0x03
	type13Write               = 0x04
	type13RMWBits             = 0x05
	type13RMWSum              = 0x06
	type13ReadNonInc          = 0x08
	type13WriteNonInc         = 0x09
	type13ReservedAddressInfo = 0x1E
	type13ByteOrder           = 0x1F

	info13BusError wire.InfoCode = 0x2
)

var (
	ipbus2  = wire.NewIPbus2()
	ipbus13 = wire.NewIPbus13()
)

// handle2 consumes one IPbus 2.0 packet header or transaction.
func (s *session) handle2() error {
	h, err := s.readWord()
	if err != nil {
		return err
	}
	if h>>28 != 2 {
		return fmt.Errorf("%w: 0x%08x", ErrBadHeader, h)
	}

	// Packet headers end in 0xF0; request transaction headers in 0xF.
	if h&0xF != uint32(wire.InfoRequest) {
		if h&0xF0 != 0xF0 {
			return fmt.Errorf("%w: 0x%08x", ErrBadHeader, h)
		}
		s.writeWord(h)
		return nil
	}

	id := uint16(h>>16) & 0xFFF
	words := (h >> 8) & 0xFF
	typeID := uint8(h>>4) & 0xF
	s.dev.transactions.Add(1)

	switch typeID {
	case type2Read, type2ReadNonInc:
		addr, err := s.readWord()
		if err != nil {
			return err
		}
		s.writeWord(ipbus2.TransactionHeader(id, uint8(words), typeID, s.dev.status(addr, false)))
		for _, v := range s.dev.load(addr, words, typeID == type2Read) {
			s.writeWord(v)
		}
	case type2Write, type2WriteNonInc:
		addr, err := s.write(words, typeID == type2Write)
		if err != nil {
			return err
		}
		s.writeWord(ipbus2.TransactionHeader(id, uint8(words), typeID, s.dev.status(addr, true)))
	case type2RMWBits, type2RMWSum:
		v, err := s.rmw(typeID == type2RMWBits)
		if err != nil {
			return err
		}
		s.writeWord(ipbus2.TransactionHeader(id, 1, typeID, wire.InfoSuccess))
		s.writeWord(v)
	default:
		s.writeWord(ipbus2.TransactionHeader(id, 0, typeID, wire.InfoBadHeader))
		return fmt.Errorf("%w: type 0x%x", ErrBadHeader, typeID)
	}
	return nil
}

// handle13 consumes one IPbus 1.3 transaction.
func (s *session) handle13() error {
	h, err := s.readWord()
	if err != nil {
		return err
	}
	if h>>28 != 1 {
		return fmt.Errorf("%w: 0x%08x", ErrBadHeader, h)
	}

	id := uint16(h>>17) & 0x7FF
	words := (h >> 8) & 0x1FF
	typeID := uint8(h>>3) & 0x1F
	s.dev.transactions.Add(1)

	reply := func(words uint32, code wire.InfoCode) {
		// 1.3 carries a two-bit info code; bus failures map to 2.
		if code != wire.InfoSuccess && code != wire.InfoBadHeader {
			code = info13BusError
		}
		s.writeWord(ipbus13.TransactionHeader(id, uint16(words), typeID, 1, code))
	}

	switch typeID {
	case type13ByteOrder:
		reply(0, wire.InfoSuccess)
	case type13ReservedAddressInfo:
		reply(2, wire.InfoSuccess)
		s.writeWord(s.dev.config.ReservedAddressInfo[0])
		s.writeWord(s.dev.config.ReservedAddressInfo[1])
	case type13Read, type13ReadNonInc:
		addr, err := s.readWord()
		if err != nil {
			return err
		}
		reply(words, s.dev.status(addr, false))
		for _, v := range s.dev.load(addr, words, typeID == type13Read) {
			s.writeWord(v)
		}
	case type13Write, type13WriteNonInc:
		addr, err := s.write(words, typeID == type13Write)
		if err != nil {
			return err
		}
		reply(words, s.dev.status(addr, true))
	case type13RMWBits, type13RMWSum:
		v, err := s.rmw(typeID == type13RMWBits)
		if err != nil {
			return err
		}
		reply(1, wire.InfoSuccess)
		s.writeWord(v)
	default:
		reply(0, wire.InfoBadHeader)
		return fmt.Errorf("%w: type 0x%x", ErrBadHeader, typeID)
	}
	return nil
}

// write reads an address and words values and stores them. A failing
// address stores nothing.
func (s *session) write(words uint32, incremental bool) (uint32, error) {
	addr, err := s.readWord()
	if err != nil {
		return 0, err
	}
	values := make([]uint32, words)
	for i := range values {
		if values[i], err = s.readWord(); err != nil {
			return 0, err
		}
	}
	if s.dev.status(addr, true).IsSuccess() {
		s.dev.store(addr, values, incremental)
	}
	return addr, nil
}

// rmw reads the rmw operands and applies them, returning the new value.
func (s *session) rmw(bits bool) (uint32, error) {
	addr, err := s.readWord()
	if err != nil {
		return 0, err
	}
	a, err := s.readWord()
	if err != nil {
		return 0, err
	}
	if !bits {
		return s.dev.modify(addr, func(cur uint32) uint32 { return cur + a }), nil
	}
	o, err := s.readWord()
	if err != nil {
		return 0, err
	}
	return s.dev.modify(addr, func(cur uint32) uint32 { return cur&a | o }), nil
}

func (d *Device) load(addr, words uint32, incremental bool) []uint32 {
	d.regsMu.Lock()
	defer d.regsMu.Unlock()
	out := make([]uint32, words)
	for i := range out {
		out[i] = d.regs[addr]
		if incremental {
			addr++
		}
	}
	return out
}

func (d *Device) store(addr uint32, values []uint32, incremental bool) {
	d.regsMu.Lock()
	defer d.regsMu.Unlock()
	for _, v := range values {
		d.regs[addr] = v
		if incremental {
			addr++
		}
	}
}

func (d *Device) modify(addr uint32, f func(uint32) uint32) uint32 {
	d.regsMu.Lock()
	defer d.regsMu.Unlock()
	v := f(d.regs[addr])
	d.regs[addr] = v
	return v
}
