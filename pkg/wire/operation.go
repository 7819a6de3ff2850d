package wire

// Kind identifies the logical operation a transaction performs.
type Kind uint8

const (
	// KindRead reads a block of consecutive registers.
	KindRead Kind = iota + 1

	// KindWrite writes a block of consecutive registers.
	KindWrite

	// KindReadNonInc reads repeatedly from one address (a FIFO port).
	KindReadNonInc

	// KindWriteNonInc writes repeatedly to one address (a FIFO port).
	KindWriteNonInc

	// KindRMWBits performs (current & AND) | OR atomically on the device.
	KindRMWBits

	// KindRMWSum performs current + addend atomically on the device.
	KindRMWSum

	// KindPing is a zero-payload liveness transaction.
	KindPing

	// KindReservedAddressInfo fetches the reserved address range of the target.
	KindReservedAddressInfo
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRead:
		return "Read"
	case KindWrite:
		return "Write"
	case KindReadNonInc:
		return "ReadNonInc"
	case KindWriteNonInc:
		return "WriteNonInc"
	case KindRMWBits:
		return "RMWBits"
	case KindRMWSum:
		return "RMWSum"
	case KindPing:
		return "Ping"
	case KindReservedAddressInfo:
		return "ReservedAddressInfo"
	default:
		return "Unknown"
	}
}

// IsValid returns true if k is a known kind.
func (k Kind) IsValid() bool {
	return k >= KindRead && k <= KindReservedAddressInfo
}

// IsBlock reports whether the kind carries a variable number of words and
// may therefore be split across transactions.
func (k Kind) IsBlock() bool {
	switch k {
	case KindRead, KindWrite, KindReadNonInc, KindWriteNonInc:
		return true
	}
	return false
}

// IsWrite reports whether the kind carries outbound data words.
func (k Kind) IsWrite() bool {
	return k == KindWrite || k == KindWriteNonInc
}

// BlockMode selects how block transactions address the device.
type BlockMode uint8

const (
	// Incremental addresses a block of sequential registers.
	Incremental BlockMode = 0

	// NonIncremental addresses a single fixed port.
	NonIncremental BlockMode = 1
)

// String returns the mode name.
func (m BlockMode) String() string {
	switch m {
	case Incremental:
		return "INCREMENTAL"
	case NonIncremental:
		return "NON_INCREMENTAL"
	default:
		return "UNKNOWN"
	}
}

// ReadKind returns the read kind for a block mode.
func ReadKind(m BlockMode) Kind {
	if m == NonIncremental {
		return KindReadNonInc
	}
	return KindRead
}

// WriteKind returns the write kind for a block mode.
func WriteKind(m BlockMode) Kind {
	if m == NonIncremental {
		return KindWriteNonInc
	}
	return KindWrite
}
