package wire

import "fmt"

// InfoCode is the status field of a transaction header.
type InfoCode uint8

const (
	// InfoSuccess indicates the transaction was executed.
	InfoSuccess InfoCode = 0x0

	// InfoBadHeader indicates the device could not parse the header.
	InfoBadHeader InfoCode = 0x1

	// InfoBusReadError indicates a bus error during a read.
	InfoBusReadError InfoCode = 0x4

	// InfoBusWriteError indicates a bus error during a write.
	InfoBusWriteError InfoCode = 0x5

	// InfoBusReadTimeout indicates the bus timed out during a read.
	InfoBusReadTimeout InfoCode = 0x6

	// InfoBusWriteTimeout indicates the bus timed out during a write.
	InfoBusWriteTimeout InfoCode = 0x7

	// InfoRequest marks an outbound request.
	InfoRequest InfoCode = 0xF
)

// String returns the info code name.
func (c InfoCode) String() string {
	switch c {
	case InfoSuccess:
		return "SUCCESS"
	case InfoBadHeader:
		return "BAD_HEADER"
	case InfoBusReadError:
		return "BUS_READ_ERROR"
	case InfoBusWriteError:
		return "BUS_WRITE_ERROR"
	case InfoBusReadTimeout:
		return "BUS_READ_TIMEOUT"
	case InfoBusWriteTimeout:
		return "BUS_WRITE_TIMEOUT"
	case InfoRequest:
		return "REQUEST"
	default:
		return fmt.Sprintf("INFO_0x%X", uint8(c))
	}
}

// IsSuccess returns true if the code reports success.
func (c InfoCode) IsSuccess() bool {
	return c == InfoSuccess
}

// InfoCodeError reports a transaction the device answered with a non-success
// info code. It matches ErrMalformedReply under errors.Is.
type InfoCodeError struct {
	PacketID      uint16
	TransactionID uint16
	Kind          Kind
	Code          InfoCode
}

func (e *InfoCodeError) Error() string {
	return fmt.Sprintf("packet %d transaction %d (%s): device returned %s",
		e.PacketID, e.TransactionID, e.Kind, e.Code)
}

// Is lets InfoCodeError match ErrMalformedReply.
func (e *InfoCodeError) Is(target error) bool {
	return target == ErrMalformedReply
}
