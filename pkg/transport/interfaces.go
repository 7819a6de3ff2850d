package transport

import (
	"context"

	"github.com/ipbus/uhal-go/pkg/wire"
)

// Transport exchanges accumulated packets with one device.
// Implemented by TCP.
type Transport interface {
	// Dispatch sends packets in order and fills their reply regions.
	Dispatch(ctx context.Context, packets []*wire.AccumulatedPacket) error

	// MaxPacketSize returns the packet size limit in bytes.
	MaxPacketSize() int

	// Close releases the connection.
	Close() error
}

// Compile-time interface satisfaction checks.
var _ Transport = (*TCP)(nil)
