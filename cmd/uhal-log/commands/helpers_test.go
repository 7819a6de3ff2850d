package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ipbus/uhal-go/pkg/log"
)

var baseTime = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+log.FileExtension)
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

// dispatchEvents is one successful single-packet dispatch as a client
// records it.
func dispatchEvents(connID, device string, at time.Time) []log.Event {
	rtt := 150 * time.Microsecond
	return []log.Event{
		{
			Timestamp: at, ConnectionID: connID, DeviceID: device,
			Layer: log.LayerClient, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityDispatch, NewState: "STARTED"},
		},
		{
			Timestamp: at, ConnectionID: connID, DeviceID: device, Direction: log.DirectionOut,
			Layer: log.LayerPacking, Category: log.CategoryPacket,
			Packet: &log.PacketEvent{PacketID: 1, Transactions: 2, SendWords: 5, ReplyWords: 4, Protocol: "ipbustcp-2.0"},
		},
		{
			Timestamp: at.Add(time.Millisecond), ConnectionID: connID, DeviceID: device, Direction: log.DirectionOut,
			Layer: log.LayerTransport, Category: log.CategoryPacket, RemoteAddr: "127.0.0.1:50001",
			Frame: log.NewFrameEvent([]byte{0x20, 0x00, 0x01, 0xf0, 0x20, 0x00, 0x01, 0x0f}),
		},
		{
			Timestamp: at.Add(2 * time.Millisecond), ConnectionID: connID, DeviceID: device, Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryPacket, RemoteAddr: "127.0.0.1:50001",
			Frame: log.NewFrameEvent([]byte{0x20, 0x00, 0x01, 0xf0, 0x20, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2a}),
		},
		{
			Timestamp: at.Add(2 * time.Millisecond), ConnectionID: connID, DeviceID: device, Direction: log.DirectionIn,
			Layer: log.LayerPacking, Category: log.CategoryPacket,
			Packet: &log.PacketEvent{PacketID: 1, Transactions: 2, SendWords: 5, ReplyWords: 4, Protocol: "ipbustcp-2.0", Duration: &rtt},
		},
		{
			Timestamp: at.Add(3 * time.Millisecond), ConnectionID: connID, DeviceID: device,
			Layer: log.LayerClient, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityDispatch, OldState: "STARTED", NewState: "COMPLETED"},
		},
	}
}
