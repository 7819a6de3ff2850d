package log

import (
	"time"
)

// Event represents a capture event recorded at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the transport connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates packet flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// DeviceID is the client identifier the event belongs to.
	DeviceID string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the target address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Packet      *PacketEvent      `cbor:"11,keyasint,omitempty"` // Packing layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/dispatch state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of packet flow.
type Direction uint8

const (
	// DirectionIn indicates a reply from the target.
	DirectionIn Direction = 0
	// DirectionOut indicates a request to the target.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the byte stream layer.
	LayerTransport Layer = 0
	// LayerPacking is the packet accumulation layer.
	LayerPacking Layer = 1
	// LayerClient is the dispatch/validation layer.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerPacking:
		return "PACKING"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryPacket indicates packet bytes or a packet summary.
	CategoryPacket Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPacket:
		return "PACKET"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameCapture bounds the bytes kept in a FrameEvent.
const MaxFrameCapture = 4096

// FrameEvent captures raw packet bytes at the transport layer.
type FrameEvent struct {
	// Size is the packet size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated for large packets).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies up to MaxFrameCapture bytes of data.
func NewFrameEvent(data []byte) *FrameEvent {
	f := &FrameEvent{Size: len(data)}
	n := len(data)
	if n > MaxFrameCapture {
		n = MaxFrameCapture
		f.Truncated = true
	}
	f.Data = append([]byte(nil), data[:n]...)
	return f
}

// PacketEvent summarizes one accumulated packet.
type PacketEvent struct {
	// PacketID is the packet header id (0 for IPbus 1.3).
	PacketID uint16 `cbor:"1,keyasint"`

	// Transactions is the number of transactions in the packet.
	Transactions int `cbor:"2,keyasint"`

	// SendWords is the request size in 32-bit words.
	SendWords uint32 `cbor:"3,keyasint"`

	// ReplyWords is the expected reply size in 32-bit words.
	ReplyWords uint32 `cbor:"4,keyasint"`

	// Protocol is the protocol identifier, e.g. "ipbustcp-2.0".
	Protocol string `cbor:"5,keyasint,omitempty"`

	// Duration is the round trip time (replies only).
	Duration *time.Duration `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures connection and dispatch lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a transport connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityDispatch indicates a dispatch started or finished.
	StateEntityDispatch StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityDispatch:
		return "DISPATCH"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the IPbus info code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
