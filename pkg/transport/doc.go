// Package transport exchanges accumulated IPbus packets with a device.
//
// The transport layer handles:
//   - Lazy host resolution and connection on first dispatch
//   - Gather writes of a packet's send buffers
//   - Scatter reads of the reply into the packet's reply regions
//   - A per-packet deadline with a self-rearming timer
//   - Teardown after any failure so the next dispatch reconnects
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   IPbus 1.3 / 2.0 packets      │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// There is no framing on the stream. A reply is complete when exactly the
// expected number of words has been read; headers are checked afterwards by
// the serializer.
//
// # State Machine
//
//	UNCONNECTED ──dispatch──▶ CONNECTED ──failure──▶ UNCONNECTED
//
// Each packet moves through SENDING and AWAITING_REPLY while connected.
package transport
