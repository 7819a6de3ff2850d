// Package wire implements IPbus transaction packing.
//
// A PacketInfo describes one logical register operation. The Packer
// serializes PacketInfos one at a time into AccumulatedPackets, starting a
// new packet whenever the next transaction would push either the request or
// the expected reply past the maximum packet size. Block transactions that
// are too long for one transaction or one packet are split into consecutive
// chunks.
//
// # Packet Layout
//
// Every packet carries its transactions back to back:
//
//	┌──────────────────┬──────────────────┬──────────────────┬─────
//	│  packet header   │ tx header | addr │ tx header | addr │ ...
//	│                  │ payload words... │ payload words... │
//	└──────────────────┴──────────────────┴──────────────────┴─────
//
// Replies are concatenated in request order. The reply size of every
// transaction is known before sending, so a packet is complete once the
// expected number of words has arrived.
//
// # Serializers
//
// The header grammar is version specific and pluggable through Serializer.
// Two implementations are provided:
//   - IPbus 2.0: packet header with packet ID, 12-bit transaction IDs
//   - IPbus 1.3: byte-order transaction as packet header, 11-bit transaction IDs
//
// Reply buffers are registered, not copied: the transport reads directly
// into the regions owned by result handles.
package wire
