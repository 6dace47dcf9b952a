// Package protocol implements the binary wire protocol of the inspection
// channel.
//
// The protocol is optimized for pushing thousands of live values to a browser
// with minimal bandwidth. Server-to-client traffic is a stream of aggregate
// frames; client-to-server traffic is a small set of control messages. All
// multi-byte integers are little-endian.
//
// # Server -> client frame
//
//	┌──────────────┬──────────────────────────────────────────────┐
//	│ u32 outer    │ 0 = full aggregate                           │
//	│              │ 1 = XOR/RLE diff against previous aggregate  │
//	├──────────────┼──────────────────────────────────────────────┤
//	│ repeated:    │ u32 request id                               │
//	│              │ u32 inner type (0 = full, 1 = XOR/RLE diff)  │
//	│              │ u32 payload size                             │
//	│              │ payload bytes                                │
//	└──────────────┴──────────────────────────────────────────────┘
//
// Full payloads are zero-padded to a multiple of 4 bytes so diffs can operate
// at u32 granularity.
//
// # XOR/RLE stream
//
// A sequence of (u32 runLength, u32 xorValue) pairs. Applying the stream XORs
// xorValue into runLength consecutive u32 cells of the destination. The final
// pair is always present, even when its run length is zero; it captures the
// tail of the buffer.
//
// # Client -> server messages
//
// The first u32 selects the kind:
//
//   - 1 register: whitespace-separated text groups "path reqID nIdx idx...".
//   - 2 activate: (len-4)/4 u32 request ids forming the new active set.
//   - 3 refresh: empty body; re-arms the previous active set.
//   - 4 custom: opaque bytes forwarded to the application handler.
//
// # Decoder
//
// Decoder mirrors the browser-side script: it caches the last full aggregate
// to invert outer diffs and keeps a per-request byte buffer to invert inner
// diffs. It exists so the two-level encoding can be round-tripped in Go, both
// in tests and in headless clients.
package protocol
