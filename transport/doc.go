// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the packet carriers that chorus data
// streams ride on.
//
// The central abstraction is [PacketChannel]: a bidirectional,
// ordered, reliable packet pipe to one remote peer, with packet
// boundaries preserved end to end. The stream layer is written
// against this interface and never against a concrete carrier.
//
// [DataChannel] adapts a pion WebRTC data channel, the production
// carrier. It stays in message mode — one data channel message per
// packet — and queues inbound messages without bound so pion's read
// loop is never blocked by a slow consumer. [MaxPacketSize] caps
// individual packets at 64 KB for interoperability with browser data
// channel implementations.
//
// [MemoryPair] connects two PacketChannels in process for tests: same
// ordering, buffering, and close semantics as a real carrier, no
// network.
package transport
