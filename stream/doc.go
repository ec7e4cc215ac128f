// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream implements logical data streams multiplexed over a
// shared packet carrier.
//
// A stream is opened with a header packet, carried as a sequence of
// chunk packets, and closed with a trailer packet, all CBOR-encoded
// ([EncodePacket], [DecodePacket]) and interleaved with every other
// stream on the same [transport.PacketChannel]. Chunks are capped
// well below the carrier's message limit so concurrent streams share
// the carrier fairly.
//
// The sending side is [OutgoingManager]: [OutgoingManager.StreamBytes]
// and [OutgoingManager.StreamText] emit the header and hand back a
// [ByteWriter] or [TextWriter]. Writers are thin handles — stream
// state lives in the manager, which serializes all packet emission so
// concurrent writers cannot interleave a stream's chunks out of
// order. Closing a writer normally ends the peer's reader cleanly;
// aborting it carries a reason the peer surfaces as an
// [AbnormalEndError].
//
// The receiving side is [IncomingManager]. Consumers register one
// handler per topic; when a header for that topic arrives the
// manager invokes the handler with a [ByteReader] or [TextReader] on
// its own goroutine and then feeds the reader as chunks arrive.
// Readers pull: [ByteReader.Next] yields chunks in order,
// [ByteReader.ReadAll] drains to one value, and [TextReader] decodes
// UTF-8 even when a multi-byte rune is split across chunks. A stream
// that declared its total length and ends short fails with
// [ErrIncomplete] regardless of how the trailer spells the closure.
//
// [IncomingManager.Dispatch] pumps a packet channel into the manager
// for embeddings that do not own the packet loop; the Handle methods
// are exported for those that do.
package stream
