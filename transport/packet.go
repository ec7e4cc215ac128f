// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// MaxPacketSize is the largest packet a PacketChannel accepts, 64 KB.
// WebRTC data channels interoperating with browsers cannot rely on
// larger messages arriving intact, so the limit is enforced at this
// layer rather than left to each carrier.
const MaxPacketSize = 64 * 1024

// PacketChannel is a bidirectional, ordered, reliable packet pipe to
// one remote peer. Packet boundaries are preserved: each Send arrives
// as exactly one Receive on the other side, in send order.
//
// Implementations must make Send and Receive safe for concurrent use,
// though Receive assumes packets are consumed by one reader at a time
// in practice.
type PacketChannel interface {
	// Send transmits one packet. It fails with ErrPacketTooLarge for
	// packets over MaxPacketSize and ErrChannelClosed once either
	// side has closed.
	Send(ctx context.Context, packet []byte) error

	// Receive returns the next packet, blocking until one arrives or
	// ctx is done. It returns io.EOF once the remote side has closed
	// and all delivered packets are consumed, and ErrChannelClosed
	// after a local Close.
	Receive(ctx context.Context) ([]byte, error)

	// RemoteIdentity names the peer on the other end, for logging
	// and for attributing inbound data streams.
	RemoteIdentity() string

	// Close releases the channel. Idempotent.
	Close() error
}
