// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// memoryBufferDepth is how many packets each direction of a memory
// pair buffers before Send blocks.
const memoryBufferDepth = 64

// Compile-time interface check.
var _ PacketChannel = (*memoryChannel)(nil)

// MemoryPair returns two connected PacketChannels that exchange
// packets in process. The left channel reports rightIdentity as its
// remote and vice versa.
//
// Sends block once the in-flight buffer fills, which gives tests the
// same backpressure shape as a real carrier.
func MemoryPair(leftIdentity, rightIdentity string) (left, right PacketChannel) {
	leftToRight := make(chan []byte, memoryBufferDepth)
	rightToLeft := make(chan []byte, memoryBufferDepth)

	a := &memoryChannel{
		identity: rightIdentity,
		outbound: leftToRight,
		inbound:  rightToLeft,
		closed:   make(chan struct{}),
	}
	b := &memoryChannel{
		identity: leftIdentity,
		outbound: rightToLeft,
		inbound:  leftToRight,
		closed:   make(chan struct{}),
	}
	a.peerClosed = b.closed
	b.peerClosed = a.closed
	return a, b
}

type memoryChannel struct {
	identity string
	outbound chan<- []byte
	inbound  <-chan []byte

	closed     chan struct{}
	peerClosed <-chan struct{}
	closeOnce  sync.Once
}

func (m *memoryChannel) Send(ctx context.Context, packet []byte) error {
	if len(packet) > MaxPacketSize {
		return fmt.Errorf("packet is %d bytes, limit %d: %w",
			len(packet), MaxPacketSize, ErrPacketTooLarge)
	}
	select {
	case <-m.closed:
		return ErrChannelClosed
	default:
	}

	// Cloned so the caller may reuse its buffer, matching what a
	// real carrier's serialization would do.
	select {
	case m.outbound <- bytes.Clone(packet):
		return nil
	case <-m.closed:
		return ErrChannelClosed
	case <-m.peerClosed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memoryChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-m.closed:
		return nil, ErrChannelClosed
	default:
	}

	// Packets delivered before the peer closed are still readable.
	select {
	case packet := <-m.inbound:
		return packet, nil
	default:
	}

	select {
	case packet := <-m.inbound:
		return packet, nil
	case <-m.closed:
		return nil, ErrChannelClosed
	case <-m.peerClosed:
		// A packet may have landed between the drain check and the
		// peer's close winning the select.
		select {
		case packet := <-m.inbound:
			return packet, nil
		default:
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *memoryChannel) RemoteIdentity() string {
	return m.identity
}

func (m *memoryChannel) Close() error {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
	return nil
}
