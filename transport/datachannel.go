// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface check.
var _ PacketChannel = (*DataChannel)(nil)

// DataChannel adapts a WebRTC data channel to the PacketChannel
// interface. It keeps the channel in message mode — one data channel
// message per packet — because the stream protocol above depends on
// packet boundaries surviving the trip.
//
// Inbound messages are queued without bound: pion delivers them on
// its internal read loop, and blocking that loop stalls every channel
// on the SCTP association. Outbound sends are asynchronous; pion
// buffers them internally.
type DataChannel struct {
	dc       *webrtc.DataChannel
	identity string
	logger   *slog.Logger

	mu       sync.Mutex
	queue    [][]byte
	finished bool

	// arrived wakes a blocked Receive when a packet is queued or the
	// remote side closes. Capacity one: duplicate signals collapse
	// and the loop in Receive tolerates spurious wakeups.
	arrived chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewDataChannel wraps a WebRTC data channel as a PacketChannel.
// remoteIdentity names the peer for RemoteIdentity. The logger may be
// nil, in which case slog.Default() is used.
//
// The data channel must be ordered and reliable (pion's defaults) —
// the stream protocol depends on in-order delivery. NewDataChannel
// takes over the channel's OnMessage and OnClose callbacks, so call
// it before the peer starts sending: for inbound channels that means
// inside the OnDataChannel callback, before returning.
func NewDataChannel(dc *webrtc.DataChannel, remoteIdentity string, logger *slog.Logger) *DataChannel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &DataChannel{
		dc:       dc,
		identity: remoteIdentity,
		logger:   logger,
		arrived:  make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}

	dc.OnMessage(func(message webrtc.DataChannelMessage) {
		c.enqueue(message.Data)
	})
	dc.OnClose(func() {
		c.logger.Debug("data channel closed by peer",
			"label", dc.Label(), "peer", remoteIdentity)
		c.finish()
	})
	return c
}

// Send transmits one packet as a single data channel message.
func (c *DataChannel) Send(ctx context.Context, packet []byte) error {
	if len(packet) > MaxPacketSize {
		return fmt.Errorf("packet is %d bytes, limit %d: %w",
			len(packet), MaxPacketSize, ErrPacketTooLarge)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	if err := c.dc.Send(packet); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return ErrChannelClosed
		}
		return fmt.Errorf("sending packet to %s: %w", c.identity, err)
	}
	return nil
}

// Receive returns the next packet in arrival order. It returns io.EOF
// once the peer has closed the channel and the queue is drained, and
// ErrChannelClosed after a local Close.
func (c *DataChannel) Receive(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-c.closed:
			return nil, ErrChannelClosed
		default:
		}

		c.mu.Lock()
		if len(c.queue) > 0 {
			packet := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return packet, nil
		}
		finished := c.finished
		c.mu.Unlock()

		if finished {
			return nil, io.EOF
		}

		select {
		case <-c.arrived:
		case <-c.closed:
			return nil, ErrChannelClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RemoteIdentity returns the peer name given at construction.
func (c *DataChannel) RemoteIdentity() string {
	return c.identity
}

// Close closes the underlying data channel. Idempotent; calls after
// the first return the first call's result.
func (c *DataChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.dc.Close()
	})
	return c.closeErr
}

func (c *DataChannel) enqueue(packet []byte) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, packet)
	c.mu.Unlock()
	c.wake()
}

// finish marks the end of the inbound sequence. Queued packets stay
// readable; Receive reports io.EOF once they are drained.
func (c *DataChannel) finish() {
	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()
	c.wake()
}

func (c *DataChannel) wake() {
	select {
	case c.arrived <- struct{}{}:
	default:
	}
}
