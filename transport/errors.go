// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "errors"

// Errors returned by PacketChannel implementations.
var (
	// ErrChannelClosed is returned by Send and Receive after the
	// local side has closed the channel.
	ErrChannelClosed = errors.New("transport: channel closed")

	// ErrPacketTooLarge is returned by Send for packets exceeding
	// MaxPacketSize. The packet is not sent; the channel remains
	// usable.
	ErrPacketTooLarge = errors.New("transport: packet exceeds size limit")
)
