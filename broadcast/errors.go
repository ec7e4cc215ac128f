// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import "errors"

// Errors returned by the broadcast channel and its codecs.
var (
	// ErrCorruptMessage indicates that the inbound byte stream no
	// longer parses as the broadcast wire format: a malformed frame
	// prefix, a length relationship that cannot hold, or a header
	// envelope that does not decode. There is no way to resynchronize
	// a length-prefixed stream after this.
	ErrCorruptMessage = errors.New("broadcast: corrupt message")

	// ErrChannelClosed is returned by Send and Receive after Close
	// has been called on this side of the channel.
	ErrChannelClosed = errors.New("broadcast: channel closed")

	// ErrEncodingFailed wraps sample codec failures on the upload
	// side, such as a pixel buffer whose length does not match the
	// frame dimensions.
	ErrEncodingFailed = errors.New("broadcast: frame encoding failed")

	// ErrDecodingFailed wraps sample codec failures on the receive
	// side, such as payload bytes that do not decompress to the size
	// the header declares.
	ErrDecodingFailed = errors.New("broadcast: frame decoding failed")
)
