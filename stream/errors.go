// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"errors"
	"fmt"
)

// Errors returned by the stream managers, writers, and readers.
var (
	// ErrAlreadyOpened is returned when a stream is opened with an ID
	// that is already in use: by the outgoing manager when the caller
	// supplies a colliding StreamID, and by the incoming manager when
	// a header arrives for a stream that is still active. The
	// existing stream is unaffected in both cases.
	ErrAlreadyOpened = errors.New("stream: stream ID already open")

	// ErrUnknownStream is returned by writer operations after the
	// stream has been closed, either by the writer itself or by a
	// concurrent close through the manager.
	ErrUnknownStream = errors.New("stream: unknown stream ID")

	// ErrHandlerAlreadyRegistered is returned when registering a
	// handler for a topic that already has one. A topic holds at most
	// one handler regardless of content kind; unregister the old one
	// first.
	ErrHandlerAlreadyRegistered = errors.New("stream: handler already registered for topic")

	// ErrDecodeFailed is returned by text readers when the received
	// bytes are not valid UTF-8, including a stream that ends in the
	// middle of a multi-byte rune. Once returned it is terminal for
	// that reader.
	ErrDecodeFailed = errors.New("stream: text decoding failed")

	// ErrIncomplete is returned by readers of a stream that declared
	// a total length and ended before delivering that many bytes. It
	// takes precedence over the trailer's closure reason: a short
	// stream is incomplete even when the sender closed it normally.
	ErrIncomplete = errors.New("stream: stream ended before declared length")

	// ErrTerminated is returned by writer and reader operations after
	// their manager has been closed.
	ErrTerminated = errors.New("stream: manager closed")

	// ErrCorruptPacket indicates an inbound control packet that does
	// not decode as the stream protocol: not CBOR, an unknown packet
	// kind, or a kind whose variant is missing. The dispatcher treats
	// this as fatal for its carrier.
	ErrCorruptPacket = errors.New("stream: corrupt control packet")
)

// AbnormalEndError is the terminal error for a stream whose sender
// closed it with a non-empty reason. The reason string travels in the
// trailer packet verbatim.
type AbnormalEndError struct {
	// Reason is the sender-supplied closure reason.
	Reason string
}

// Error implements the error interface.
func (e *AbnormalEndError) Error() string {
	return fmt.Sprintf("stream: abnormal end: %s", e.Reason)
}
