// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/chorus-rtc/chorus/lib/netutil"
	"github.com/chorus-rtc/chorus/transport"
)

// ByteStreamHandler consumes one inbound byte stream. The incoming
// manager invokes it on its own goroutine when the stream's header
// arrives; remoteIdentity names the sender.
type ByteStreamHandler func(reader *ByteReader, remoteIdentity string)

// TextStreamHandler consumes one inbound text stream.
type TextStreamHandler func(reader *TextReader, remoteIdentity string)

// topicHandler holds the one handler registered for a topic. Exactly
// one of the two fields is set.
type topicHandler struct {
	bytes ByteStreamHandler
	text  TextStreamHandler
}

// incomingStream is the manager's reassembly state for one active
// inbound stream.
type incomingStream struct {
	info     Header
	queue    *chunkQueue
	received uint64
	chunks   uint64
}

// IncomingManager reassembles inbound streams and routes them to
// topic handlers. Headers open streams, chunks carry content, and
// trailers close them; the manager verifies completeness against the
// declared length and surfaces abnormal closure to the reader.
//
// Packets reach the manager either through [IncomingManager.Dispatch]
// pumping a packet channel, or through direct HandleHeader /
// HandleChunk / HandleTrailer calls when the embedding code owns the
// packet loop. Both paths assume in-order delivery per stream, which
// an ordered carrier provides.
type IncomingManager struct {
	logger *slog.Logger

	mu         sync.Mutex
	handlers   map[string]topicHandler
	active     map[string]*incomingStream
	terminated bool
}

// NewIncomingManager returns a manager with no registered handlers.
// The logger may be nil, in which case slog.Default() is used.
func NewIncomingManager(logger *slog.Logger) *IncomingManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &IncomingManager{
		logger:   logger,
		handlers: make(map[string]topicHandler),
		active:   make(map[string]*incomingStream),
	}
}

// RegisterByteStreamHandler routes byte streams opened on topic to
// handler. A topic holds at most one handler of either kind; a
// second registration fails with ErrHandlerAlreadyRegistered.
func (m *IncomingManager) RegisterByteStreamHandler(topic string, handler ByteStreamHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return ErrTerminated
	}
	if _, exists := m.handlers[topic]; exists {
		return fmt.Errorf("topic %q: %w", topic, ErrHandlerAlreadyRegistered)
	}
	m.handlers[topic] = topicHandler{bytes: handler}
	return nil
}

// RegisterTextStreamHandler routes text streams opened on topic to
// handler. A topic holds at most one handler of either kind; a
// second registration fails with ErrHandlerAlreadyRegistered.
func (m *IncomingManager) RegisterTextStreamHandler(topic string, handler TextStreamHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return ErrTerminated
	}
	if _, exists := m.handlers[topic]; exists {
		return fmt.Errorf("topic %q: %w", topic, ErrHandlerAlreadyRegistered)
	}
	m.handlers[topic] = topicHandler{text: handler}
	return nil
}

// UnregisterByteStreamHandler removes the byte handler for topic.
// Idempotent; a topic registered for text is left alone. Streams
// already open stay open — unregistering only stops new ones.
func (m *IncomingManager) UnregisterByteStreamHandler(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handler, exists := m.handlers[topic]; exists && handler.bytes != nil {
		delete(m.handlers, topic)
	}
}

// UnregisterTextStreamHandler removes the text handler for topic.
// Idempotent; a topic registered for bytes is left alone.
func (m *IncomingManager) UnregisterTextStreamHandler(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handler, exists := m.handlers[topic]; exists && handler.text != nil {
		delete(m.handlers, topic)
	}
}

// HandleHeader opens an inbound stream. A header whose topic has no
// handler, or whose content kind does not match the handler's kind,
// is dropped: unconsumed streams are normal, not errors. A header
// reusing a stream ID that is still active fails with
// ErrAlreadyOpened and leaves the existing stream untouched. On
// success the matching reader is constructed and the handler invoked
// with it on a new goroutine, before any content arrives.
func (m *IncomingManager) HandleHeader(header *Header, from string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return ErrTerminated
	}

	handler, registered := m.handlers[header.Topic]
	if !registered {
		m.logger.Debug("dropping stream with no handler",
			"stream", header.StreamID, "topic", header.Topic, "from", from)
		return nil
	}
	if _, active := m.active[header.StreamID]; active {
		return fmt.Errorf("stream %q: %w", header.StreamID, ErrAlreadyOpened)
	}

	queue := newChunkQueue()
	switch {
	case header.Kind == ContentBytes && handler.bytes != nil:
		go handler.bytes(newByteReader(*header, queue), from)
	case header.Kind == ContentText && handler.text != nil:
		go handler.text(newTextReader(*header, queue), from)
	default:
		m.logger.Debug("dropping stream with mismatched content kind",
			"stream", header.StreamID, "topic", header.Topic,
			"kind", header.Kind.String(), "from", from)
		return nil
	}

	m.active[header.StreamID] = &incomingStream{info: *header, queue: queue}
	m.logger.Debug("opened inbound stream",
		"stream", header.StreamID, "topic", header.Topic,
		"kind", header.Kind.String(), "from", from)
	return nil
}

// HandleChunk appends one chunk to its stream's reader. A chunk for
// an unknown stream ID is dropped silently: it belongs to a stream
// that was never handled, or that a trailer already closed.
func (m *IncomingManager) HandleChunk(chunk *Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.active[chunk.StreamID]
	if !ok {
		return
	}
	state.received += uint64(len(chunk.Content))
	state.chunks++
	state.queue.append(chunk.Content)
}

// HandleTrailer closes an inbound stream. A trailer for an unknown
// stream ID is a no-op. Completeness takes precedence over the
// trailer's reason: a stream that declared a total length and
// delivered fewer bytes fails with ErrIncomplete even when the
// trailer reports normal closure. Otherwise an empty reason ends the
// reader normally and a non-empty reason fails it with an
// AbnormalEndError.
func (m *IncomingManager) HandleTrailer(trailer *Trailer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.active[trailer.StreamID]
	if !ok {
		return
	}
	delete(m.active, trailer.StreamID)

	var failure error
	switch {
	case state.info.TotalLength != nil && state.received < *state.info.TotalLength:
		failure = fmt.Errorf("received %d of %d declared bytes: %w",
			state.received, *state.info.TotalLength, ErrIncomplete)
	case trailer.Reason != "":
		failure = &AbnormalEndError{Reason: trailer.Reason}
	}
	state.queue.finish(failure)
	m.logger.Debug("closed inbound stream",
		"stream", trailer.StreamID, "chunks", state.chunks,
		"bytes", state.received, "reason", trailer.Reason)
}

// Close fails every active reader with ErrTerminated and drops all
// handler registrations. Handle calls after Close are inert.
func (m *IncomingManager) Close() {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.handlers = nil
	m.terminated = true
	m.mu.Unlock()

	for _, state := range active {
		state.queue.finish(ErrTerminated)
	}
}

// Dispatch pumps channel, decoding each packet and routing it to the
// matching handle method, until the carrier ends or ctx is
// cancelled. A carrier that closes cleanly returns nil; a packet
// that does not decode is fatal, because a desynchronized control
// stream cannot be trusted for any stream it carries. Dispatch does
// not close the manager: the same manager may serve several carriers
// concurrently, and teardown belongs to whoever owns it.
func (m *IncomingManager) Dispatch(ctx context.Context, channel transport.PacketChannel) error {
	from := channel.RemoteIdentity()
	for {
		data, err := channel.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF),
				errors.Is(err, transport.ErrChannelClosed),
				netutil.IsExpectedCloseError(err):
				m.logger.Debug("stream carrier finished", "from", from)
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return fmt.Errorf("receiving stream packet: %w", err)
			}
		}

		packet, err := DecodePacket(data)
		if err != nil {
			return fmt.Errorf("from %s: %w", from, err)
		}
		switch p := packet.(type) {
		case *Header:
			if err := m.HandleHeader(p, from); err != nil {
				if errors.Is(err, ErrTerminated) {
					return nil
				}
				m.logger.Warn("rejected stream header",
					"stream", p.StreamID, "topic", p.Topic, "from", from, "error", err)
			}
		case *Chunk:
			m.HandleChunk(p)
		case *Trailer:
			m.HandleTrailer(p)
		}
	}
}
