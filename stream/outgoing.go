// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Default MIME types applied when the opener leaves MimeType empty.
const (
	defaultByteMimeType = "application/octet-stream"
	defaultTextMimeType = "text/plain"
)

// PacketSender is the outbound half of the carrier the outgoing
// manager emits control packets on. transport.PacketChannel
// satisfies it; tests substitute a recorder.
type PacketSender interface {
	Send(ctx context.Context, packet []byte) error
}

// OutgoingManager opens outbound streams and tracks them until they
// close. All header, chunk, and trailer emission is serialized
// through one mutex: that is what keeps each stream's chunk indices
// gap-free and its packets ordered on the carrier even when several
// writers send concurrently.
type OutgoingManager struct {
	sender PacketSender
	logger *slog.Logger

	mu         sync.Mutex
	streams    map[string]*descriptor
	terminated bool
}

// descriptor is the manager's record of one open outbound stream.
// The header is immutable after open; the counters advance only
// after the corresponding chunk packet was emitted.
type descriptor struct {
	info          Header
	writtenLength uint64
	chunkIndex    uint64
}

// NewOutgoingManager returns a manager that emits control packets on
// sender. The logger may be nil, in which case slog.Default() is
// used.
func NewOutgoingManager(sender PacketSender, logger *slog.Logger) *OutgoingManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutgoingManager{
		sender:  sender,
		logger:  logger,
		streams: make(map[string]*descriptor),
	}
}

// StreamBytesOptions configures an outbound byte stream.
type StreamBytesOptions struct {
	// Topic routes the stream to the peer's handler. Required.
	Topic string

	// StreamID identifies the stream. Leave empty to have the
	// manager generate a random one.
	StreamID string

	// MimeType describes the content. Defaults to
	// application/octet-stream.
	MimeType string

	// Name is an optional human-readable name, such as a filename.
	Name string

	// TotalLength declares the content length in bytes when known up
	// front. The receiving side fails the stream with ErrIncomplete
	// if it closes before delivering this many bytes.
	TotalLength *uint64

	// Attributes carries application-defined key/value metadata.
	Attributes map[string]string
}

// StreamTextOptions configures an outbound text stream.
type StreamTextOptions struct {
	// Topic routes the stream to the peer's handler. Required.
	Topic string

	// StreamID identifies the stream. Leave empty to have the
	// manager generate a random one.
	StreamID string

	// MimeType describes the content. Defaults to text/plain.
	MimeType string

	// Name is an optional human-readable name.
	Name string

	// TotalLength declares the content length in UTF-8 bytes when
	// known up front.
	TotalLength *uint64

	// Attributes carries application-defined key/value metadata.
	Attributes map[string]string
}

// StreamBytes opens a byte stream: it emits the header packet and
// returns a writer for the content. Fails with ErrAlreadyOpened when
// options name a StreamID that is still open, and with ErrTerminated
// after Close.
func (m *OutgoingManager) StreamBytes(ctx context.Context, options StreamBytesOptions) (*ByteWriter, error) {
	info := Header{
		StreamID:    options.StreamID,
		Topic:       options.Topic,
		Kind:        ContentBytes,
		MimeType:    options.MimeType,
		Name:        options.Name,
		Attributes:  maps.Clone(options.Attributes),
		TimestampMS: time.Now().UnixMilli(),
	}
	if info.MimeType == "" {
		info.MimeType = defaultByteMimeType
	}
	if options.TotalLength != nil {
		length := *options.TotalLength
		info.TotalLength = &length
	}
	if err := m.open(ctx, &info); err != nil {
		return nil, err
	}
	return &ByteWriter{streamWriter{manager: m, info: info}}, nil
}

// StreamText opens a text stream: it emits the header packet and
// returns a writer for the content. Fails with ErrAlreadyOpened when
// options name a StreamID that is still open, and with ErrTerminated
// after Close.
func (m *OutgoingManager) StreamText(ctx context.Context, options StreamTextOptions) (*TextWriter, error) {
	info := Header{
		StreamID:    options.StreamID,
		Topic:       options.Topic,
		Kind:        ContentText,
		MimeType:    options.MimeType,
		Name:        options.Name,
		Attributes:  maps.Clone(options.Attributes),
		TimestampMS: time.Now().UnixMilli(),
	}
	if info.MimeType == "" {
		info.MimeType = defaultTextMimeType
	}
	if options.TotalLength != nil {
		length := *options.TotalLength
		info.TotalLength = &length
	}
	if err := m.open(ctx, &info); err != nil {
		return nil, err
	}
	return &TextWriter{streamWriter{manager: m, info: info}}, nil
}

// Close marks the manager terminated and forgets all open streams
// without emitting trailers: Close is for tearing down the whole
// carrier, and a trailer for a carrier that is going away has
// nowhere to go. Writer operations after Close return ErrTerminated.
func (m *OutgoingManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
	m.streams = nil
}

// open fills in a generated stream ID when the caller did not supply
// one, emits the header packet, and records the descriptor. The
// descriptor is recorded only after the header emit succeeds.
func (m *OutgoingManager) open(ctx context.Context, info *Header) error {
	if info.StreamID == "" {
		id, err := generateStreamID()
		if err != nil {
			return err
		}
		info.StreamID = id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return ErrTerminated
	}
	if _, exists := m.streams[info.StreamID]; exists {
		return fmt.Errorf("stream %q: %w", info.StreamID, ErrAlreadyOpened)
	}
	if err := m.emit(ctx, info); err != nil {
		return err
	}
	m.streams[info.StreamID] = &descriptor{info: *info}
	m.logger.Debug("opened outbound stream",
		"stream", info.StreamID, "topic", info.Topic, "kind", info.Kind.String())
	return nil
}

// sendChunk splits data at the chunk size bound and emits one chunk
// packet per piece. The descriptor's counters advance only after
// each emit succeeds, so a failed send leaves the stream positioned
// at the failing piece.
func (m *OutgoingManager) sendChunk(ctx context.Context, streamID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return ErrTerminated
	}
	desc, ok := m.streams[streamID]
	if !ok {
		return fmt.Errorf("stream %q: %w", streamID, ErrUnknownStream)
	}

	for offset := 0; offset < len(data); {
		end := min(offset+maxChunkSize, len(data))
		chunk := &Chunk{
			StreamID:   streamID,
			ChunkIndex: desc.chunkIndex,
			Content:    data[offset:end],
		}
		if err := m.emit(ctx, chunk); err != nil {
			return err
		}
		desc.chunkIndex++
		desc.writtenLength += uint64(end - offset)
		offset = end
	}
	return nil
}

// closeStream emits the trailer packet and removes the descriptor.
// An empty reason is the normal-closure sentinel. The descriptor
// survives a failed emit so the close can be retried.
func (m *OutgoingManager) closeStream(ctx context.Context, streamID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return ErrTerminated
	}
	if _, ok := m.streams[streamID]; !ok {
		return fmt.Errorf("stream %q: %w", streamID, ErrUnknownStream)
	}
	if err := m.emit(ctx, &Trailer{StreamID: streamID, Reason: reason}); err != nil {
		return err
	}
	delete(m.streams, streamID)
	m.logger.Debug("closed outbound stream", "stream", streamID, "reason", reason)
	return nil
}

func (m *OutgoingManager) isOpen(streamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[streamID]
	return ok
}

// emit encodes and sends one control packet. Callers hold m.mu.
func (m *OutgoingManager) emit(ctx context.Context, packet Packet) error {
	data, err := EncodePacket(packet)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, data); err != nil {
		return fmt.Errorf("sending stream packet: %w", err)
	}
	return nil
}

// generateStreamID creates a random 16-byte hex string for streams
// opened without a caller-supplied ID. Uses crypto/rand for
// uniqueness without coordination.
func generateStreamID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", fmt.Errorf("generating stream ID: %w", err)
	}
	return hex.EncodeToString(buffer[:]), nil
}

// streamWriter is the shared core of ByteWriter and TextWriter. It
// holds only the stream's header and a reference to the manager;
// open/closed state lives in the manager so the writer observes
// closes made through other paths.
type streamWriter struct {
	manager *OutgoingManager
	info    Header
}

// Info returns the header that opened the stream.
func (w *streamWriter) Info() Header {
	return w.info
}

// IsOpen reports whether the stream is still open in the manager. It
// reflects concurrent closes, including manager teardown.
func (w *streamWriter) IsOpen() bool {
	return w.manager.isOpen(w.info.StreamID)
}

// Close closes the stream normally: the peer's reader sees the
// stream end cleanly once it has consumed all content. Fails with
// ErrUnknownStream if the stream is already closed and with
// ErrTerminated after the manager closed.
func (w *streamWriter) Close(ctx context.Context) error {
	return w.manager.closeStream(ctx, w.info.StreamID, "")
}

// Abort closes the stream with a reason: the peer's reader fails
// with an AbnormalEndError carrying it. An empty reason is
// equivalent to Close.
func (w *streamWriter) Abort(ctx context.Context, reason string) error {
	return w.manager.closeStream(ctx, w.info.StreamID, reason)
}

// ByteWriter writes content to one open byte stream. Writers are
// handles: they hold no stream state of their own and may be used
// from multiple goroutines, with writes serialized by the manager.
type ByteWriter struct {
	streamWriter
}

// Write sends data on the stream, splitting it into chunk packets as
// needed. A nil or empty slice sends nothing.
func (w *ByteWriter) Write(ctx context.Context, data []byte) error {
	return w.manager.sendChunk(ctx, w.info.StreamID, data)
}

// TextWriter writes content to one open text stream.
type TextWriter struct {
	streamWriter
}

// Write sends text on the stream as UTF-8 bytes, splitting it into
// chunk packets as needed. Chunk boundaries may fall inside a
// multi-byte rune; readers reassemble across them.
func (w *TextWriter) Write(ctx context.Context, text string) error {
	return w.manager.sendChunk(ctx, w.info.StreamID, []byte(text))
}
