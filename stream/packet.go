// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"fmt"

	"github.com/chorus-rtc/chorus/lib/codec"
)

// maxChunkSize is the largest content slice a single chunk packet
// carries. Writers split larger payloads transparently. The value
// leaves ample room for the envelope inside a 64 KiB packet-channel
// message while keeping chunks small enough to interleave fairly
// with other streams sharing the carrier.
const maxChunkSize = 15_000

// ContentKind distinguishes byte streams from text streams. It is
// carried in the stream header so the receiving side constructs the
// matching reader.
type ContentKind uint8

const (
	// ContentBytes marks a stream of raw bytes.
	ContentBytes ContentKind = 1

	// ContentText marks a stream of UTF-8 text. Chunk boundaries may
	// fall inside a multi-byte rune; readers reassemble across them.
	ContentText ContentKind = 2
)

// String returns the human-readable name of a content kind.
func (k ContentKind) String() string {
	switch k {
	case ContentBytes:
		return "bytes"
	case ContentText:
		return "text"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// packetKind discriminates the control packet variants on the wire.
// These values are protocol constants.
type packetKind uint8

const (
	kindHeader  packetKind = 1
	kindChunk   packetKind = 2
	kindTrailer packetKind = 3
)

// Packet is one stream control packet. The variant set is closed:
// [*Header] opens a stream, [*Chunk] carries content, [*Trailer]
// closes a stream.
type Packet interface {
	isPacket()
}

// Header opens a logical stream. It carries the metadata the
// receiving side exposes through the reader and uses to pick the
// topic handler.
type Header struct {
	// StreamID uniquely identifies the stream among all streams
	// currently open on the carrier.
	StreamID string `cbor:"stream_id"`

	// Topic routes the stream to the handler registered for it.
	Topic string `cbor:"topic"`

	// Kind tells the receiver whether the content is raw bytes or
	// UTF-8 text.
	Kind ContentKind `cbor:"kind"`

	// MimeType describes the content. Defaults are filled in by the
	// outgoing manager when the opener leaves it empty.
	MimeType string `cbor:"mime_type,omitempty"`

	// Name is an optional human-readable name, such as a filename.
	Name string `cbor:"name,omitempty"`

	// TotalLength is the declared content length in bytes, or nil
	// when the sender does not know it up front. When declared, the
	// receiving side verifies it against the bytes actually
	// delivered before accepting the trailer.
	TotalLength *uint64 `cbor:"total_length,omitempty"`

	// Attributes carries application-defined key/value metadata.
	Attributes map[string]string `cbor:"attributes,omitempty"`

	// TimestampMS is the stream open time in milliseconds since the
	// Unix epoch.
	TimestampMS int64 `cbor:"timestamp_ms,omitempty"`
}

func (*Header) isPacket() {}

// Chunk carries one content slice of an open stream. Content length
// never exceeds maxChunkSize.
type Chunk struct {
	// StreamID names the stream this slice belongs to.
	StreamID string `cbor:"stream_id"`

	// ChunkIndex is the zero-based position of this chunk in the
	// stream. The carrier delivers packets in order, so the index is
	// recorded for diagnostics rather than used for reordering.
	ChunkIndex uint64 `cbor:"chunk_index"`

	// Content is the chunk payload.
	Content []byte `cbor:"content"`
}

func (*Chunk) isPacket() {}

// Trailer closes a stream. An empty Reason is the sentinel for
// normal closure; any non-empty Reason signals abnormal closure and
// surfaces to the reader as an AbnormalEndError.
type Trailer struct {
	// StreamID names the stream being closed.
	StreamID string `cbor:"stream_id"`

	// Reason is the closure reason, empty for normal closure.
	Reason string `cbor:"reason,omitempty"`
}

func (*Trailer) isPacket() {}

// packetEnvelope is the wire form of a control packet. Kind names
// the variant; exactly one variant pointer is set to match it.
type packetEnvelope struct {
	Kind    packetKind `cbor:"kind"`
	Header  *Header    `cbor:"header,omitempty"`
	Chunk   *Chunk     `cbor:"chunk,omitempty"`
	Trailer *Trailer   `cbor:"trailer,omitempty"`
}

// EncodePacket returns the CBOR encoding of packet wrapped in its
// kind envelope. The result is one packet-channel message.
func EncodePacket(packet Packet) ([]byte, error) {
	var envelope packetEnvelope
	switch p := packet.(type) {
	case *Header:
		envelope.Kind = kindHeader
		envelope.Header = p
	case *Chunk:
		envelope.Kind = kindChunk
		envelope.Chunk = p
	case *Trailer:
		envelope.Kind = kindTrailer
		envelope.Trailer = p
	default:
		return nil, fmt.Errorf("unsupported packet type %T", packet)
	}
	data, err := codec.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding stream packet: %w", err)
	}
	return data, nil
}

// DecodePacket decodes one packet-channel message into its control
// packet variant. A message that does not decode, names an unknown
// kind, or lacks the variant its kind promises is corruption.
func DecodePacket(data []byte) (Packet, error) {
	var envelope packetEnvelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding stream packet: %v: %w", err, ErrCorruptPacket)
	}

	switch envelope.Kind {
	case kindHeader:
		if envelope.Header == nil {
			return nil, fmt.Errorf("header packet has no header: %w", ErrCorruptPacket)
		}
		return envelope.Header, nil
	case kindChunk:
		if envelope.Chunk == nil {
			return nil, fmt.Errorf("chunk packet has no chunk: %w", ErrCorruptPacket)
		}
		return envelope.Chunk, nil
	case kindTrailer:
		if envelope.Trailer == nil {
			return nil, fmt.Errorf("trailer packet has no trailer: %w", ErrCorruptPacket)
		}
		return envelope.Trailer, nil
	default:
		return nil, fmt.Errorf("unknown packet kind %d: %w", uint8(envelope.Kind), ErrCorruptPacket)
	}
}
