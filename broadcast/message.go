// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"fmt"

	"github.com/chorus-rtc/chorus/lib/codec"
)

// MessageKind discriminates the typed header variants of the
// broadcast wire format. These values are protocol constants —
// changing them breaks pairs running different binary versions.
type MessageKind uint8

const (
	// KindVideoFrame marks a message whose payload is one encoded
	// video frame. The header is a VideoFrameHeader.
	KindVideoFrame MessageKind = 1

	// KindAudioFrame marks a message whose payload is one encoded
	// audio frame. The header is an AudioFrameHeader.
	KindAudioFrame MessageKind = 2

	// KindCapability marks a control message carrying a
	// CapabilityHeader. Capability messages have no payload.
	KindCapability MessageKind = 3
)

// String returns the human-readable name of a message kind.
func (k MessageKind) String() string {
	switch k {
	case KindVideoFrame:
		return "video-frame"
	case KindAudioFrame:
		return "audio-frame"
	case KindCapability:
		return "capability"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// MessageHeader is the typed header of a broadcast message. The
// variant set is closed: VideoFrameHeader, AudioFrameHeader, and
// CapabilityHeader. Both halves of a broadcast pair ship together,
// so the wire format does not carry variants it does not know about;
// an unknown kind on the wire is corruption, not a newer peer.
type MessageHeader interface {
	// Kind identifies the concrete header variant.
	Kind() MessageKind

	isMessageHeader()
}

// VideoRotation is the clockwise rotation in degrees that a renderer
// must apply to a received video frame. Capture hardware reports
// orientation separately from the pixel buffer, so rotation travels
// in the header rather than being baked into the pixels.
type VideoRotation uint16

// The four rotations the wire format defines.
const (
	RotationNone VideoRotation = 0
	Rotation90   VideoRotation = 90
	Rotation180  VideoRotation = 180
	Rotation270  VideoRotation = 270
)

// Valid reports whether r is one of the four defined rotations.
func (r VideoRotation) Valid() bool {
	switch r {
	case RotationNone, Rotation90, Rotation180, Rotation270:
		return true
	}
	return false
}

// VideoFrameHeader describes the encoded video frame carried in the
// message payload.
type VideoFrameHeader struct {
	// Width and Height are the frame dimensions in pixels, before
	// rotation is applied.
	Width  uint32 `cbor:"width"`
	Height uint32 `cbor:"height"`

	// Rotation is the clockwise rotation the renderer must apply.
	Rotation VideoRotation `cbor:"rotation,omitempty"`

	// Compression identifies the compression applied to the payload
	// after sample encoding.
	Compression CompressionTag `cbor:"compression,omitempty"`

	// TimestampUS is the capture timestamp in microseconds since the
	// Unix epoch. Zero when the capturer does not provide one.
	TimestampUS int64 `cbor:"timestamp_us,omitempty"`
}

// Kind implements MessageHeader.
func (*VideoFrameHeader) Kind() MessageKind { return KindVideoFrame }

func (*VideoFrameHeader) isMessageHeader() {}

// AudioFrameHeader describes the encoded audio frame carried in the
// message payload.
type AudioFrameHeader struct {
	// SampleRate is the sample rate in hertz.
	SampleRate uint32 `cbor:"sample_rate"`

	// Channels is the interleaved channel count.
	Channels uint16 `cbor:"channels"`

	// SampleCount is the number of samples per channel in the
	// payload. Together with Channels this fixes the decoded payload
	// size, which the sample codec verifies.
	SampleCount uint32 `cbor:"sample_count"`

	// Compression identifies the compression applied to the payload
	// after sample encoding.
	Compression CompressionTag `cbor:"compression,omitempty"`

	// TimestampUS is the capture timestamp in microseconds since the
	// Unix epoch. Zero when the capturer does not provide one.
	TimestampUS int64 `cbor:"timestamp_us,omitempty"`
}

// Kind implements MessageHeader.
func (*AudioFrameHeader) Kind() MessageKind { return KindAudioFrame }

func (*AudioFrameHeader) isMessageHeader() {}

// CapabilityHeader is the control message a receiver sends to tell
// the uploader which media it wants. Capability messages carry no
// payload and may be sent at any time; the uploader applies the most
// recent one.
type CapabilityHeader struct {
	// Audio enables audio frame uploads when true. Video is always
	// wanted and has no flag.
	Audio bool `cbor:"audio"`
}

// Kind implements MessageHeader.
func (*CapabilityHeader) Kind() MessageKind { return KindCapability }

func (*CapabilityHeader) isMessageHeader() {}

// Message is one framed message received from the peer: a typed
// header plus an optional payload. Callers type-switch on Header to
// handle the variants.
type Message struct {
	Header  MessageHeader
	Payload []byte
}

// messageEnvelope is the wire form of a message header. Kind names
// the variant; exactly one variant pointer is set to match it.
type messageEnvelope struct {
	Kind       MessageKind       `cbor:"kind"`
	Video      *VideoFrameHeader `cbor:"video,omitempty"`
	Audio      *AudioFrameHeader `cbor:"audio,omitempty"`
	Capability *CapabilityHeader `cbor:"capability,omitempty"`
}

// EncodeMessageHeader returns the CBOR encoding of header wrapped in
// its kind envelope. This is the byte region WriteFrame places
// between the frame prefix and the payload.
func EncodeMessageHeader(header MessageHeader) ([]byte, error) {
	envelope := messageEnvelope{Kind: header.Kind()}
	switch h := header.(type) {
	case *VideoFrameHeader:
		envelope.Video = h
	case *AudioFrameHeader:
		envelope.Audio = h
	case *CapabilityHeader:
		envelope.Capability = h
	default:
		return nil, fmt.Errorf("unsupported message header type %T", header)
	}
	data, err := codec.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding message header: %w", err)
	}
	return data, nil
}

// DecodeMessageHeader decodes the CBOR header region of a frame into
// its typed variant. A header that does not decode, names an unknown
// kind, or lacks the variant its kind promises is corruption.
func DecodeMessageHeader(data []byte) (MessageHeader, error) {
	var envelope messageEnvelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding message header: %v: %w", err, ErrCorruptMessage)
	}

	switch envelope.Kind {
	case KindVideoFrame:
		if envelope.Video == nil {
			return nil, fmt.Errorf("message kind %s has no video header: %w",
				envelope.Kind, ErrCorruptMessage)
		}
		return envelope.Video, nil
	case KindAudioFrame:
		if envelope.Audio == nil {
			return nil, fmt.Errorf("message kind %s has no audio header: %w",
				envelope.Kind, ErrCorruptMessage)
		}
		return envelope.Audio, nil
	case KindCapability:
		if envelope.Capability == nil {
			return nil, fmt.Errorf("message kind %s has no capability header: %w",
				envelope.Kind, ErrCorruptMessage)
		}
		return envelope.Capability, nil
	default:
		return nil, fmt.Errorf("unknown message kind %d: %w", uint8(envelope.Kind), ErrCorruptMessage)
	}
}
