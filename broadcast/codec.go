// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import "time"

// Frame is one decoded media frame delivered by Receiver.Next. The
// concrete type is *VideoFrame or *AudioFrame; callers type-switch.
type Frame interface {
	isFrame()
}

// VideoFrame is one captured video frame in raw form: tightly packed
// BGRA pixels, 4 bytes per pixel, row-major.
type VideoFrame struct {
	// Width and Height are the frame dimensions in pixels, before
	// rotation is applied.
	Width  uint32
	Height uint32

	// Rotation is the clockwise rotation a renderer must apply.
	Rotation VideoRotation

	// Data is the pixel buffer. Its length is Width * Height * 4.
	Data []byte

	// Timestamp is the capture time. The zero value means the
	// capturer did not provide one.
	Timestamp time.Time
}

func (*VideoFrame) isFrame() {}

// AudioFrame is one captured audio frame: interleaved 16-bit
// little-endian PCM samples.
type AudioFrame struct {
	// SampleRate is the sample rate in hertz.
	SampleRate uint32

	// Channels is the interleaved channel count.
	Channels uint16

	// Data holds the samples. Its length is a multiple of
	// 2 * Channels.
	Data []byte

	// Timestamp is the capture time. The zero value means the
	// capturer did not provide one.
	Timestamp time.Time
}

func (*AudioFrame) isFrame() {}

// SampleCount returns the number of samples per channel in the frame.
func (f *AudioFrame) SampleCount() uint32 {
	if f.Channels == 0 {
		return 0
	}
	return uint32(len(f.Data) / (2 * int(f.Channels)))
}

// VideoCodec converts between video frames and the wire form that
// crosses the broadcast channel. Implementations must be safe for
// concurrent use: the uploader encodes on the caller's goroutine
// while earlier sends are still in flight.
//
// Encode failures wrap ErrEncodingFailed and decode failures wrap
// ErrDecodingFailed, so callers can classify without knowing the
// codec.
type VideoCodec interface {
	// EncodeVideo produces the header and payload for one frame.
	EncodeVideo(frame *VideoFrame) (VideoFrameHeader, []byte, error)

	// DecodeVideo reverses EncodeVideo. The header is the one
	// received from the wire; implementations must not trust it to
	// be consistent with the payload.
	DecodeVideo(header VideoFrameHeader, payload []byte) (*VideoFrame, error)
}

// AudioCodec converts between audio frames and their wire form. The
// same contract as VideoCodec applies.
type AudioCodec interface {
	// EncodeAudio produces the header and payload for one frame.
	EncodeAudio(frame *AudioFrame) (AudioFrameHeader, []byte, error)

	// DecodeAudio reverses EncodeAudio.
	DecodeAudio(header AudioFrameHeader, payload []byte) (*AudioFrame, error)
}
