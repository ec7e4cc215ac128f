// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"fmt"
	"time"
)

// Compile-time interface checks.
var (
	_ VideoCodec = (*RawFrameCodec)(nil)
	_ AudioCodec = (*RawFrameCodec)(nil)
)

// RawFrameCodec is the built-in sample codec: frames cross the wire
// as their raw sample buffers (BGRA pixels, PCM16 samples), optionally
// compressed. It trades bandwidth for zero codec latency and no
// platform dependencies, which suits the same-machine socket hop the
// broadcast channel makes.
//
// The zero value sends uncompressed payloads.
type RawFrameCodec struct {
	// Compression is applied by the encode side. When a payload
	// turns out to be incompressible, the codec falls back to
	// CompressionNone for that frame. The decode side follows the
	// tag carried in each header, so the two ends of a pair need
	// not agree on this setting.
	Compression CompressionTag
}

// EncodeVideo validates the pixel buffer against the frame
// dimensions and compresses it per the configured tag.
func (c *RawFrameCodec) EncodeVideo(frame *VideoFrame) (VideoFrameHeader, []byte, error) {
	expectedSize := int(frame.Width) * int(frame.Height) * 4
	if len(frame.Data) != expectedSize {
		return VideoFrameHeader{}, nil, fmt.Errorf(
			"pixel buffer is %d bytes, want %d for %dx%d BGRA: %w",
			len(frame.Data), expectedSize, frame.Width, frame.Height, ErrEncodingFailed)
	}
	if !frame.Rotation.Valid() {
		return VideoFrameHeader{}, nil, fmt.Errorf(
			"invalid rotation %d: %w", frame.Rotation, ErrEncodingFailed)
	}

	payload, tag, err := c.compress(frame.Data)
	if err != nil {
		return VideoFrameHeader{}, nil, fmt.Errorf("compressing pixel buffer: %v: %w", err, ErrEncodingFailed)
	}

	header := VideoFrameHeader{
		Width:       frame.Width,
		Height:      frame.Height,
		Rotation:    frame.Rotation,
		Compression: tag,
	}
	if !frame.Timestamp.IsZero() {
		header.TimestampUS = frame.Timestamp.UnixMicro()
	}
	return header, payload, nil
}

// DecodeVideo decompresses the payload to the exact size the header's
// dimensions fix and rebuilds the frame.
func (c *RawFrameCodec) DecodeVideo(header VideoFrameHeader, payload []byte) (*VideoFrame, error) {
	if !header.Rotation.Valid() {
		return nil, fmt.Errorf("invalid rotation %d: %w", header.Rotation, ErrDecodingFailed)
	}

	expectedSize := int(header.Width) * int(header.Height) * 4
	data, err := DecompressPayload(payload, header.Compression, expectedSize)
	if err != nil {
		return nil, fmt.Errorf("decompressing pixel buffer: %v: %w", err, ErrDecodingFailed)
	}

	frame := &VideoFrame{
		Width:    header.Width,
		Height:   header.Height,
		Rotation: header.Rotation,
		Data:     data,
	}
	if header.TimestampUS != 0 {
		frame.Timestamp = time.UnixMicro(header.TimestampUS)
	}
	return frame, nil
}

// EncodeAudio validates the sample buffer against the channel layout
// and compresses it per the configured tag.
func (c *RawFrameCodec) EncodeAudio(frame *AudioFrame) (AudioFrameHeader, []byte, error) {
	if frame.Channels == 0 {
		return AudioFrameHeader{}, nil, fmt.Errorf("audio frame has zero channels: %w", ErrEncodingFailed)
	}
	bytesPerSample := 2 * int(frame.Channels)
	if len(frame.Data)%bytesPerSample != 0 {
		return AudioFrameHeader{}, nil, fmt.Errorf(
			"sample buffer is %d bytes, not a multiple of %d (16-bit x %d channels): %w",
			len(frame.Data), bytesPerSample, frame.Channels, ErrEncodingFailed)
	}

	payload, tag, err := c.compress(frame.Data)
	if err != nil {
		return AudioFrameHeader{}, nil, fmt.Errorf("compressing sample buffer: %v: %w", err, ErrEncodingFailed)
	}

	header := AudioFrameHeader{
		SampleRate:  frame.SampleRate,
		Channels:    frame.Channels,
		SampleCount: frame.SampleCount(),
		Compression: tag,
	}
	if !frame.Timestamp.IsZero() {
		header.TimestampUS = frame.Timestamp.UnixMicro()
	}
	return header, payload, nil
}

// DecodeAudio decompresses the payload to the exact size the header's
// sample count fixes and rebuilds the frame.
func (c *RawFrameCodec) DecodeAudio(header AudioFrameHeader, payload []byte) (*AudioFrame, error) {
	if header.Channels == 0 {
		return nil, fmt.Errorf("audio header has zero channels: %w", ErrDecodingFailed)
	}

	expectedSize := int(header.SampleCount) * 2 * int(header.Channels)
	data, err := DecompressPayload(payload, header.Compression, expectedSize)
	if err != nil {
		return nil, fmt.Errorf("decompressing sample buffer: %v: %w", err, ErrDecodingFailed)
	}

	frame := &AudioFrame{
		SampleRate: header.SampleRate,
		Channels:   header.Channels,
		Data:       data,
	}
	if header.TimestampUS != 0 {
		frame.Timestamp = time.UnixMicro(header.TimestampUS)
	}
	return frame, nil
}

// compress applies the configured compression, falling back to
// CompressionNone when the data is incompressible. Returns the
// payload and the tag that actually applies to it.
func (c *RawFrameCodec) compress(data []byte) ([]byte, CompressionTag, error) {
	compressed, err := CompressPayload(data, c.Compression)
	if err != nil {
		if IsIncompressible(err) {
			return data, CompressionNone, nil
		}
		return nil, 0, err
	}
	return compressed, c.Compression, nil
}
