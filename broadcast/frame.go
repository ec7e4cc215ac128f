// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FramePrefixLength is the fixed size of the prefix that starts every
// frame on the wire: two little-endian uint32 values.
const FramePrefixLength = 8

// MaxFrameLength is the maximum combined length of a frame's encoded
// header and payload. 64 MB comfortably covers an uncompressed 4K
// BGRA frame; anything larger means the stream is corrupt.
const MaxFrameLength = 64 * 1024 * 1024

// FramePrefix describes the frame that follows it on the wire.
//
// Both fields are encoded little-endian. The byte order is part of
// the protocol, not inherited from the host, so a pair split across
// architectures still interoperates.
type FramePrefix struct {
	// TotalLength is the combined length in bytes of the encoded
	// header and the payload that follow the prefix.
	TotalLength uint32

	// PayloadLength is the length in bytes of the trailing payload.
	// The encoded header occupies TotalLength - PayloadLength bytes.
	PayloadLength uint32
}

// HeaderLength returns the length in bytes of the encoded header
// region of the frame.
func (p FramePrefix) HeaderLength() uint32 {
	return p.TotalLength - p.PayloadLength
}

// EncodeFramePrefix returns the 8-byte wire form of p.
func EncodeFramePrefix(p FramePrefix) [FramePrefixLength]byte {
	var prefix [FramePrefixLength]byte
	binary.LittleEndian.PutUint32(prefix[0:4], p.TotalLength)
	binary.LittleEndian.PutUint32(prefix[4:8], p.PayloadLength)
	return prefix
}

// DecodeFramePrefix parses the frame prefix at the start of data.
// Returns an error wrapping ErrCorruptMessage if data is shorter than
// FramePrefixLength, if the payload length exceeds the total length,
// or if the total length exceeds MaxFrameLength.
func DecodeFramePrefix(data []byte) (FramePrefix, error) {
	if len(data) < FramePrefixLength {
		return FramePrefix{}, fmt.Errorf("frame prefix is %d bytes, need %d: %w",
			len(data), FramePrefixLength, ErrCorruptMessage)
	}
	prefix := FramePrefix{
		TotalLength:   binary.LittleEndian.Uint32(data[0:4]),
		PayloadLength: binary.LittleEndian.Uint32(data[4:8]),
	}
	if prefix.PayloadLength > prefix.TotalLength {
		return FramePrefix{}, fmt.Errorf("payload length %d exceeds total length %d: %w",
			prefix.PayloadLength, prefix.TotalLength, ErrCorruptMessage)
	}
	if prefix.TotalLength > MaxFrameLength {
		return FramePrefix{}, fmt.Errorf("frame length %d exceeds maximum %d: %w",
			prefix.TotalLength, MaxFrameLength, ErrCorruptMessage)
	}
	return prefix, nil
}

// WriteFrame writes one framed message to w: the 8-byte prefix, the
// encoded header, then the payload. The frame is assembled into a
// single buffer and written with one Write call, so writers that are
// serialized externally never interleave partial frames.
func WriteFrame(w io.Writer, encodedHeader, payload []byte) error {
	totalLength := len(encodedHeader) + len(payload)
	if totalLength > MaxFrameLength {
		return fmt.Errorf("frame length %d exceeds maximum %d", totalLength, MaxFrameLength)
	}

	frame := make([]byte, FramePrefixLength+totalLength)
	prefix := EncodeFramePrefix(FramePrefix{
		TotalLength:   uint32(totalLength),
		PayloadLength: uint32(len(payload)),
	})
	copy(frame, prefix[:])
	copy(frame[FramePrefixLength:], encodedHeader)
	copy(frame[FramePrefixLength+len(encodedHeader):], payload)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReadFrame reads one framed message from r, returning the encoded
// header bytes and the payload. A clean end of stream at a frame
// boundary returns io.EOF; a stream that ends mid-frame returns an
// error wrapping io.ErrUnexpectedEOF. The returned payload is nil
// when the frame carries none.
func ReadFrame(r io.Reader) (encodedHeader, payload []byte, err error) {
	var prefixBytes [FramePrefixLength]byte
	if _, err := io.ReadFull(r, prefixBytes[:]); err != nil {
		if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, io.EOF
		}
		return nil, nil, fmt.Errorf("reading frame prefix: %w", err)
	}

	prefix, err := DecodeFramePrefix(prefixBytes[:])
	if err != nil {
		return nil, nil, err
	}

	body := make([]byte, prefix.TotalLength)
	if _, err := io.ReadFull(r, body); err != nil {
		// A stream that ends between prefix and body is truncated,
		// not cleanly closed, even though zero body bytes arrived.
		if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, fmt.Errorf("reading frame body: %w", err)
	}

	encodedHeader = body[:prefix.HeaderLength()]
	if prefix.PayloadLength > 0 {
		payload = body[prefix.HeaderLength():]
	}
	return encodedHeader, payload, nil
}
