// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package broadcast implements the screen-share IPC channel between a
// capture process and the application process that publishes its
// frames.
//
// Screen capture runs in a separate, short-lived process with a tight
// memory ceiling, so frames cross a process boundary rather than a
// function call. The two sides meet on a Unix domain socket: the side
// that owns the socket calls [Accept] and takes exactly one
// connection; the other side calls [Connect], which retries every
// 100ms until the socket exists, so the processes may start in either
// order. Once paired, either endpoint is a [Channel].
//
// The wire protocol is a length-prefixed frame stream. Each frame
// carries an 8-byte prefix (two little-endian uint32 counts: total
// message length, then payload length), a CBOR-encoded message header,
// and an opaque payload. Headers form a closed set of three kinds:
// [VideoFrameHeader] (dimensions, rotation, compression, timestamp),
// [AudioFrameHeader] (sample rate, channel count, sample count), and
// [CapabilityHeader] (the receiver's audio opt-in flag). See
// [WriteFrame], [ReadFrame], and [EncodeMessageHeader] for the layers
// individually; [Channel.Send] and [Channel.Receive] compose them.
//
// Above the channel sit the two endpoint roles. [Uploader] is the
// capture side: [Uploader.SendVideoFrame] encodes and ships a frame
// through a single-slot in-flight gate (a frame arriving while the
// previous one is still being written is dropped, keeping latency
// flat when the socket backs up), and [Uploader.SendAudioFrame] sends
// synchronously once the peer has enabled audio. [Receiver] is the
// application side: [Receiver.Next] pulls decoded frames in arrival
// order, and [Receiver.SetAudioEnabled] flips the uploader's audio
// capability. Decode failures are terminal for a receiver — once the
// stream stops parsing, no later frame boundary can be trusted.
//
// Sample encoding is pluggable through [VideoCodec] and [AudioCodec].
// [RawFrameCodec] ships uncompressed BGRA video and 16-bit PCM audio,
// optionally compressed per frame with LZ4 or zstd ([CompressionTag]);
// incompressible frames fall back to passthrough automatically.
//
// [Channel.PeerCredentials] exposes the kernel-verified identity of
// the process on the other end of the socket (Linux SO_PEERCRED).
package broadcast
