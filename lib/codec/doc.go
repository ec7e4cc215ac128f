// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the SDK's standard CBOR encoding configuration.
//
// Every wire format in this repository is CBOR: the typed message
// headers exchanged over the broadcast channel's Unix socket, and the
// stream control packets carried over a transport.PacketChannel. This
// package holds the shared encoding and decoding modes so that every
// package encodes identically without duplicating configuration.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Both halves of a broadcast pair and both peers of a data channel
// produce identical bytes for the same logical value, which keeps
// golden-byte tests and on-wire comparisons meaningful.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Wire types in this repository use `cbor` struct tags exclusively —
// none of them is ever serialized as JSON. Scenario configuration for
// the mock binary is YAML and does not pass through this package.
package codec
