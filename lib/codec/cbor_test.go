// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// sampleHeader is a representative wire header using cbor struct tags
// (the convention for every wire type in this repository).
type sampleHeader struct {
	Kind    string `cbor:"kind"`
	Topic   string `cbor:"topic,omitempty"`
	Length  uint64 `cbor:"length"`
	Content []byte `cbor:"content,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleHeader{
		Kind:   "header",
		Topic:  "chat",
		Length: 544,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleHeader
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Kind != original.Kind || decoded.Topic != original.Topic || decoded.Length != original.Length {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	header := sampleHeader{
		Kind:   "chunk",
		Topic:  "file-transfer",
		Length: 15000,
	}

	first, err := Marshal(header)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}

	second, err := Marshal(header)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	// A zero-value omitempty field should not appear in output.
	withTopic := sampleHeader{Kind: "header", Topic: "chat", Length: 1}
	withoutTopic := sampleHeader{Kind: "header", Length: 1}

	dataWith, err := Marshal(withTopic)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutTopic)
	if err != nil {
		t.Fatal(err)
	}

	// The encoding without the topic field should be shorter because
	// the omitted field is not present.
	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var header sampleHeader
	err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &header)
	if err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// Verify that []byte fields encode as CBOR byte strings (major
	// type 2), not text strings. Chunk content and frame payloads
	// depend on this.
	original := sampleHeader{Kind: "chunk", Content: []byte{0x00, 0x01, 0xFE, 0xFF}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleHeader
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !bytes.Equal(decoded.Content, original.Content) {
		t.Errorf("byte string roundtrip: got %x, want %x", decoded.Content, original.Content)
	}
}

func TestUnmarshalIntoAny(t *testing.T) {
	// Decoding into an any-typed target must yield map[string]any,
	// not map[interface{}]interface{}.
	data, err := Marshal(map[string]any{"kind": "trailer", "reason": "cancelled"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type %T, want map[string]any", decoded)
	}
	if asMap["reason"] != "cancelled" {
		t.Errorf("reason = %v, want cancelled", asMap["reason"])
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "header"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}

	if !strings.Contains(notation, `"kind"`) {
		t.Errorf("notation %q does not contain \"kind\"", notation)
	}
	if !strings.Contains(notation, `"header"`) {
		t.Errorf("notation %q does not contain \"header\"", notation)
	}
}

func BenchmarkMarshal(b *testing.B) {
	header := sampleHeader{
		Kind:    "chunk",
		Topic:   "chat",
		Length:  42,
		Content: bytes.Repeat([]byte{0xAB}, 512),
	}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(header)
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	header := sampleHeader{
		Kind:    "chunk",
		Topic:   "chat",
		Length:  42,
		Content: bytes.Repeat([]byte{0xAB}, 512),
	}
	data, err := Marshal(header)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		var decoded sampleHeader
		Unmarshal(data, &decoded)
	}
}
