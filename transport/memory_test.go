// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/chorus-rtc/chorus/lib/testutil"
)

func TestMemoryPairExchange(t *testing.T) {
	t.Parallel()
	left, right := MemoryPair("publisher", "subscriber")
	defer left.Close()
	defer right.Close()

	if got := left.RemoteIdentity(); got != "subscriber" {
		t.Errorf("left remote identity: got %q, want %q", got, "subscriber")
	}
	if got := right.RemoteIdentity(); got != "publisher" {
		t.Errorf("right remote identity: got %q, want %q", got, "publisher")
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		packet := []byte(fmt.Sprintf("packet-%d", i))
		if err := left.Send(ctx, packet); err != nil {
			t.Fatalf("Send[%d]: %v", i, err)
		}
	}
	for i := 0; i < 10; i++ {
		packet, err := right.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive[%d]: %v", i, err)
		}
		if want := fmt.Sprintf("packet-%d", i); string(packet) != want {
			t.Fatalf("packet[%d]: got %q, want %q", i, packet, want)
		}
	}

	// The reverse direction is independent.
	if err := right.Send(ctx, []byte("reply")); err != nil {
		t.Fatalf("reverse Send: %v", err)
	}
	packet, err := left.Receive(ctx)
	if err != nil {
		t.Fatalf("reverse Receive: %v", err)
	}
	if string(packet) != "reply" {
		t.Fatalf("reverse packet: got %q, want %q", packet, "reply")
	}
}

func TestMemoryPairSendDoesNotAliasCallerBuffer(t *testing.T) {
	t.Parallel()
	left, right := MemoryPair("a", "b")
	defer left.Close()
	defer right.Close()

	ctx := context.Background()
	buffer := []byte("original")
	if err := left.Send(ctx, buffer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	copy(buffer, "mutated!")

	packet, err := right.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(packet, []byte("original")) {
		t.Fatalf("packet: got %q, want %q", packet, "original")
	}
}

func TestMemoryPairPeerCloseDrainsBeforeEOF(t *testing.T) {
	t.Parallel()
	left, right := MemoryPair("a", "b")
	defer right.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := left.Send(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("Send[%d]: %v", i, err)
		}
	}
	if err := left.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Packets delivered before the close are still readable.
	for i := 0; i < 3; i++ {
		packet, err := right.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive[%d]: %v", i, err)
		}
		if len(packet) != 1 || packet[0] != byte(i) {
			t.Fatalf("packet[%d]: got %v", i, packet)
		}
	}

	if _, err := right.Receive(ctx); err != io.EOF {
		t.Fatalf("Receive after drain: got %v, want io.EOF", err)
	}
	if err := right.Send(ctx, []byte("late")); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Send to closed peer: got %v, want ErrChannelClosed", err)
	}
}

func TestMemoryPairLocalClose(t *testing.T) {
	t.Parallel()
	left, right := MemoryPair("a", "b")
	defer right.Close()

	if err := left.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := left.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	ctx := context.Background()
	if err := left.Send(ctx, []byte("x")); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Send after Close: got %v, want ErrChannelClosed", err)
	}
	if _, err := left.Receive(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Receive after Close: got %v, want ErrChannelClosed", err)
	}
}

func TestMemoryPairPacketTooLarge(t *testing.T) {
	t.Parallel()
	left, right := MemoryPair("a", "b")
	defer left.Close()
	defer right.Close()

	ctx := context.Background()
	err := left.Send(ctx, make([]byte, MaxPacketSize+1))
	if !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("Send: got %v, want ErrPacketTooLarge", err)
	}

	// The channel survives the rejection.
	if err := left.Send(ctx, make([]byte, MaxPacketSize)); err != nil {
		t.Fatalf("Send at the limit: %v", err)
	}
	if _, err := right.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}
}

func TestMemoryPairReceiveCancellation(t *testing.T) {
	t.Parallel()
	left, right := MemoryPair("a", "b")
	defer left.Close()
	defer right.Close()

	ctx, cancel := context.WithCancel(context.Background())
	receiveErrs := make(chan error, 1)
	go func() {
		_, err := right.Receive(ctx)
		receiveErrs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := testutil.RequireReceive(t, receiveErrs, time.Second, "Receive unblocked")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Receive: got %v, want context.Canceled", err)
	}
}

func TestMemoryPairSendBackpressure(t *testing.T) {
	t.Parallel()
	left, right := MemoryPair("a", "b")
	defer left.Close()
	defer right.Close()

	ctx := context.Background()
	for i := 0; i < memoryBufferDepth; i++ {
		if err := left.Send(ctx, []byte{1}); err != nil {
			t.Fatalf("Send[%d]: %v", i, err)
		}
	}

	// The buffer is full: the next Send blocks until the reader
	// drains a packet.
	sendErrs := make(chan error, 1)
	go func() {
		sendErrs <- left.Send(ctx, []byte{2})
	}()

	select {
	case err := <-sendErrs:
		t.Fatalf("Send on full buffer returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := right.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := testutil.RequireReceive(t, sendErrs, time.Second, "Send unblocked"); err != nil {
		t.Fatalf("Send after drain: %v", err)
	}
}
