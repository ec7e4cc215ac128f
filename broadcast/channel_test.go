// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/chorus-rtc/chorus/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type acceptResult struct {
	channel *Channel
	err     error
}

// pairChannels establishes a broadcast pair over a socket in a fresh
// temporary directory and returns both endpoints, closed on cleanup.
func pairChannels(t *testing.T) (acceptor, connector *Channel) {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "broadcast.sock")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make(chan acceptResult, 1)
	go func() {
		channel, err := Accept(ctx, socketPath, testLogger())
		results <- acceptResult{channel, err}
	}()

	connector, err := Connect(ctx, socketPath, testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for Accept")
	if result.err != nil {
		t.Fatalf("Accept: %v", result.err)
	}

	t.Cleanup(func() {
		result.channel.Close()
		connector.Close()
	})
	return result.channel, connector
}

func TestChannelSendReceive(t *testing.T) {
	t.Parallel()
	acceptor, connector := pairChannels(t)
	ctx := context.Background()

	header := &VideoFrameHeader{Width: 1920, Height: 1080, Rotation: Rotation180}
	payload := []byte("pixel data stand-in")
	if err := connector.Send(ctx, header, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	message, err := acceptor.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	got, ok := message.Header.(*VideoFrameHeader)
	if !ok {
		t.Fatalf("header type: got %T, want *VideoFrameHeader", message.Header)
	}
	if *got != *header {
		t.Errorf("header: got %+v, want %+v", *got, *header)
	}
	if string(message.Payload) != string(payload) {
		t.Errorf("payload: got %q, want %q", message.Payload, payload)
	}

	// The channel is symmetric: control traffic flows the other way.
	if err := acceptor.Send(ctx, &CapabilityHeader{Audio: true}, nil); err != nil {
		t.Fatalf("Send capability: %v", err)
	}
	message, err = connector.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive capability: %v", err)
	}
	capability, ok := message.Header.(*CapabilityHeader)
	if !ok {
		t.Fatalf("header type: got %T, want *CapabilityHeader", message.Header)
	}
	if !capability.Audio {
		t.Error("capability: audio flag lost in transit")
	}
	if message.Payload != nil {
		t.Errorf("capability payload: got %d bytes, want none", len(message.Payload))
	}
}

func TestChannelOrderPreservation(t *testing.T) {
	t.Parallel()
	acceptor, connector := pairChannels(t)

	const messageCount = 1000
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sendErrs := make(chan error, 1)
	go func() {
		for i := 0; i < messageCount; i++ {
			payload := make([]byte, 4+i%509)
			binary.LittleEndian.PutUint32(payload, uint32(i))
			header := &VideoFrameHeader{Width: uint32(i), Height: 1}
			if err := connector.Send(ctx, header, payload); err != nil {
				sendErrs <- err
				return
			}
		}
		sendErrs <- nil
	}()

	for i := 0; i < messageCount; i++ {
		message, err := acceptor.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive[%d]: %v", i, err)
		}
		header, ok := message.Header.(*VideoFrameHeader)
		if !ok {
			t.Fatalf("message[%d] header type: got %T", i, message.Header)
		}
		if header.Width != uint32(i) {
			t.Fatalf("message[%d] arrived out of order: header says %d", i, header.Width)
		}
		if got := binary.LittleEndian.Uint32(message.Payload); got != uint32(i) {
			t.Fatalf("message[%d] payload says %d", i, got)
		}
		if want := 4 + i%509; len(message.Payload) != want {
			t.Fatalf("message[%d] payload length: got %d, want %d", i, len(message.Payload), want)
		}
	}

	if err := testutil.RequireReceive(t, sendErrs, 5*time.Second, "sender finished"); err != nil {
		t.Fatalf("sender: %v", err)
	}
}

func TestChannelConcurrentSenders(t *testing.T) {
	t.Parallel()
	acceptor, connector := pairChannels(t)

	const sendersCount = 4
	const perSender = 100
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sendErrs := make(chan error, sendersCount)
	for sender := 0; sender < sendersCount; sender++ {
		go func(sender int) {
			for i := 0; i < perSender; i++ {
				payload := make([]byte, 8)
				binary.LittleEndian.PutUint32(payload[0:4], uint32(sender))
				binary.LittleEndian.PutUint32(payload[4:8], uint32(i))
				if err := connector.Send(ctx, &VideoFrameHeader{Width: 1, Height: 1}, payload); err != nil {
					sendErrs <- err
					return
				}
			}
			sendErrs <- nil
		}(sender)
	}

	// Frames from concurrent senders must never interleave: every
	// message must parse, and each sender's sequence must arrive in
	// its send order.
	nextIndex := make([]uint32, sendersCount)
	for received := 0; received < sendersCount*perSender; received++ {
		message, err := acceptor.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive[%d]: %v", received, err)
		}
		if len(message.Payload) != 8 {
			t.Fatalf("message[%d] payload length: got %d, want 8", received, len(message.Payload))
		}
		sender := binary.LittleEndian.Uint32(message.Payload[0:4])
		index := binary.LittleEndian.Uint32(message.Payload[4:8])
		if sender >= sendersCount {
			t.Fatalf("message[%d] names sender %d", received, sender)
		}
		if index != nextIndex[sender] {
			t.Fatalf("sender %d: got index %d, want %d", sender, index, nextIndex[sender])
		}
		nextIndex[sender]++
	}

	for sender := 0; sender < sendersCount; sender++ {
		if err := testutil.RequireReceive(t, sendErrs, 5*time.Second, "sender finished"); err != nil {
			t.Fatalf("sender: %v", err)
		}
	}
}

func TestConnectBeforeAccept(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "broadcast.sock")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The connector starts first and retries until the acceptor
	// appears.
	start := time.Now()
	results := make(chan acceptResult, 1)
	go func() {
		channel, err := Connect(ctx, socketPath, testLogger())
		results <- acceptResult{channel, err}
	}()

	time.Sleep(300 * time.Millisecond)
	acceptor, err := Accept(ctx, socketPath, testLogger())
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer acceptor.Close()

	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for Connect")
	if result.err != nil {
		t.Fatalf("Connect: %v", result.err)
	}
	defer result.channel.Close()

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("pairing took %v, want under 2s", elapsed)
	}

	// The pair works.
	if err := result.channel.Send(ctx, &CapabilityHeader{Audio: true}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := acceptor.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}
}

func TestConnectCancellation(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "missing.sock")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Connect(ctx, socketPath, testLogger())
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Connect: got %v, want context.DeadlineExceeded", err)
	}
	if elapsed > time.Second {
		t.Errorf("Connect returned after %v, want under 1s", elapsed)
	}
}

func TestAcceptCancellation(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "broadcast.sock")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Accept(ctx, socketPath, testLogger())
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Accept: got %v, want context.DeadlineExceeded", err)
	}
	if elapsed > time.Second {
		t.Errorf("Accept returned after %v, want under 1s", elapsed)
	}
}

func TestAcceptTakesSingleConnection(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "broadcast.sock")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make(chan acceptResult, 1)
	go func() {
		channel, err := Accept(ctx, socketPath, testLogger())
		results <- acceptResult{channel, err}
	}()
	connector, err := Connect(ctx, socketPath, testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer connector.Close()
	result := testutil.RequireReceive(t, results, 5*time.Second, "waiting for Accept")
	if result.err != nil {
		t.Fatalf("Accept: %v", result.err)
	}
	defer result.channel.Close()

	// Accept has returned, so the pairing window is closed and the
	// socket file unlinked. A late connector keeps retrying until its
	// context expires; it is never paired.
	lateCtx, lateCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer lateCancel()
	if _, err := Connect(lateCtx, socketPath, testLogger()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("late Connect: got %v, want context.DeadlineExceeded", err)
	}

	// The established pair is unaffected.
	if err := connector.Send(ctx, &CapabilityHeader{}, nil); err != nil {
		t.Fatalf("Send on established pair: %v", err)
	}
	if _, err := result.channel.Receive(ctx); err != nil {
		t.Fatalf("Receive on established pair: %v", err)
	}
}

func TestReceiveUnblocksOnCancel(t *testing.T) {
	t.Parallel()
	acceptor, connector := pairChannels(t)

	ctx, cancel := context.WithCancel(context.Background())
	receiveErrs := make(chan error, 1)
	go func() {
		_, err := acceptor.Receive(ctx)
		receiveErrs <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	start := time.Now()
	err := testutil.RequireReceive(t, receiveErrs, time.Second, "Receive unblocked")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Receive: got %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Receive unblocked after %v, want under 1s", elapsed)
	}

	// The cancellation must not poison the connection: a fresh
	// Receive still works once traffic arrives.
	if err := connector.Send(context.Background(), &CapabilityHeader{Audio: true}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	message, err := acceptor.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive after cancellation: %v", err)
	}
	if _, ok := message.Header.(*CapabilityHeader); !ok {
		t.Fatalf("header type: got %T, want *CapabilityHeader", message.Header)
	}
}

func TestChannelClose(t *testing.T) {
	t.Parallel()
	acceptor, connector := pairChannels(t)
	ctx := context.Background()

	if connector.Closed() {
		t.Fatal("Closed before Close")
	}
	if err := connector.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !connector.Closed() {
		t.Fatal("Closed after Close should report true")
	}
	if err := connector.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := connector.Send(ctx, &CapabilityHeader{}, nil); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Send after Close: got %v, want ErrChannelClosed", err)
	}
	if _, err := connector.Receive(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Receive after Close: got %v, want ErrChannelClosed", err)
	}

	// The surviving peer sees a clean end of stream.
	if _, err := acceptor.Receive(ctx); err != io.EOF {
		t.Fatalf("peer Receive: got %v, want io.EOF", err)
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	t.Parallel()
	acceptor, _ := pairChannels(t)

	receiveErrs := make(chan error, 1)
	go func() {
		_, err := acceptor.Receive(context.Background())
		receiveErrs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := acceptor.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err := testutil.RequireReceive(t, receiveErrs, time.Second, "Receive unblocked by Close")
	if !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Receive: got %v, want ErrChannelClosed", err)
	}
}

func TestPeerCredentials(t *testing.T) {
	t.Parallel()
	if runtime.GOOS != "linux" {
		t.Skip("SO_PEERCRED requires Linux")
	}
	acceptor, connector := pairChannels(t)

	for name, channel := range map[string]*Channel{"acceptor": acceptor, "connector": connector} {
		credentials, err := channel.PeerCredentials()
		if err != nil {
			t.Fatalf("%s PeerCredentials: %v", name, err)
		}
		// Both ends live in this test process.
		if credentials.PID != int32(os.Getpid()) {
			t.Errorf("%s peer PID: got %d, want %d", name, credentials.PID, os.Getpid())
		}
		if credentials.UID != uint32(os.Getuid()) {
			t.Errorf("%s peer UID: got %d, want %d", name, credentials.UID, os.Getuid())
		}
	}
}

func TestAcceptRemovesStaleSocket(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "broadcast.sock")

	// A SIGKILLed acceptor leaves its socket file behind; the next
	// Accept must reclaim the path.
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatalf("planting stale socket file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make(chan acceptResult, 1)
	go func() {
		channel, err := Accept(ctx, socketPath, testLogger())
		results <- acceptResult{channel, err}
	}()
	connector, err := Connect(ctx, socketPath, testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer connector.Close()
	result := testutil.RequireReceive(t, results, 5*time.Second, "Accept reclaimed path")
	if result.err != nil {
		t.Fatalf("Accept with stale socket present: %v", result.err)
	}
	result.channel.Close()
}
