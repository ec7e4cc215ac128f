// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// connectRetryInterval is how long Connect waits between dial attempts
// while the acceptor's socket does not exist yet or refuses. The two
// processes of a broadcast pair are launched independently, so the
// connector routinely starts first.
const connectRetryInterval = 100 * time.Millisecond

// Channel is one endpoint of a broadcast pair: a framed, bidirectional
// message channel between exactly two processes over a Unix domain
// socket. One process calls Accept, the other Connect; after that the
// two endpoints are symmetric.
//
// Send and Receive are each safe for concurrent use. Writers are
// serialized so frames from concurrent senders never interleave on
// the wire; a single sender's messages arrive in send order.
type Channel struct {
	conn   net.Conn
	logger *slog.Logger

	// writeMu serializes frame writes; readMu serializes frame reads.
	// Separate locks keep a blocked Receive from stalling Send.
	writeMu sync.Mutex
	readMu  sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// Accept listens on a Unix domain socket at socketPath and waits for
// exactly one peer to connect. The first connection wins: the
// listener is closed as soon as a peer is accepted, so no later
// connector is ever paired. A stale socket file at the path is
// removed before listening.
//
// Blocks until a peer connects or ctx is done; cancellation returns
// the context's error. The logger may be nil, in which case
// slog.Default() is used.
func Accept(ctx context.Context, socketPath string, logger *slog.Logger) (*Channel, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	// Closing the listener is what ends the pairing window; it also
	// unlinks the socket file. Runs on every path.
	defer listener.Close()

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accepting broadcast peer on %s: %w", socketPath, err)
	}

	channel := newChannel(conn, logger)
	channel.logger.Debug("broadcast peer accepted", "socket", socketPath)
	return channel, nil
}

// Connect dials the Unix domain socket at socketPath. While the
// socket does not exist yet or nothing is listening on it — the
// acceptor has not started — Connect retries every 100ms until ctx is
// done. Cancellation returns the context's error; any other dial
// failure propagates immediately.
//
// The logger may be nil, in which case slog.Default() is used.
func Connect(ctx context.Context, socketPath string, logger *slog.Logger) (*Channel, error) {
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "unix", socketPath)
		if err == nil {
			channel := newChannel(conn, logger)
			channel.logger.Debug("broadcast peer connected", "socket", socketPath)
			return channel, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryableDialError(err) {
			return nil, fmt.Errorf("dialing broadcast socket %s: %w", socketPath, err)
		}

		select {
		case <-time.After(connectRetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// isRetryableDialError reports whether a dial failure means the
// acceptor has not started yet: the socket file does not exist, or it
// exists but nothing is listening (a stale file from an earlier pair
// the acceptor has not yet replaced).
func isRetryableDialError(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}

func newChannel(conn net.Conn, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		conn:   conn,
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Send encodes header, assembles a single frame of prefix + encoded
// header + payload, and writes it with one write call. payload may be
// nil for control messages. Concurrent senders are serialized; frames
// never interleave.
//
// Cancelling ctx fails the write promptly and returns the context's
// error. After Close, Send returns ErrChannelClosed.
func (c *Channel) Send(ctx context.Context, header MessageHeader, payload []byte) error {
	encodedHeader, err := EncodeMessageHeader(header)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.Closed() {
		return ErrChannelClosed
	}

	restore := expireOnDone(ctx, c.conn.SetWriteDeadline)
	defer restore()

	if err := WriteFrame(c.conn, encodedHeader, payload); err != nil {
		return c.transportError(ctx, err)
	}
	return nil
}

// Receive reads the next framed message from the peer: the 8-byte
// prefix, then the frame body, then the typed header decode. Blocks
// until a full message arrives, the peer closes, or ctx is done.
//
// A clean peer close at a frame boundary returns io.EOF. A peer that
// disappears mid-frame returns a transport error. A frame that does
// not parse returns an error wrapping ErrCorruptMessage — the stream
// cannot be resynchronized after that. After Close, Receive returns
// ErrChannelClosed.
func (c *Channel) Receive(ctx context.Context) (Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.Closed() {
		return Message{}, ErrChannelClosed
	}

	restore := expireOnDone(ctx, c.conn.SetReadDeadline)
	defer restore()

	encodedHeader, payload, err := ReadFrame(c.conn)
	if err != nil {
		if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, io.EOF
		}
		if errors.Is(err, ErrCorruptMessage) {
			return Message{}, err
		}
		return Message{}, c.transportError(ctx, err)
	}

	header, err := DecodeMessageHeader(encodedHeader)
	if err != nil {
		return Message{}, err
	}
	return Message{Header: header, Payload: payload}, nil
}

// expireOnDone arranges for setDeadline to be expired when ctx is
// done, interrupting a blocked read or write. The returned restore
// function must be called once the guarded operation completes; if
// the expiry fired, restore waits for it and clears the deadline so
// the next operation on the connection is not poisoned by it.
func expireOnDone(ctx context.Context, setDeadline func(time.Time) error) (restore func()) {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		setDeadline(time.Now())
		close(fired)
	})
	return func() {
		if !stop() {
			<-fired
			setDeadline(time.Time{})
		}
	}
}

// transportError maps a failed read or write to the most useful error
// for the caller: the context error when cancellation expired the
// deadline, ErrChannelClosed when Close raced the operation, and the
// transport error itself otherwise.
func (c *Channel) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return ctx.Err()
	}
	if c.Closed() {
		return ErrChannelClosed
	}
	return err
}

// Close closes the channel's connection, unblocking any pending Send
// or Receive. Close is idempotent; calls after the first return nil.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Closed reports whether Close has been called on this endpoint. It
// says nothing about the peer; peer departure surfaces as io.EOF from
// Receive.
func (c *Channel) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
