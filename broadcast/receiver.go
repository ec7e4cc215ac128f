// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Receiver is the app-process side of a broadcast pair. It pulls wire
// messages off the channel, decodes them, and hands back frames one
// at a time.
//
// A decode failure is terminal: once the byte stream stops parsing
// the receiver cannot trust any later frame boundary, so the error is
// latched and every subsequent Next call returns it. Transport-level
// errors (io.EOF on orderly shutdown, context cancellation) are not
// latched; a cancelled Next may be retried.
type Receiver struct {
	channel *Channel
	video   VideoCodec
	audio   AudioCodec
	logger  *slog.Logger

	mu     sync.Mutex
	failed error
}

// NewReceiver wraps a connected channel. The video codec is required;
// audio may be nil, in which case inbound audio frames are dropped.
// The logger may be nil, in which case slog.Default() is used.
func NewReceiver(channel *Channel, video VideoCodec, audio AudioCodec, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		channel: channel,
		video:   video,
		audio:   audio,
		logger:  logger,
	}
}

// Next returns the next decoded frame, blocking until one arrives,
// the context is cancelled, or the channel ends. It returns io.EOF
// when the uploader closed the connection cleanly. Calls are
// serialized; frames are delivered in arrival order.
func (r *Receiver) Next(ctx context.Context) (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failed != nil {
		return nil, r.failed
	}

	for {
		message, err := r.channel.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrCorruptMessage) {
				r.failed = err
			}
			return nil, err
		}

		switch header := message.Header.(type) {
		case *VideoFrameHeader:
			frame, err := r.video.DecodeVideo(*header, message.Payload)
			if err != nil {
				r.failed = fmt.Errorf("decoding video frame: %w", err)
				return nil, r.failed
			}
			return frame, nil

		case *AudioFrameHeader:
			if r.audio == nil {
				r.logger.Debug("dropping audio frame: no audio codec")
				continue
			}
			frame, err := r.audio.DecodeAudio(*header, message.Payload)
			if err != nil {
				r.failed = fmt.Errorf("decoding audio frame: %w", err)
				return nil, r.failed
			}
			return frame, nil

		case *CapabilityHeader:
			// Capability flags flow receiver to uploader; one
			// arriving here is harmless.
			r.logger.Debug("ignoring inbound capability message")
			continue
		}
	}
}

// SetAudioEnabled tells the uploader whether to send audio frames.
// The flag may be flipped at any time; it applies to frames the
// uploader captures after the message arrives. Enabling audio on a
// receiver without an audio codec is rejected.
func (r *Receiver) SetAudioEnabled(ctx context.Context, enabled bool) error {
	if enabled && r.audio == nil {
		return errors.New("broadcast: receiver has no audio codec")
	}
	if err := r.channel.Send(ctx, &CapabilityHeader{Audio: enabled}, nil); err != nil {
		return fmt.Errorf("sending capability: %w", err)
	}
	return nil
}

// Close closes the underlying channel. Idempotent.
func (r *Receiver) Close() error {
	return r.channel.Close()
}
