// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chorus-rtc/chorus/lib/netutil"
)

// Uploader is the capture-process side of a broadcast pair. It turns
// captured frames into wire messages: video through a single-slot
// in-flight gate, audio synchronously and only once the receiving
// process has asked for it.
//
// The uploader owns the channel's read side (it consumes the peer's
// capability messages) and shares the write side between video and
// audio sends; the channel serializes those writes.
type Uploader struct {
	channel *Channel
	video   VideoCodec
	audio   AudioCodec
	logger  *slog.Logger

	// videoInFlight is the single-slot gate for video uploads: a
	// frame arriving while the previous one is still being written
	// is dropped rather than queued. Capture produces frames faster
	// than a loaded socket drains them; queueing would grow latency
	// without bound, and a dropped screen frame is invisible next to
	// a stale one.
	videoInFlight atomic.Bool

	// audioEnabled mirrors the peer's most recent capability flag.
	audioEnabled atomic.Bool

	// done is closed when the capability loop exits.
	done chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewUploader wraps a connected channel. The video codec is required;
// audio may be nil when the capturer never produces audio. The logger
// may be nil, in which case slog.Default() is used.
//
// The uploader starts a goroutine consuming the peer's capability
// messages; Close stops it.
func NewUploader(channel *Channel, video VideoCodec, audio AudioCodec, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Uploader{
		channel: channel,
		video:   video,
		audio:   audio,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go u.capabilityLoop()
	return u
}

// capabilityLoop consumes inbound messages and tracks the peer's
// audio capability flag. Runs until the channel closes or fails.
func (u *Uploader) capabilityLoop() {
	defer close(u.done)
	for {
		message, err := u.channel.Receive(context.Background())
		if err != nil {
			if !errors.Is(err, ErrChannelClosed) && !netutil.IsExpectedCloseError(err) {
				u.logger.Debug("capability loop ended", "error", err)
			}
			return
		}

		header, ok := message.Header.(*CapabilityHeader)
		if !ok {
			// Media never flows toward the uploader.
			u.logger.Debug("ignoring unexpected inbound message", "kind", message.Header.Kind())
			continue
		}
		u.audioEnabled.Store(header.Audio)
		u.logger.Debug("peer audio capability updated", "enabled", header.Audio)
	}
}

// SendVideoFrame encodes and sends one video frame. At most one video
// send is in flight at a time: a frame arriving while the previous
// one is still being written is dropped, and SendVideoFrame reports
// false with no error. Encoding failures are returned synchronously.
// The write itself happens on a background goroutine; a transport
// failure there is logged, and the in-flight slot is released on
// every path.
func (u *Uploader) SendVideoFrame(ctx context.Context, frame *VideoFrame) (bool, error) {
	if !u.videoInFlight.CompareAndSwap(false, true) {
		return false, nil
	}

	header, payload, err := u.video.EncodeVideo(frame)
	if err != nil {
		u.videoInFlight.Store(false)
		return false, fmt.Errorf("encoding video frame: %w", err)
	}

	go func() {
		defer u.videoInFlight.Store(false)
		if err := u.channel.Send(ctx, &header, payload); err != nil {
			if errors.Is(err, ErrChannelClosed) || errors.Is(err, context.Canceled) ||
				netutil.IsExpectedCloseError(err) {
				u.logger.Debug("video frame send aborted", "error", err)
				return
			}
			u.logger.Warn("video frame send failed", "error", err)
		}
	}()
	return true, nil
}

// SendAudioFrame encodes and sends one audio frame synchronously.
// Frames are dropped — reported as false with no error — until the
// peer enables audio via its capability flag. There is no in-flight
// gate: audio frames are small and gaps are audible, so they are
// written back to back and failures propagate to the caller.
func (u *Uploader) SendAudioFrame(ctx context.Context, frame *AudioFrame) (bool, error) {
	if u.audio == nil {
		return false, errors.New("broadcast: uploader has no audio codec")
	}
	if !u.audioEnabled.Load() {
		return false, nil
	}

	header, payload, err := u.audio.EncodeAudio(frame)
	if err != nil {
		return false, fmt.Errorf("encoding audio frame: %w", err)
	}
	if err := u.channel.Send(ctx, &header, payload); err != nil {
		return false, fmt.Errorf("sending audio frame: %w", err)
	}
	return true, nil
}

// AudioEnabled reports whether the peer currently wants audio frames.
func (u *Uploader) AudioEnabled() bool {
	return u.audioEnabled.Load()
}

// Done returns a channel that is closed when the uploader stops
// consuming peer messages: after Close, or once the peer goes away or
// the transport fails. The capture side watches it to stop producing
// frames for a receiver that is gone.
func (u *Uploader) Done() <-chan struct{} {
	return u.done
}

// Close closes the underlying channel and waits for the capability
// loop to exit. Idempotent; calls after the first return nil.
func (u *Uploader) Close() error {
	u.closeOnce.Do(func() {
		u.closeErr = u.channel.Close()
		<-u.done
	})
	return u.closeErr
}
