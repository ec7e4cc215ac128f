// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Chorus-broadcast-mock is a stand-in for the capture extension in
// integration tests. It connects to a broadcast socket as the sending
// side and plays a scripted sequence of synthetic video frames and
// audio blocks from a YAML scenario file.
//
// Video frames are offered through the uploader's in-flight gate, so a
// slow receiver drops frames here exactly as it would with a real
// capturer; drops are logged and counted. Audio blocks are only
// delivered once the receiver grants the audio capability.
//
// Exit status is zero when the scenario completes or the run is
// interrupted by SIGINT/SIGTERM, and non-zero when the transport fails
// or the receiver goes away mid-scenario.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/chorus-rtc/chorus/broadcast"
	"github.com/chorus-rtc/chorus/lib/process"
	"github.com/chorus-rtc/chorus/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		socketPath   string
		scenarioPath string
		logLevel     string
		showVersion  bool
	)

	flagSet := pflag.NewFlagSet("chorus-broadcast-mock", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", "", "path to the broadcast unix socket (required)")
	flagSet.StringVar(&scenarioPath, "scenario", "", "path to the scenario YAML file (required)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		version.Print("chorus-broadcast-mock")
		return nil
	}

	if socketPath == "" {
		return fmt.Errorf("--socket is required")
	}
	if scenarioPath == "" {
		return fmt.Errorf("--scenario is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	scenario, err := LoadScenario(scenarioPath)
	if err != nil {
		return err
	}
	if err := scenario.Validate(); err != nil {
		return fmt.Errorf("invalid scenario %s: %w", scenarioPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("chorus-broadcast-mock starting",
		"version", version.Short(),
		"commit", version.Commit(),
		"socket", socketPath,
		"scenario", scenarioPath,
	)

	return play(ctx, scenario, socketPath, logger)
}

// play connects to the broadcast socket and runs the video and audio
// tracks concurrently until both finish or the transport fails.
func play(ctx context.Context, scenario *Scenario, socketPath string, logger *slog.Logger) error {
	compression, err := broadcast.ParseCompressionTag(scenario.Compression)
	if err != nil {
		return err
	}
	frameCodec := &broadcast.RawFrameCodec{Compression: compression}

	channel, err := broadcast.Connect(ctx, socketPath, logger)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", socketPath, err)
	}

	uploader := broadcast.NewUploader(channel, frameCodec, frameCodec, logger)
	defer uploader.Close()

	videoDone := make(chan error, 1)
	go func() {
		videoDone <- playVideo(ctx, uploader, scenario.Video, logger)
	}()

	audioDone := make(chan error, 1)
	go func() {
		audioDone <- playAudio(ctx, uploader, scenario.Audio, logger)
	}()

	videoErr := <-videoDone
	audioErr := <-audioDone

	if ctx.Err() != nil {
		logger.Info("scenario interrupted")
		return nil
	}
	if videoErr != nil {
		return videoErr
	}
	return audioErr
}

// playVideo sends the scenario's video frames on their interval. A
// frame refused by the uploader's in-flight gate is a drop, not an
// error. Video writes happen on the uploader's background goroutine,
// so a dead transport surfaces here through the uploader's Done
// channel rather than through SendVideoFrame.
func playVideo(ctx context.Context, uploader *broadcast.Uploader, scenario VideoScenario, logger *slog.Logger) error {
	if scenario.Frames == 0 {
		return nil
	}

	interval, err := time.ParseDuration(scenario.Interval)
	if err != nil {
		return fmt.Errorf("parsing video interval: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent, dropped int
	for index := 0; index < scenario.Frames; index++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-uploader.Done():
			return fmt.Errorf("receiver went away after %d of %d video frames", index, scenario.Frames)
		case <-ticker.C:
		}

		accepted, err := uploader.SendVideoFrame(ctx, scenario.frame(index))
		if err != nil {
			return fmt.Errorf("sending video frame %d: %w", index, err)
		}
		if accepted {
			sent++
		} else {
			dropped++
			logger.Debug("video frame dropped", "frame", index)
		}
	}

	logger.Info("video track complete", "sent", sent, "dropped", dropped)
	return nil
}

// playAudio sends the scenario's audio blocks on their interval. Blocks
// offered before the receiver grants the audio capability are skipped,
// matching how a real capturer discards audio it may not send.
func playAudio(ctx context.Context, uploader *broadcast.Uploader, scenario AudioScenario, logger *slog.Logger) error {
	if !scenario.Enabled {
		return nil
	}

	interval, err := time.ParseDuration(scenario.Interval)
	if err != nil {
		return fmt.Errorf("parsing audio interval: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent, skipped int
	for index := 0; index < scenario.Blocks; index++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-uploader.Done():
			return fmt.Errorf("receiver went away after %d of %d audio blocks", index, scenario.Blocks)
		case <-ticker.C:
		}

		delivered, err := uploader.SendAudioFrame(ctx, scenario.block(index))
		if err != nil {
			return fmt.Errorf("sending audio block %d: %w", index, err)
		}
		if delivered {
			sent++
		} else {
			skipped++
			logger.Debug("audio block skipped: capability not granted", "block", index)
		}
	}

	logger.Info("audio track complete", "sent", sent, "skipped", skipped)
	return nil
}
