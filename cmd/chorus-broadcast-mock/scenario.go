// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chorus-rtc/chorus/broadcast"
)

// Scenario is the scripted playback a mock run performs. Video and
// audio play concurrently, each on its own interval, the way a real
// capturer delivers the two tracks.
type Scenario struct {
	// Video describes the synthetic video track.
	Video VideoScenario `yaml:"video"`

	// Audio describes the synthetic audio track. Disabled by default.
	Audio AudioScenario `yaml:"audio"`

	// Compression is the payload compression to use: "none", "lz4",
	// or "zstd". Defaults to "none".
	Compression string `yaml:"compression"`
}

// VideoScenario describes the synthetic video track.
type VideoScenario struct {
	// Frames is the number of frames to send. Zero sends no video.
	Frames int `yaml:"frames"`

	// Width and Height are the frame dimensions in pixels.
	// Default to 640x360.
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`

	// Interval is the delay between frames as a Go duration string.
	// Defaults to "33ms" (roughly 30fps).
	Interval string `yaml:"interval"`

	// Rotation is the clockwise rotation in degrees carried on every
	// frame: 0, 90, 180, or 270.
	Rotation uint16 `yaml:"rotation"`
}

// AudioScenario describes the synthetic audio track.
type AudioScenario struct {
	// Enabled turns the audio track on. Even when enabled, blocks are
	// only delivered once the receiver grants the audio capability.
	Enabled bool `yaml:"enabled"`

	// SampleRate is the sample rate in hertz. Defaults to 48000.
	SampleRate uint32 `yaml:"sample_rate"`

	// Channels is the interleaved channel count. Defaults to 2.
	Channels uint16 `yaml:"channels"`

	// Blocks is the number of audio blocks to send.
	Blocks int `yaml:"blocks"`

	// SamplesPerBlock is the per-channel sample count of each block.
	// Defaults to 960 (20ms at 48kHz).
	SamplesPerBlock int `yaml:"samples_per_block"`

	// Interval is the delay between blocks as a Go duration string.
	// Defaults to "20ms".
	Interval string `yaml:"interval"`
}

// LoadScenario loads a scenario from a YAML file and applies defaults.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}

	if scenario.Compression == "" {
		scenario.Compression = "none"
	}
	if scenario.Video.Width == 0 {
		scenario.Video.Width = 640
	}
	if scenario.Video.Height == 0 {
		scenario.Video.Height = 360
	}
	if scenario.Video.Interval == "" {
		scenario.Video.Interval = "33ms"
	}
	if scenario.Audio.SampleRate == 0 {
		scenario.Audio.SampleRate = 48000
	}
	if scenario.Audio.Channels == 0 {
		scenario.Audio.Channels = 2
	}
	if scenario.Audio.SamplesPerBlock == 0 {
		scenario.Audio.SamplesPerBlock = 960
	}
	if scenario.Audio.Interval == "" {
		scenario.Audio.Interval = "20ms"
	}

	return &scenario, nil
}

// Validate checks that the scenario is playable.
func (s *Scenario) Validate() error {
	if _, err := broadcast.ParseCompressionTag(s.Compression); err != nil {
		return err
	}

	if s.Video.Frames < 0 {
		return fmt.Errorf("video: frames must not be negative")
	}
	if s.Video.Frames == 0 && !s.Audio.Enabled {
		return fmt.Errorf("scenario sends nothing: no video frames and audio is disabled")
	}
	if !broadcast.VideoRotation(s.Video.Rotation).Valid() {
		return fmt.Errorf("video: rotation %d is not one of 0, 90, 180, 270", s.Video.Rotation)
	}
	if interval, err := time.ParseDuration(s.Video.Interval); err != nil {
		return fmt.Errorf("video: invalid interval: %w", err)
	} else if interval <= 0 {
		return fmt.Errorf("video: interval must be positive")
	}

	if s.Audio.Enabled {
		if s.Audio.Blocks <= 0 {
			return fmt.Errorf("audio: blocks must be positive when audio is enabled")
		}
		if interval, err := time.ParseDuration(s.Audio.Interval); err != nil {
			return fmt.Errorf("audio: invalid interval: %w", err)
		} else if interval <= 0 {
			return fmt.Errorf("audio: interval must be positive")
		}
	}

	return nil
}

// frame builds the synthetic video frame at the given index. The pixel
// gradient shifts by one byte per frame so a receiver can tell
// consecutive frames apart.
func (v VideoScenario) frame(index int) *broadcast.VideoFrame {
	data := make([]byte, int(v.Width)*int(v.Height)*4)
	for i := range data {
		data[i] = byte(i + index)
	}
	return &broadcast.VideoFrame{
		Width:     v.Width,
		Height:    v.Height,
		Rotation:  broadcast.VideoRotation(v.Rotation),
		Data:      data,
		Timestamp: time.Now(),
	}
}

// block builds the synthetic audio block at the given index: a quiet
// sawtooth whose phase advances with the index, so silence-detecting
// receivers still see signal.
func (a AudioScenario) block(index int) *broadcast.AudioFrame {
	data := make([]byte, a.SamplesPerBlock*2*int(a.Channels))
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], uint16((i/2+index*a.SamplesPerBlock)%4096))
	}
	return &broadcast.AudioFrame{
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		Data:       data,
		Timestamp:  time.Now(),
	}
}
