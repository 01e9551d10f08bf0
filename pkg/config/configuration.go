// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/logutil"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/stream"
)

const (
	defaultAudioSliverSize    = 2
	defaultAudioBufferSlivers = 4096
	defaultAudioInitialCount  = 16

	defaultVideoSliverSize    = 32 * 32
	defaultVideoBufferSlivers = 16
	defaultVideoInitialCount  = 4

	defaultMaxBufferedSamples = 48000 * 60
	defaultMaxBufferedFrames  = 30 * 60
	defaultLoopPolicy         = "continuous"

	defaultTracks       = 4
	defaultSampleRate   = 48000
	defaultChunkSlivers = 512
	defaultLoopSeconds  = 2.47313
	defaultFramePeriod  = 1600
	defaultIterations   = 3
)

// Config is the configuration of the loop engine and its simulator.
type Config struct {
	Log       logutil.LogConfig `toml:"log"`
	AudioPool PoolConfig        `toml:"audio-pool"`
	VideoPool PoolConfig        `toml:"video-pool"`
	Stream    StreamConfig      `toml:"stream"`
	Sim       SimConfig         `toml:"sim"`
}

// PoolConfig sizes one buffer pool.
type PoolConfig struct {
	// SliverSize is the number of elements in one sample or frame.
	SliverSize int `toml:"sliver-size"`
	// BufferSlivers is the number of slivers in each pooled buffer.
	BufferSlivers int `toml:"buffer-slivers"`
	// InitialCount buffers are allocated up front.
	InitialCount int  `toml:"initial-count"`
	Mmap         bool `toml:"mmap"`
}

func (p PoolConfig) BufferLength() int {
	return p.SliverSize * p.BufferSlivers
}

type StreamConfig struct {
	// MaxBufferedSamples caps each audio stream, zero means unbounded.
	MaxBufferedSamples int64 `toml:"max-buffered-samples"`
	// MaxBufferedFrames caps each video stream, zero means unbounded.
	MaxBufferedFrames int `toml:"max-buffered-frames"`
	// LoopPolicy is "continuous" or "simple".
	LoopPolicy string `toml:"loop-policy"`
}

// SimConfig drives cmd/loop-sim.
type SimConfig struct {
	Tracks       int `toml:"tracks"`
	SampleRate   int `toml:"sample-rate"`
	ChunkSlivers int `toml:"chunk-slivers"`
	// LoopSeconds may be fractional in samples, which exercises continuous
	// looping.
	LoopSeconds float64 `toml:"loop-seconds"`
	// FramePeriod is the number of samples between video frames.
	FramePeriod int `toml:"frame-period"`
	Iterations  int `toml:"iterations"`
}

// LoopSamples is the continuous loop length in samples.
func (s SimConfig) LoopSamples() float64 {
	return s.LoopSeconds * float64(s.SampleRate)
}

// Default returns a validated default configuration.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	c.AudioPool.setDefaults(defaultAudioSliverSize, defaultAudioBufferSlivers, defaultAudioInitialCount)
	c.VideoPool.setDefaults(defaultVideoSliverSize, defaultVideoBufferSlivers, defaultVideoInitialCount)
	if c.Stream.MaxBufferedSamples == 0 {
		c.Stream.MaxBufferedSamples = defaultMaxBufferedSamples
	}
	if c.Stream.MaxBufferedFrames == 0 {
		c.Stream.MaxBufferedFrames = defaultMaxBufferedFrames
	}
	if c.Stream.LoopPolicy == "" {
		c.Stream.LoopPolicy = defaultLoopPolicy
	}
	if c.Sim.Tracks == 0 {
		c.Sim.Tracks = defaultTracks
	}
	if c.Sim.SampleRate == 0 {
		c.Sim.SampleRate = defaultSampleRate
	}
	if c.Sim.ChunkSlivers == 0 {
		c.Sim.ChunkSlivers = defaultChunkSlivers
	}
	if c.Sim.LoopSeconds == 0 {
		c.Sim.LoopSeconds = defaultLoopSeconds
	}
	if c.Sim.FramePeriod == 0 {
		c.Sim.FramePeriod = defaultFramePeriod
	}
	if c.Sim.Iterations == 0 {
		c.Sim.Iterations = defaultIterations
	}
}

func (p *PoolConfig) setDefaults(sliverSize, bufferSlivers, initialCount int) {
	if p.SliverSize == 0 {
		p.SliverSize = sliverSize
	}
	if p.BufferSlivers == 0 {
		p.BufferSlivers = bufferSlivers
	}
	if p.InitialCount == 0 {
		p.InitialCount = initialCount
	}
}

func (p PoolConfig) validate(name string) (err error) {
	if p.SliverSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.sliver-size must be positive, got %d", name, p.SliverSize))
	}
	if p.BufferSlivers <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.buffer-slivers must be positive, got %d", name, p.BufferSlivers))
	}
	if p.InitialCount < 0 {
		err = multierr.Append(err, fmt.Errorf("%s.initial-count must not be negative, got %d", name, p.InitialCount))
	}
	return err
}

// Validate reports every problem at once as a single bad config error.
func (c *Config) Validate() error {
	var err error
	switch c.Log.Format {
	case "", "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format %q is not console or json", c.Log.Format))
	}
	var level zapcore.Level
	if lerr := level.UnmarshalText([]byte(c.Log.Level)); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %v", lerr))
	}
	err = multierr.Append(err, c.AudioPool.validate("audio-pool"))
	err = multierr.Append(err, c.VideoPool.validate("video-pool"))
	if c.Stream.MaxBufferedSamples < 0 {
		err = multierr.Append(err, fmt.Errorf("stream.max-buffered-samples must not be negative"))
	}
	if c.Stream.MaxBufferedFrames < 0 {
		err = multierr.Append(err, fmt.Errorf("stream.max-buffered-frames must not be negative"))
	}
	if _, perr := stream.ParseLoopPolicy(c.Stream.LoopPolicy); perr != nil {
		err = multierr.Append(err, fmt.Errorf("stream.loop-policy %q is not continuous or simple", c.Stream.LoopPolicy))
	}
	if c.Sim.Tracks <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim.tracks must be positive"))
	}
	if c.Sim.SampleRate <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim.sample-rate must be positive"))
	}
	if c.Sim.ChunkSlivers <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim.chunk-slivers must be positive"))
	}
	if c.Sim.LoopSeconds <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim.loop-seconds must be positive"))
	} else if c.Stream.MaxBufferedSamples > 0 && c.Sim.LoopSamples() > float64(c.Stream.MaxBufferedSamples) {
		err = multierr.Append(err, fmt.Errorf("sim.loop-seconds %g exceeds stream.max-buffered-samples %d",
			c.Sim.LoopSeconds, c.Stream.MaxBufferedSamples))
	}
	if c.Sim.FramePeriod <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim.frame-period must be positive"))
	}
	if c.Sim.Iterations <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim.iterations must be positive"))
	}
	if err != nil {
		return moerr.NewBadConfigNoCtx("%v", err)
	}
	return nil
}

// LoopPolicy returns the configured loop policy. It assumes Validate passed.
func (c *Config) LoopPolicy() stream.LoopPolicy {
	p, _ := stream.ParseLoopPolicy(c.Stream.LoopPolicy)
	return p
}

// Load reads, defaults and validates the TOML file at path.
func Load(path string) (*Config, error) {
	c := &Config{}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, moerr.NewBadConfigNoCtx("decode %s: %v", path, err)
	}
	return finish(c, md)
}

// Parse decodes, defaults and validates a TOML document.
func Parse(data string) (*Config, error) {
	c := &Config{}
	md, err := toml.Decode(data, c)
	if err != nil {
		return nil, moerr.NewBadConfigNoCtx("decode: %v", err)
	}
	return finish(c, md)
}

func finish(c *Config, md toml.MetaData) (*Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, moerr.NewBadConfigNoCtx("unknown keys %s", strings.Join(keys, ", "))
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
