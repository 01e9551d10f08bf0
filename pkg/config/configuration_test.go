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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/stream"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	c, err := Parse("")
	require.NoError(t, err)
	require.Equal(t, Default(), c)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 2*4096, c.AudioPool.BufferLength())
	assert.Equal(t, stream.LoopContinuous, c.LoopPolicy())
	assert.InDelta(t, 118710.24, c.Sim.LoopSamples(), 1e-6)
}

func TestParseOverrides(t *testing.T) {
	c, err := Parse(`
[log]
level = "debug"
format = "json"

[audio-pool]
sliver-size = 1
buffer-slivers = 256
mmap = true

[stream]
loop-policy = "simple"
max-buffered-samples = 1000000

[sim]
tracks = 2
loop-seconds = 0.5
`)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, 256, c.AudioPool.BufferLength())
	assert.True(t, c.AudioPool.Mmap)
	assert.Equal(t, defaultAudioInitialCount, c.AudioPool.InitialCount)
	assert.Equal(t, stream.LoopSimple, c.LoopPolicy())
	assert.Equal(t, int64(1000000), c.Stream.MaxBufferedSamples)
	assert.Equal(t, 2, c.Sim.Tracks)
	assert.Equal(t, defaultSampleRate, c.Sim.SampleRate)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := Default()
	c.Log.Format = "xml"
	c.Log.Level = "loud"
	c.AudioPool.SliverSize = -1
	c.VideoPool.InitialCount = -2
	c.Stream.LoopPolicy = "pingpong"
	c.Sim.Iterations = -1

	err := c.Validate()
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
	for _, want := range []string{"log.format", "log.level", "audio-pool.sliver-size", "video-pool.initial-count", "loop-policy", "sim.iterations"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateLoopFitsBuffer(t *testing.T) {
	c := Default()
	c.Stream.MaxBufferedSamples = 1000
	err := c.Validate()
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
	require.Contains(t, err.Error(), "max-buffered-samples")
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("[sim\ntracks = 1")
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))

	_, err = Parse("[sim]\nvoices = 3\n")
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
	require.Contains(t, err.Error(), "sim.voices")

	_, err = Parse("[sim]\ntracks = -3\n")
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
}

func TestLoadAndEncode(t *testing.T) {
	c := Default()
	c.Sim.Tracks = 7
	c.VideoPool.Mmap = true

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))
	path := filepath.Join(t.TempDir(), "loop-sim.toml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, c, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
}
