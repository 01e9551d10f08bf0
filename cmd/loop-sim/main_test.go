// Copyright 2024 Matrix Origin
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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/config"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/logutil"
)

const smallConfig = `
[log]
level = "warn"

[audio-pool]
sliver-size = 2
buffer-slivers = 64
initial-count = 2

[video-pool]
sliver-size = 16
buffer-slivers = 4

[stream]
max-buffered-samples = 4096
max-buffered-frames = 8

[sim]
tracks = 3
sample-rate = 1000
chunk-slivers = 37
loop-seconds = 0.3333
frame-period = 50
iterations = 4
`

func TestSimulatorRun(t *testing.T) {
	for _, policy := range []string{"continuous", "simple"} {
		cfg, err := config.Parse(smallConfig)
		require.NoError(t, err)
		cfg.Stream.LoopPolicy = policy

		sim := newSimulator(cfg, zap.NewNop())
		require.NoError(t, sim.run(), policy)
		require.True(t, sim.audio.Outstanding().IsEmpty())
		require.True(t, sim.video.Outstanding().IsEmpty())
		require.Equal(t, sim.audio.TotalBufferCount(), sim.audio.FreeBufferCount())
		sim.close()
	}
}

func TestPlayTrackChecksIterations(t *testing.T) {
	cfg, err := config.Parse(smallConfig)
	require.NoError(t, err)
	sim := newSimulator(cfg, zap.NewNop())
	defer sim.close()

	// 333.3 samples loop in runs of 333 and 334
	require.NoError(t, sim.runTrack(0))
	continuous, discrete := sim.loopLength()
	require.InDelta(t, 333.3, continuous.Float(), 1e-9)
	require.Equal(t, int64(334), int64(discrete))
}

func TestConfigCommand(t *testing.T) {
	var out bytes.Buffer
	root := rootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"config"})
	require.NoError(t, root.Execute())

	c, err := config.Parse(out.String())
	require.NoError(t, err)
	require.Equal(t, config.Default(), c)
}

func TestRunCommand(t *testing.T) {
	defer logutil.SetupMOLogger(&logutil.LogConfig{Level: "info", Format: "console"})

	path := filepath.Join(t.TempDir(), "sim.toml")
	require.NoError(t, os.WriteFile(path, []byte(smallConfig), 0o644))

	root := rootCommand()
	root.SetArgs([]string{"run", "--config", path, "--tracks", "2", "--iterations", "2"})
	require.NoError(t, root.Execute())

	root = rootCommand()
	root.SetArgs([]string{"run", "--config", filepath.Join(t.TempDir(), "missing.toml")})
	require.Error(t, root.Execute())

	root = rootCommand()
	root.SetArgs([]string{"run", "extra"})
	require.Error(t, root.Execute())
}
