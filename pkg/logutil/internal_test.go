// Copyright 2022 Matrix Origin
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

package logutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
)

var testStreamID = uuid.MustParse("6f1c2a8e-7b3d-4e59-9a10-2c4b8d7e5f31")

func restoreGlobalLogger(t *testing.T) {
	t.Cleanup(func() {
		SetupMOLogger(&LogConfig{Level: zapcore.InfoLevel.String(), Format: "console"})
	})
}

func TestLogConfigLevels(t *testing.T) {
	cases := []struct {
		level      string
		stacktrace string
		wantLevel  zapcore.Level
		wantStack  zapcore.Level
	}{
		{"debug", "", zapcore.DebugLevel, zapcore.FatalLevel},
		{"info", "error", zapcore.InfoLevel, zapcore.ErrorLevel},
		{"WARN", "panic", zapcore.WarnLevel, zapcore.PanicLevel},
	}
	for _, c := range cases {
		cfg := &LogConfig{Level: c.level, StacktraceLevel: c.stacktrace}
		require.Equal(t, c.wantLevel, cfg.getLevel().Level(), c.level)
		require.Equal(t, c.wantStack, cfg.getStacktraceLevel(), c.stacktrace)
		require.Len(t, cfg.getOptions(), 2)
	}

	require.Panics(t, func() { (&LogConfig{Level: "loud"}).getLevel() })
	require.Panics(t, func() { (&LogConfig{StacktraceLevel: "never"}).getStacktraceLevel() })
}

func TestConsoleSinks(t *testing.T) {
	for _, name := range []string{"", "console"} {
		cfg := &LogConfig{Level: "info", Format: "console", Filename: name}
		require.Equal(t, getConsoleSyncer(), cfg.getSyncer())
		sinks := cfg.getSinks()
		require.Len(t, sinks, 1)
		require.NotNil(t, sinks[0].enc)
		// console output never picks up a rotation size
		require.Zero(t, cfg.MaxSize)
	}
}

func TestSetupMOLogger(t *testing.T) {
	defer leaktest.AfterTest(t)()
	restoreGlobalLogger(t)

	for _, format := range []string{"console", "json", ""} {
		SetupMOLogger(&LogConfig{Level: "warn", Format: format})
		logger := GetGlobalLogger()
		require.True(t, logger.Core().Enabled(zapcore.WarnLevel), format)
		require.False(t, logger.Core().Enabled(zapcore.InfoLevel), format)
	}
}

func TestSetupMOLoggerFileSink(t *testing.T) {
	restoreGlobalLogger(t)
	filename := filepath.Join(t.TempDir(), "loop-sim.log")
	cfg := &LogConfig{
		Level:    zapcore.InfoLevel.String(),
		Format:   "json",
		Filename: filename,
	}
	SetupMOLogger(cfg)
	// lumberjack rotates at 512 MB unless told otherwise
	require.Equal(t, 512, cfg.MaxSize)

	Info("track looped", StreamField(testStreamID), zap.Int("slices", 3))
	Debug("below the configured level")
	LogClose()

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "INFO", entry["level"])
	require.Equal(t, "track looped", entry["msg"])
	require.Equal(t, testStreamID.String(), entry["stream"])
	require.Equal(t, float64(3), entry["slices"])
	require.Contains(t, entry["caller"], "internal_test.go")
}

func TestSetupMOLoggerPanics(t *testing.T) {
	defer leaktest.AfterTest(t)()
	restoreGlobalLogger(t)

	cases := []struct {
		name string
		conf *LogConfig
		want any
	}{
		{
			name: "format",
			conf: &LogConfig{Level: "debug", Format: "xml"},
			want: moerr.NewInternalErrorNoCtx("unsupported log format: %s", "xml"),
		},
		{
			name: "directory",
			conf: &LogConfig{Level: "debug", Format: "json", Filename: t.TempDir()},
			want: "log file can't be a directory",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			defer func() {
				err := recover()
				require.NotNil(t, err, "no panic")
				require.Equal(t, c.want, err)
			}()
			SetupMOLogger(c.conf)
		})
	}
}

func TestLoggerEncoder(t *testing.T) {
	entry := zapcore.Entry{
		Level:      zapcore.DebugLevel,
		Time:       time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
		LoggerName: "stream",
		Message:    "slice appended",
	}
	fields := []zap.Field{StreamField(testStreamID)}

	cases := []struct {
		format string
		want   *regexp.Regexp
	}{
		{
			format: "console",
			want: regexp.MustCompile(`^2026/10/16 12:00:00\.000000 \+0000\tDEBUG\tstream\tslice appended\t` +
				`\{"stream": ?"` + testStreamID.String() + `"\}`),
		},
		{
			format: "json",
			want: regexp.MustCompile(`^\{"level":"DEBUG","time":"2026/10/16 12:00:00\.000000 \+0000",` +
				`"name":"stream","msg":"slice appended","stream":"` + testStreamID.String() + `"\}`),
		},
	}
	for _, c := range cases {
		t.Run(c.format, func(t *testing.T) {
			buf, err := getLoggerEncoder(c.format).EncodeEntry(entry, fields)
			require.NoError(t, err)
			require.Regexp(t, c.want, buf.String())
		})
	}
}

func TestChildLoggers(t *testing.T) {
	var out bytes.Buffer
	logger := GetLoggerWithOptions(zap.NewAtomicLevelAt(zapcore.DebugLevel),
		getLoggerEncoder("json"), zapcore.AddSync(&out))

	logger.Named("stream").With(zap.String("kind", "dense"), StreamField(testStreamID)).
		Debug("trimmed", zap.Int64("dropped", 15))
	logger.Named("bufpool").With(PoolField("audio")).Info("buffer allocated")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var stream, pool map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &stream))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &pool))

	require.Equal(t, "stream", stream["name"])
	require.Equal(t, "dense", stream["kind"])
	require.Equal(t, testStreamID.String(), stream["stream"])
	require.Equal(t, float64(15), stream["dropped"])

	require.Equal(t, "bufpool", pool["name"])
	require.Equal(t, "audio", pool["pool"])
	require.NotContains(t, pool, "stream")
}
