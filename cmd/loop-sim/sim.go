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
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/bufpool"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/config"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/holotime"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/logutil"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/stream"
	v2 "github.com/RobJellinghaus/Holofunk-sub000/pkg/util/metric/v2"
)

type sample = holotime.AudioSample

// simulator records every track and the video stream at once, then plays
// each loop back and checks what comes out.
type simulator struct {
	cfg    *config.Config
	logger *zap.Logger
	audio  *bufpool.BufferAllocator[float32]
	video  *bufpool.BufferAllocator[byte]
}

func newSimulator(cfg *config.Config, logger *zap.Logger) *simulator {
	return &simulator{
		cfg:    cfg,
		logger: logger.Named("loop-sim"),
		audio:  newPool[float32]("audio", cfg.AudioPool, logger),
		video:  newPool[byte]("video", cfg.VideoPool, logger),
	}
}

func newPool[T any](name string, c config.PoolConfig, logger *zap.Logger) *bufpool.BufferAllocator[T] {
	opts := []bufpool.Option{bufpool.WithName(name), bufpool.WithLogger(logger)}
	if c.Mmap {
		opts = append(opts, bufpool.WithMmap())
	}
	return bufpool.NewBufferAllocator[T](c.BufferLength(), c.InitialCount, opts...)
}

func (s *simulator) close() {
	s.audio.Close()
	s.video.Close()
}

func (s *simulator) run() error {
	start := time.Now()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	report := func(err error) {
		if me, ok := err.(*moerr.Error); ok {
			s.logger.Warn("task failed", zap.Uint16("code", me.ErrorCode()), zap.Error(me))
		}
		mu.Lock()
		defer mu.Unlock()
		errs = multierr.Append(errs, err)
	}
	workers, err := ants.NewPool(s.cfg.Sim.Tracks+1, ants.WithPanicHandler(func(v interface{}) {
		report(moerr.ConvertPanicError(moerr.Context(), v))
		wg.Done()
	}))
	if err != nil {
		return moerr.ConvertGoError(moerr.Context(), err)
	}
	defer workers.Release()

	submit := func(task func() error) {
		wg.Add(1)
		if err := workers.Submit(func() {
			report(task())
			wg.Done()
		}); err != nil {
			report(err)
			wg.Done()
		}
	}
	for track := 0; track < s.cfg.Sim.Tracks; track++ {
		track := track
		submit(func() error { return s.runTrack(track) })
	}
	submit(s.runVideo)
	wg.Wait()

	s.logPool(s.audio.Name(), s.audio.TotalBufferCount(), s.audio.FreeBufferCount(),
		s.audio.TotalReservedSpace(), s.audio.TotalFreeSpace(), s.audio.Outstanding().GetCardinality())
	s.logPool(s.video.Name(), s.video.TotalBufferCount(), s.video.FreeBufferCount(),
		s.video.TotalReservedSpace(), s.video.TotalFreeSpace(), s.video.Outstanding().GetCardinality())
	if n := s.audio.Outstanding().GetCardinality() + s.video.Outstanding().GetCardinality(); n != 0 {
		errs = multierr.Append(errs, moerr.NewInternalErrorNoCtx("%d buffers not returned to their pools", n))
	}
	s.logMetrics()

	if errs != nil {
		s.logger.Error("simulation failed", zap.Error(errs), logutil.SinceField(start))
		return errs
	}
	s.logger.Info("simulation done",
		zap.Int("tracks", s.cfg.Sim.Tracks),
		zap.Int("iterations", s.cfg.Sim.Iterations),
		logutil.SinceField(start))
	return nil
}

func (s *simulator) logPool(name string, total, free int, reserved, freeBytes int64, outstanding uint64) {
	s.logger.Info("pool statistics",
		logutil.PoolField(name),
		zap.Int("buffers", total),
		zap.Int("free-buffers", free),
		zap.Int64("reserved-bytes", reserved),
		zap.Int64("free-bytes", freeBytes),
		zap.Uint64("outstanding", outstanding))
}

func (s *simulator) logMetrics() {
	families, err := v2.GetPrometheusGatherer().Gather()
	if err != nil {
		s.logger.Warn("gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			default:
				continue
			}
			fields := []zap.Field{zap.String("metric", mf.GetName()), zap.Float64("value", v)}
			for _, l := range m.GetLabel() {
				fields = append(fields, zap.String(l.GetName(), l.GetValue()))
			}
			s.logger.Debug("metric", fields...)
		}
	}
}

// trackValue is the element recorded at sliver i, channel ch of a track.
func trackValue(track, i, ch, sliverSize int) float32 {
	return float32(i*sliverSize+ch) + float32(track)/8
}

func (s *simulator) loopLength() (holotime.ContinuousDuration[sample], holotime.Duration[sample]) {
	c := holotime.ContinuousDuration[sample](s.cfg.Sim.LoopSamples())
	return c, c.Ceil()
}

func (s *simulator) runTrack(track int) error {
	sliverSize := s.cfg.AudioPool.SliverSize
	st, err := stream.NewDenseStream[sample](s.audio, sliverSize,
		stream.WithName(trackName(track)),
		stream.WithMaxBufferedDuration(holotime.Duration[sample](s.cfg.Stream.MaxBufferedSamples)),
		stream.WithLoopPolicy(s.cfg.LoopPolicy()),
		stream.WithStreamLogger(s.logger))
	if err != nil {
		return err
	}
	defer st.Dispose()

	continuous, discrete := s.loopLength()
	chunk := make([]float32, s.cfg.Sim.ChunkSlivers*sliverSize)
	for recorded := 0; recorded < int(discrete); {
		n := s.cfg.Sim.ChunkSlivers
		if left := int(discrete) - recorded; left < n {
			n = left
		}
		for i := 0; i < n; i++ {
			for ch := 0; ch < sliverSize; ch++ {
				chunk[i*sliverSize+ch] = trackValue(track, recorded+i, ch, sliverSize)
			}
		}
		if err = st.AppendData(chunk[:n*sliverSize]); err != nil {
			return err
		}
		recorded += n
	}
	if err = st.Shut(continuous); err != nil {
		return err
	}

	lengths, err := s.playTrack(track, st)
	if err != nil {
		return err
	}
	s.logger.Info("track looped",
		zap.String("track", trackName(track)),
		zap.Stringer("continuous", continuous),
		zap.Int("slices", st.SliceCount()),
		zap.Int64s("iteration-lengths", lengths))
	return nil
}

// playTrack reads the loop back chunk by chunk and returns the length of
// every completed iteration. Each must be the floor or the ceiling of the
// continuous loop length.
func (s *simulator) playTrack(track int, st *stream.DenseStream[sample, float32]) ([]int64, error) {
	sliverSize := st.SliverSize()
	continuous, _ := s.loopLength()
	lo, hi := int64(continuous.Floor()), int64(continuous.Ceil())
	total := int(math.Ceil(continuous.Float() * float64(s.cfg.Sim.Iterations)))
	buf := make([]float32, s.cfg.Sim.ChunkSlivers*sliverSize)

	var (
		lengths []int64
		index   int
	)
	for played := 0; played < total; {
		n := s.cfg.Sim.ChunkSlivers
		if left := total - played; left < n {
			n = left
		}
		in := holotime.NewInterval(holotime.Time[sample](played), holotime.Duration[sample](n))
		if err := st.CopyTo(in, buf[:n*sliverSize]); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			got := buf[i*sliverSize]
			switch {
			case got == trackValue(track, index, 0, sliverSize):
				index++
			case got == trackValue(track, 0, 0, sliverSize) && index > 0:
				if l := int64(index); l < lo || l > hi {
					return nil, moerr.NewInternalErrorNoCtx("%s iteration of %d samples, loop is %s",
						trackName(track), l, continuous)
				}
				lengths = append(lengths, int64(index))
				index = 1
			default:
				return nil, moerr.NewInternalErrorNoCtx("%s sample %d is %v, expected loop index %d",
					trackName(track), played+i, got, index)
			}
		}
		played += n
	}
	return lengths, nil
}

func trackName(track int) string {
	return "track-" + strconv.Itoa(track)
}

func (s *simulator) runVideo() error {
	sliverSize := s.cfg.VideoPool.SliverSize
	st, err := stream.NewSparseStream[sample](s.video, sliverSize,
		stream.WithName("video"),
		stream.WithMaxBufferedFrameCount(s.cfg.Stream.MaxBufferedFrames),
		stream.WithStreamLogger(s.logger))
	if err != nil {
		return err
	}
	defer st.Dispose()

	continuous, discrete := s.loopLength()
	period := s.cfg.Sim.FramePeriod
	// frames are cropped out of a capture twice as wide when they are square
	side := int(math.Sqrt(float64(sliverSize)))
	square := side*side == sliverSize
	capture := make([]byte, 2*sliverSize)
	for frame := 0; frame*period < int(discrete); frame++ {
		for i := range capture {
			capture[i] = byte(frame)
		}
		t := holotime.Time[sample](frame * period)
		if square {
			err = st.AppendSliver(t, capture, side/2, side, 2*side, side)
		} else {
			err = st.Append(t, capture[:sliverSize])
		}
		if err != nil {
			return err
		}
		// a capture callback firing twice for the same instant is dropped
		if err = st.Append(t, capture[:sliverSize]); err != nil {
			return err
		}
	}
	frames := st.FrameCount()
	if err = st.Shut(continuous); err != nil {
		return err
	}

	dst := make([]byte, sliverSize)
	total := int(math.Ceil(continuous.Float() * float64(s.cfg.Sim.Iterations)))
	step := period / 2
	if step == 0 {
		step = 1
	}
	shown := 0
	for t := 0; t < total; t += step {
		if err = st.CopyTo(holotime.Time[sample](t), dst); err != nil {
			return err
		}
		if int(dst[0]) >= frames && frames <= math.MaxUint8 {
			return moerr.NewInternalErrorNoCtx("video frame %d at %d, stream holds %d", dst[0], t, frames)
		}
		shown++
	}
	s.logger.Info("video looped",
		zap.Int("frames", frames),
		zap.Int("shown", shown),
		zap.Stringer("continuous", continuous))
	return nil
}
