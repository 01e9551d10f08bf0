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

package stream

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/bufpool"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/holotime"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/slice"
	v2 "github.com/RobJellinghaus/Holofunk-sub000/pkg/util/metric/v2"
)

// SparseStream holds discretely timestamped slivers, such as video frames.
// The slivers live in an inner dense stream counted in frames; times holds
// the timestamp of each of them, strictly increasing.
type SparseStream[D holotime.Domain, T any] struct {
	mu sync.Mutex
	base[D]

	frames    *DenseStream[holotime.Frame, T]
	times     []holotime.Time[D]
	maxFrames int
	counters  streamCounters
}

var _ Stream[holotime.AudioSample] = (*SparseStream[holotime.AudioSample, byte])(nil)

func NewSparseStream[D holotime.Domain, T any](
	allocator *bufpool.BufferAllocator[T],
	sliverSize int,
	opts ...Option,
) (*SparseStream[D, T], error) {
	o := applyOptions(opts)
	if err := validateOptions(o); err != nil {
		return nil, err
	}
	frames, err := newDenseStream[holotime.Frame](allocator, sliverSize, options{
		name:   o.name,
		logger: o.logger,
	})
	if err != nil {
		return nil, err
	}
	s := &SparseStream[D, T]{
		base:      newBase[D]("sparse", sliverSize, o),
		frames:    frames,
		maxFrames: o.maxFrameCount,
		counters: streamCounters{
			appended: v2.StreamSparseAppendedCounter,
			trimmed:  v2.StreamSparseTrimmedCounter,
			shut:     v2.StreamSparseShutCounter,
		},
	}
	return s, nil
}

// checkTimeLocked reports whether t repeats the latest timestamp, in which
// case the append is dropped.
func (s *SparseStream[D, T]) checkTimeLocked(t holotime.Time[D]) (bool, error) {
	if n := len(s.times); n > 0 {
		last := s.times[n-1]
		switch {
		case t == last:
			return true, nil
		case t < last:
			return false, moerr.NewNonMonotonicTimeNoCtx(t, last)
		}
		return false, nil
	}
	if t < s.initialTime {
		return false, moerr.NewNonMonotonicTimeNoCtx(t, s.initialTime)
	}
	return false, nil
}

// Append stores one sliver of data at time t. Appending again at the latest
// time is a silent no-op; appending earlier than that is an error.
func (s *SparseStream[D, T]) Append(t holotime.Time[D], data []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(); err != nil {
		return err
	}
	if len(data) != s.sliverSize {
		return moerr.NewSizeNotMatchNoCtx("%d elements, sliver size %d", len(data), s.sliverSize)
	}
	dup, err := s.checkTimeLocked(t)
	if err != nil || dup {
		return err
	}
	if err = s.frames.AppendData(data); err != nil {
		return err
	}
	s.recordLocked(t)
	return nil
}

// AppendSliver stores a strided rectangle of source as one sliver at time t.
func (s *SparseStream[D, T]) AppendSliver(t holotime.Time[D], source []T, startOffset, width, stride, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := checkSliverShape(len(source), startOffset, width, stride, height, s.sliverSize); err != nil {
		return err
	}
	dup, err := s.checkTimeLocked(t)
	if err != nil || dup {
		return err
	}
	if err = s.frames.AppendSliver(source, startOffset, width, stride, height); err != nil {
		return err
	}
	s.recordLocked(t)
	return nil
}

func (s *SparseStream[D, T]) recordLocked(t holotime.Time[D]) {
	s.times = append(s.times, t)
	s.counters.addAppended(1)
	s.trimLocked()
}

// Trim evicts the oldest frames beyond the maximum buffered frame count.
func (s *SparseStream[D, T]) Trim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimLocked()
}

func (s *SparseStream[D, T]) trimLocked() {
	if s.maxFrames <= 0 || len(s.times) <= s.maxFrames {
		return
	}
	n := len(s.times) - s.maxFrames
	s.frames.dropOldest(holotime.Duration[holotime.Frame](n))
	s.times = append(s.times[:0], s.times[n:]...)
	s.initialTime = s.times[0]
	s.counters.addTrimmed(int64(n))
}

// GetClosestSliver returns the latest sliver stored strictly before t. On a
// shut stream t is first folded into the loop. When nothing precedes t the
// most recent sliver is returned, and an empty slice when the stream holds
// nothing.
func (s *SparseStream[D, T]) GetClosestSliver(t holotime.Time[D]) slice.Slice[holotime.Frame, T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closestLocked(t)
}

func (s *SparseStream[D, T]) closestLocked(t holotime.Time[D]) slice.Slice[holotime.Frame, T] {
	if s.disposed || len(s.times) == 0 {
		return slice.Empty[holotime.Frame, T](s.sliverSize)
	}
	if s.shut {
		offset, _ := loopFold(t.Sub(s.initialTime), s.continuous)
		t = s.initialTime.Add(offset)
	}
	// i is the first entry not before t
	i, _ := slices.BinarySearch(s.times, t)
	if i == 0 {
		i = len(s.times)
	}
	return s.frames.sliverAt(i - 1)
}

// CopyTo copies the sliver GetClosestSliver would return into dst.
func (s *SparseStream[D, T]) CopyTo(t holotime.Time[D], dst []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(dst) < s.sliverSize {
		return moerr.NewSizeNotMatchNoCtx("destination holds %d elements, sliver size %d", len(dst), s.sliverSize)
	}
	if s.disposed {
		return moerr.NewStreamDisposedNoCtx(s.label())
	}
	sliver := s.closestLocked(t)
	if sliver.IsEmpty() {
		return moerr.NewOutOfRangeNoCtx("time", "stream %s holds no frames at %s", s.label(), t)
	}
	copy(dst, sliver.Data())
	return nil
}

// Shut freezes the stream as a loop of final length.
func (s *SparseStream[D, T]) Shut(final holotime.ContinuousDuration[D]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkShut(final); err != nil {
		return err
	}
	s.markShut(final)
	s.counters.incShut()
	s.logger.Info("stream shut",
		zap.Stringer("continuous-duration", final),
		zap.Int("frames", len(s.times)))
	return nil
}

func (s *SparseStream[D, T]) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.frames.Dispose()
	s.times = nil
	s.disposed = true
}

func (s *SparseStream[D, T]) InitialTime() holotime.Time[D] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialTime
}

func (s *SparseStream[D, T]) IsShut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shut
}

func (s *SparseStream[D, T]) ContinuousDuration() (holotime.ContinuousDuration[D], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuousDuration()
}

func (s *SparseStream[D, T]) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.times)
}

// LastTime is the timestamp of the most recent frame.
func (s *SparseStream[D, T]) LastTime() (holotime.Time[D], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.times) == 0 {
		return 0, false
	}
	return s.times[len(s.times)-1], true
}

// MaxBufferedFrameCount is fixed at construction, so it is read without the lock.
func (s *SparseStream[D, T]) MaxBufferedFrameCount() int {
	return s.maxFrames
}

func (s *SparseStream[D, T]) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("SparseStream{%s, frames %d, shut %v}", s.label(), len(s.times), s.shut)
}
