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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/bufpool"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/holotime"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/slice"
	v2 "github.com/RobJellinghaus/Holofunk-sub000/pkg/util/metric/v2"
)

type streamCounters struct {
	appended prometheus.Counter
	trimmed  prometheus.Counter
	shut     prometheus.Counter
}

func (c streamCounters) addAppended(n int64) {
	if c.appended != nil {
		c.appended.Add(float64(n))
	}
}

func (c streamCounters) addTrimmed(n int64) {
	if c.trimmed != nil {
		c.trimmed.Add(float64(n))
	}
}

func (c streamCounters) incShut() {
	if c.shut != nil {
		c.shut.Inc()
	}
}

// DenseStream stores one sliver per time unit in buffers drawn from a
// shared pool. Appended data is kept as a contiguous, time ordered list of
// timed slices; adjacent data in the same buffer is coalesced into a single
// entry.
type DenseStream[D holotime.Domain, T any] struct {
	mu sync.Mutex
	base[D]

	allocator *bufpool.BufferAllocator[T]
	// ordered by InitialTime, contiguous from initialTime
	slices   *btree.BTreeG[slice.TimedSlice[D, T]]
	discrete holotime.Duration[D]
	// unwritten tail of the most recently allocated buffer
	free        slice.Slice[D, T]
	mapper      intervalMapper[D]
	policy      LoopPolicy
	maxBuffered holotime.Duration[D]
	counters    streamCounters
}

var _ Stream[holotime.AudioSample] = (*DenseStream[holotime.AudioSample, float32])(nil)

// NewDenseStream creates an open stream. The allocator's buffer length must
// be a multiple of sliverSize.
func NewDenseStream[D holotime.Domain, T any](
	allocator *bufpool.BufferAllocator[T],
	sliverSize int,
	opts ...Option,
) (*DenseStream[D, T], error) {
	s, err := newDenseStream[D](allocator, sliverSize, applyOptions(opts))
	if err != nil {
		return nil, err
	}
	s.counters = streamCounters{
		appended: v2.StreamDenseAppendedCounter,
		trimmed:  v2.StreamDenseTrimmedCounter,
		shut:     v2.StreamDenseShutCounter,
	}
	return s, nil
}

func newDenseStream[D holotime.Domain, T any](
	allocator *bufpool.BufferAllocator[T],
	sliverSize int,
	o options,
) (*DenseStream[D, T], error) {
	if allocator == nil {
		return nil, moerr.NewInvalidInputNoCtx("nil buffer allocator")
	}
	if sliverSize <= 0 || allocator.BufferLength()%sliverSize != 0 {
		return nil, moerr.NewInvalidArgNoCtx("sliver size",
			fmt.Sprintf("%d for buffer length %d", sliverSize, allocator.BufferLength()))
	}
	if err := validateOptions(o); err != nil {
		return nil, err
	}
	s := &DenseStream[D, T]{
		base:      newBase[D]("dense", sliverSize, o),
		allocator: allocator,
		slices: btree.NewBTreeGOptions(slice.Less[D, T], btree.Options{
			NoLocks: true,
		}),
		free:        slice.Empty[D, T](sliverSize),
		mapper:      identityMapper[D](),
		policy:      o.policy,
		maxBuffered: holotime.Duration[D](o.maxBuffered),
	}
	s.logger.Debug("dense stream created",
		zap.String("pool", allocator.Name()),
		zap.Int("sliver-size", sliverSize),
		zap.Stringer("initial-time", s.initialTime),
		zap.Stringer("loop-policy", s.policy))
	return s, nil
}

// Append copies src into the stream.
func (s *DenseStream[D, T]) Append(src slice.Slice[D, T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(); err != nil {
		return err
	}
	if src.SliverSize() != s.sliverSize {
		return moerr.NewSizeNotMatchNoCtx("sliver size %d, stream %s has %d", src.SliverSize(), s.label(), s.sliverSize)
	}
	s.appendLocked(src.Data())
	s.trimLocked()
	return nil
}

// AppendData copies raw elements into the stream. len(data) must be a
// whole number of slivers.
func (s *DenseStream[D, T]) AppendData(data []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(); err != nil {
		return err
	}
	if len(data)%s.sliverSize != 0 {
		return moerr.NewSizeNotMatchNoCtx("%d elements is not a whole number of %d element slivers", len(data), s.sliverSize)
	}
	s.appendLocked(data)
	s.trimLocked()
	return nil
}

// AppendSliver copies a width by height rectangle of source, whose rows are
// stride elements apart, into exactly one sliver.
func (s *DenseStream[D, T]) AppendSliver(source []T, startOffset, width, stride, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := checkSliverShape(len(source), startOffset, width, stride, height, s.sliverSize); err != nil {
		return err
	}
	dst := s.ensureFreeLocked().SubsliceOfDuration(1)
	data := dst.Data()
	for row := 0; row < height; row++ {
		from := startOffset + row*stride
		copy(data[row*width:(row+1)*width], source[from:from+width])
	}
	s.free = s.free.SubsliceStartingAt(1)
	s.internalAppendLocked(dst)
	s.counters.addAppended(1)
	s.trimLocked()
	return nil
}

func checkSliverShape(sourceLen, startOffset, width, stride, height, sliverSize int) error {
	if width <= 0 || height <= 0 {
		return moerr.NewInvalidArgNoCtx("sliver shape", fmt.Sprintf("%dx%d", width, height))
	}
	if width*height != sliverSize {
		return moerr.NewSizeNotMatchNoCtx("%dx%d sliver, stream sliver size %d", width, height, sliverSize)
	}
	if stride < width {
		return moerr.NewInvalidArgNoCtx("stride", fmt.Sprintf("%d less than width %d", stride, width))
	}
	if startOffset < 0 || startOffset+(height-1)*stride+width > sourceLen {
		return moerr.NewOutOfRangeNoCtx("sliver source",
			"offset %d stride %d height %d exceeds source of %d", startOffset, stride, height, sourceLen)
	}
	return nil
}

func (s *DenseStream[D, T]) ensureFreeLocked() slice.Slice[D, T] {
	if s.free.IsEmpty() {
		s.free = slice.FromBuf[D](s.allocator.Allocate(), s.sliverSize)
	}
	return s.free
}

func (s *DenseStream[D, T]) appendLocked(data []T) {
	total := int64(len(data) / s.sliverSize)
	for len(data) > 0 {
		free := s.ensureFreeLocked()
		n := holotime.MinDuration(free.Duration(), holotime.Duration[D](len(data)/s.sliverSize))
		dst := free.SubsliceOfDuration(n)
		elems := int(n) * s.sliverSize
		copy(dst.Data(), data[:elems])
		s.free = free.SubsliceStartingAt(n)
		s.internalAppendLocked(dst)
		data = data[elems:]
	}
	s.counters.addAppended(total)
}

// internalAppendLocked extends the tail entry in place when dst directly
// follows it in the same buffer, otherwise starts a new entry.
func (s *DenseStream[D, T]) internalAppendLocked(dst slice.Slice[D, T]) {
	if tail, ok := s.slices.Max(); ok {
		if joined, err := tail.Value.UnionWith(dst); err == nil {
			s.slices.Set(slice.NewTimedSlice(tail.InitialTime, joined))
			s.discrete += dst.Duration()
			return
		}
		s.logger.Debug("timed slice boundary",
			zap.Stringer("tail", tail),
			zap.Stringer("next", dst))
	}
	s.slices.Set(slice.NewTimedSlice(s.initialTime.Add(s.discrete), dst))
	s.discrete += dst.Duration()
}

// Trim evicts the oldest data until the stream holds no more than its
// maximum buffered duration.
func (s *DenseStream[D, T]) Trim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimLocked()
}

func (s *DenseStream[D, T]) trimLocked() {
	if s.maxBuffered <= 0 || s.discrete <= s.maxBuffered {
		return
	}
	s.dropOldestLocked(s.discrete - s.maxBuffered)
}

// dropOldestLocked removes exactly n slivers from the front, or everything
// if the stream is shorter.
func (s *DenseStream[D, T]) dropOldestLocked(n holotime.Duration[D]) {
	var dropped holotime.Duration[D]
	freed := 0
	for n > 0 {
		first, ok := s.slices.Min()
		if !ok {
			break
		}
		step := first.Value.Duration()
		s.slices.Delete(first)
		if step <= n {
			if s.releaseLocked(first.Value.Buffer()) {
				freed++
			}
		} else {
			step = n
			s.slices.Set(slice.NewTimedSlice(first.InitialTime.Add(step), first.Value.SubsliceStartingAt(step)))
		}
		s.initialTime = s.initialTime.Add(step)
		s.discrete -= step
		dropped += step
		n -= step
	}
	if dropped > 0 {
		s.counters.addTrimmed(int64(dropped))
		s.logger.Debug("trimmed stream",
			zap.Stringer("dropped", dropped),
			zap.Int("freed-buffers", freed),
			zap.Stringer("initial-time", s.initialTime))
	}
}

// releaseLocked returns buf to the pool unless the new first entry or the
// free remainder still points into it.
func (s *DenseStream[D, T]) releaseLocked(buf *bufpool.Buf[T]) bool {
	if first, ok := s.slices.Min(); ok && first.Value.Buffer() == buf {
		return false
	}
	if s.free.Buffer() == buf {
		if !s.free.IsEmpty() {
			return false
		}
		s.free = slice.Empty[D, T](s.sliverSize)
	}
	s.allocator.Free(buf)
	return true
}

// GetNextSliceAt returns the longest stored run at the start of in, after
// mapping in through the stream's interval mapper. The result is empty when
// nothing is stored there. The returned view stays valid until the next
// Trim or Dispose.
func (s *DenseStream[D, T]) GetNextSliceAt(in holotime.Interval[D]) slice.Slice[D, T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return slice.Empty[D, T](s.sliverSize)
	}
	return s.getNextSliceLocked(in)
}

func (s *DenseStream[D, T]) getNextSliceLocked(in holotime.Interval[D]) slice.Slice[D, T] {
	mapped := s.mapper.mapInterval(in, s.initialTime, s.discrete)
	if mapped.IsEmpty() {
		return slice.Empty[D, T](s.sliverSize)
	}
	var (
		found slice.TimedSlice[D, T]
		ok    bool
	)
	s.slices.Descend(slice.TimedSlice[D, T]{InitialTime: mapped.Start}, func(ts slice.TimedSlice[D, T]) bool {
		found, ok = ts, true
		return false
	})
	if !ok {
		return slice.Empty[D, T](s.sliverSize)
	}
	span := mapped.Intersect(found.Interval())
	if span.IsEmpty() {
		return slice.Empty[D, T](s.sliverSize)
	}
	return found.Value.Subslice(span.Start.Sub(found.InitialTime), span.Duration)
}

// checkCoveredLocked reports whether every sliver of in can be read.
func (s *DenseStream[D, T]) checkCoveredLocked(in holotime.Interval[D]) error {
	if s.disposed {
		return moerr.NewStreamDisposedNoCtx(s.label())
	}
	if in.IsEmpty() {
		return nil
	}
	if s.shut {
		// a shut stream loops over everything it holds
		return nil
	}
	if in.Intersect(s.discreteIntervalLocked()) != in {
		return moerr.NewOutOfRangeNoCtx("interval", "%s outside %s of stream %s", in, s.discreteIntervalLocked(), s.label())
	}
	return nil
}

// CopyTo fills dst with the slivers of in, following loop wraparound when
// the stream is shut.
func (s *DenseStream[D, T]) CopyTo(in holotime.Interval[D], dst []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if need := int(in.Duration) * s.sliverSize; len(dst) < need {
		return moerr.NewSizeNotMatchNoCtx("destination holds %d elements, %s needs %d", len(dst), in, need)
	}
	if err := s.checkCoveredLocked(in); err != nil {
		return err
	}
	for !in.IsEmpty() {
		next := s.getNextSliceLocked(in)
		if next.IsEmpty() {
			return moerr.NewInternalErrorNoCtx("stream %s has no data at %s", s.label(), in)
		}
		n := copy(dst, next.Data())
		dst = dst[n:]
		in = in.Suffix(next.Duration())
	}
	return nil
}

// CopyToStream appends the slivers of in to dst. It locks s before dst, so
// two streams must not copy into each other concurrently.
func (s *DenseStream[D, T]) CopyToStream(in holotime.Interval[D], dst *DenseStream[D, T]) error {
	if dst == nil || dst == s {
		return moerr.NewInvalidInputNoCtx("copy destination must be another stream")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCoveredLocked(in); err != nil {
		return err
	}
	dst.mu.Lock()
	defer dst.mu.Unlock()
	if err := dst.checkWritable(); err != nil {
		return err
	}
	if dst.sliverSize != s.sliverSize {
		return moerr.NewSizeNotMatchNoCtx("sliver size %d, stream %s has %d", s.sliverSize, dst.label(), dst.sliverSize)
	}
	for !in.IsEmpty() {
		next := s.getNextSliceLocked(in)
		if next.IsEmpty() {
			return moerr.NewInternalErrorNoCtx("stream %s has no data at %s", s.label(), in)
		}
		dst.appendLocked(next.Data())
		in = in.Suffix(next.Duration())
	}
	dst.trimLocked()
	return nil
}

// Shut freezes the stream as a loop of the given length. The discrete
// duration must be the ceiling of final.
func (s *DenseStream[D, T]) Shut(final holotime.ContinuousDuration[D]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkShut(final); err != nil {
		return err
	}
	if final.Ceil() != s.discrete {
		return moerr.NewDurationMismatchNoCtx(int64(s.discrete), final.Float())
	}
	s.markShut(final)
	s.mapper = loopingMapper(s.policy, final)
	s.counters.incShut()
	s.logger.Info("stream shut",
		zap.Stringer("continuous-duration", final),
		zap.Stringer("interval", s.discreteIntervalLocked()),
		zap.Int("slices", s.slices.Len()))
	return nil
}

// Dispose returns every buffer the stream references to the pool. Calls
// after the first do nothing.
func (s *DenseStream[D, T]) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposeLocked()
}

func (s *DenseStream[D, T]) disposeLocked() {
	s.slices.Scan(func(ts slice.TimedSlice[D, T]) bool {
		s.allocator.Free(ts.Value.Buffer())
		return true
	})
	// usually shared with the tail entry; Free ignores the repeat
	if buf := s.free.Buffer(); buf != nil {
		s.allocator.Free(buf)
	}
	s.slices.Clear()
	s.free = slice.Empty[D, T](s.sliverSize)
	s.discrete = 0
	s.disposed = true
	s.logger.Debug("stream disposed")
}

func (s *DenseStream[D, T]) InitialTime() holotime.Time[D] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialTime
}

func (s *DenseStream[D, T]) IsShut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shut
}

func (s *DenseStream[D, T]) ContinuousDuration() (holotime.ContinuousDuration[D], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuousDuration()
}

func (s *DenseStream[D, T]) DiscreteDuration() holotime.Duration[D] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discrete
}

func (s *DenseStream[D, T]) DiscreteInterval() holotime.Interval[D] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discreteIntervalLocked()
}

func (s *DenseStream[D, T]) discreteIntervalLocked() holotime.Interval[D] {
	return holotime.NewInterval(s.initialTime, s.discrete)
}

// SliceCount is the number of timed slice entries currently held.
func (s *DenseStream[D, T]) SliceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slices.Len()
}

// MaxBufferedDuration is fixed at construction, so it is read without the lock.
func (s *DenseStream[D, T]) MaxBufferedDuration() holotime.Duration[D] {
	return s.maxBuffered
}

func (s *DenseStream[D, T]) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("DenseStream{%s, %s, slices %d, shut %v}",
		s.label(), s.discreteIntervalLocked(), s.slices.Len(), s.shut)
}

func (s *DenseStream[D, T]) dropOldest(n holotime.Duration[D]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropOldestLocked(n)
}

// sliverAt returns the i'th stored sliver counting from the initial time.
func (s *DenseStream[D, T]) sliverAt(i int) slice.Slice[D, T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getNextSliceLocked(holotime.NewInterval(s.initialTime.Add(holotime.Duration[D](i)), 1))
}
