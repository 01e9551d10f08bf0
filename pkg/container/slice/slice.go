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

package slice

import (
	"fmt"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/bufpool"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/holotime"
)

// Slice is a view of a buffer, counted in slivers of sliverSize elements.
// It borrows the buffer and never frees it.
//
// Index and subslice methods panic on out of range arguments, the way
// indexing a Go slice does. Methods that combine two slices return errors.
type Slice[D holotime.Domain, T any] struct {
	buf        *bufpool.Buf[T]
	offset     holotime.Duration[D]
	duration   holotime.Duration[D]
	sliverSize int
}

// New checks that the view fits inside buf.
func New[D holotime.Domain, T any](
	buf *bufpool.Buf[T],
	offset, duration holotime.Duration[D],
	sliverSize int,
) (Slice[D, T], error) {
	if sliverSize <= 0 {
		return Slice[D, T]{}, moerr.NewInvalidArgNoCtx("sliver size", sliverSize)
	}
	if buf == nil {
		return Slice[D, T]{}, moerr.NewInvalidInputNoCtx("nil buffer")
	}
	if offset < 0 || duration < 0 || int64(offset+duration)*int64(sliverSize) > int64(buf.Len()) {
		return Slice[D, T]{}, moerr.NewOutOfRangeNoCtx("slice",
			"offset %d duration %d sliver %d exceeds buffer of %d", offset, duration, sliverSize, buf.Len())
	}
	return Slice[D, T]{
		buf:        buf,
		offset:     offset,
		duration:   duration,
		sliverSize: sliverSize,
	}, nil
}

func MustNew[D holotime.Domain, T any](
	buf *bufpool.Buf[T],
	offset, duration holotime.Duration[D],
	sliverSize int,
) Slice[D, T] {
	s, err := New(buf, offset, duration, sliverSize)
	if err != nil {
		panic(err)
	}
	return s
}

// FromBuf views all whole slivers of buf.
func FromBuf[D holotime.Domain, T any](buf *bufpool.Buf[T], sliverSize int) Slice[D, T] {
	return MustNew[D, T](buf, 0, holotime.Duration[D](buf.Len()/sliverSize), sliverSize)
}

// Empty is a slice with no buffer.
func Empty[D holotime.Domain, T any](sliverSize int) Slice[D, T] {
	return Slice[D, T]{sliverSize: sliverSize}
}

func (s Slice[D, T]) IsEmpty() bool {
	return s.duration == 0
}

func (s Slice[D, T]) Duration() holotime.Duration[D] {
	return s.duration
}

func (s Slice[D, T]) Offset() holotime.Duration[D] {
	return s.offset
}

func (s Slice[D, T]) SliverSize() int {
	return s.sliverSize
}

func (s Slice[D, T]) Buffer() *bufpool.Buf[T] {
	return s.buf
}

// Data is the element view of the slice. It aliases the buffer.
func (s Slice[D, T]) Data() []T {
	if s.buf == nil {
		return nil
	}
	start := int(s.offset) * s.sliverSize
	end := int(s.offset+s.duration) * s.sliverSize
	return s.buf.Data()[start:end:end]
}

func (s Slice[D, T]) checkIndex(sliver holotime.Duration[D], index int) {
	if sliver < 0 || sliver >= s.duration || index < 0 || index >= s.sliverSize {
		panic(moerr.NewOutOfRangeNoCtx("slice index", "sliver %d index %d in %s", sliver, index, s))
	}
}

func (s Slice[D, T]) Get(sliver holotime.Duration[D], index int) T {
	s.checkIndex(sliver, index)
	return s.buf.Data()[int(s.offset+sliver)*s.sliverSize+index]
}

func (s Slice[D, T]) Set(sliver holotime.Duration[D], index int, v T) {
	s.checkIndex(sliver, index)
	s.buf.Data()[int(s.offset+sliver)*s.sliverSize+index] = v
}

// Subslice views length slivers starting start slivers into s.
func (s Slice[D, T]) Subslice(start, length holotime.Duration[D]) Slice[D, T] {
	if start < 0 || length < 0 || start+length > s.duration {
		panic(moerr.NewOutOfRangeNoCtx("subslice", "start %d length %d in %s", start, length, s))
	}
	return Slice[D, T]{
		buf:        s.buf,
		offset:     s.offset + start,
		duration:   length,
		sliverSize: s.sliverSize,
	}
}

func (s Slice[D, T]) SubsliceStartingAt(start holotime.Duration[D]) Slice[D, T] {
	return s.Subslice(start, s.duration-start)
}

func (s Slice[D, T]) SubsliceOfDuration(d holotime.Duration[D]) Slice[D, T] {
	return s.Subslice(0, d)
}

// Precedes reports whether other starts exactly where s ends in the same
// buffer, i.e. the two can be unioned.
func (s Slice[D, T]) Precedes(other Slice[D, T]) bool {
	return s.buf != nil &&
		s.buf == other.buf &&
		s.offset+s.duration == other.offset
}

// UnionWith returns one view covering s and the adjacent other. Neither
// argument is modified.
func (s Slice[D, T]) UnionWith(other Slice[D, T]) (Slice[D, T], error) {
	if !s.Precedes(other) || s.sliverSize != other.sliverSize {
		return s, moerr.NewNotAdjacentNoCtx("%s does not precede %s", s, other)
	}
	return Slice[D, T]{
		buf:        s.buf,
		offset:     s.offset,
		duration:   s.duration + other.duration,
		sliverSize: s.sliverSize,
	}, nil
}

// CopyTo copies s into the start of dst.
func (s Slice[D, T]) CopyTo(dst Slice[D, T]) error {
	if s.sliverSize != dst.sliverSize {
		return moerr.NewSizeNotMatchNoCtx("sliver size %d vs %d", s.sliverSize, dst.sliverSize)
	}
	if dst.duration < s.duration {
		return moerr.NewSizeNotMatchNoCtx("destination %s shorter than %s", dst, s)
	}
	copy(dst.Data(), s.Data())
	return nil
}

// CopyToArray copies s into dst and returns the number of elements copied.
func (s Slice[D, T]) CopyToArray(dst []T) (int, error) {
	src := s.Data()
	if len(dst) < len(src) {
		return 0, moerr.NewSizeNotMatchNoCtx("destination holds %d elements, need %d", len(dst), len(src))
	}
	return copy(dst, src), nil
}

// CopyFrom overwrites s with src, which must be exactly as long as s.
func (s Slice[D, T]) CopyFrom(src []T) error {
	dst := s.Data()
	if len(src) != len(dst) {
		return moerr.NewSizeNotMatchNoCtx("source holds %d elements, slice %d", len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

func (s Slice[D, T]) String() string {
	var id int64
	if s.buf != nil {
		id = s.buf.ID()
	}
	return fmt.Sprintf("Slice{buf %d, offset %d, duration %d, sliver %d}", id, s.offset, s.duration, s.sliverSize)
}
