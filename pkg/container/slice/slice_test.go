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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/bufpool"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/holotime"
)

type sample = holotime.AudioSample

func seqBuf(n int) *bufpool.Buf[float32] {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	return bufpool.Wrap(data)
}

func TestNewChecksBounds(t *testing.T) {
	buf := seqBuf(8)

	s, err := New[sample](buf, 1, 3, 2)
	require.NoError(t, err)
	require.Equal(t, holotime.Duration[sample](3), s.Duration())
	require.Equal(t, holotime.Duration[sample](1), s.Offset())
	require.Equal(t, []float32{2, 3, 4, 5, 6, 7}, s.Data())

	_, err = New[sample](buf, 1, 4, 2)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOutOfRange))
	_, err = New[sample](buf, -1, 1, 2)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOutOfRange))
	_, err = New[sample](buf, 0, 1, 0)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
	_, err = New[sample, float32](nil, 0, 1, 1)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

	require.Panics(t, func() { MustNew[sample](buf, 0, 5, 2) })
}

func TestFromBufAndEmpty(t *testing.T) {
	s := FromBuf[sample](seqBuf(7), 2)
	require.Equal(t, holotime.Duration[sample](3), s.Duration())
	require.Len(t, s.Data(), 6)

	e := Empty[sample, float32](2)
	require.True(t, e.IsEmpty())
	require.Nil(t, e.Data())
	require.Equal(t, 2, e.SliverSize())
	require.Nil(t, e.Buffer())
}

func TestGetSet(t *testing.T) {
	s := MustNew[sample](seqBuf(9), 1, 2, 3)
	require.Equal(t, float32(3), s.Get(0, 0))
	require.Equal(t, float32(5), s.Get(0, 2))
	require.Equal(t, float32(6), s.Get(1, 0))

	s.Set(1, 1, 42)
	require.Equal(t, float32(42), s.Get(1, 1))
	require.Equal(t, float32(42), s.Buffer().Data()[7])

	require.Panics(t, func() { s.Get(2, 0) })
	require.Panics(t, func() { s.Get(0, 3) })
	require.Panics(t, func() { s.Set(-1, 0, 1) })
}

func TestSubslices(t *testing.T) {
	s := MustNew[sample](seqBuf(10), 0, 10, 1)

	sub := s.Subslice(2, 3)
	require.Equal(t, []float32{2, 3, 4}, sub.Data())
	require.Equal(t, []float32{7, 8, 9}, s.SubsliceStartingAt(7).Data())
	require.Equal(t, []float32{0, 1}, s.SubsliceOfDuration(2).Data())
	require.True(t, s.SubsliceStartingAt(10).IsEmpty())

	// views alias the buffer
	sub.Set(0, 0, 99)
	require.Equal(t, float32(99), s.Get(2, 0))

	require.Panics(t, func() { s.Subslice(8, 3) })
	require.Panics(t, func() { s.Subslice(-1, 1) })
	require.Panics(t, func() { s.SubsliceOfDuration(11) })
}

func TestPrecedesAndUnion(t *testing.T) {
	buf := seqBuf(10)
	a := MustNew[sample](buf, 0, 3, 1)
	b := MustNew[sample](buf, 3, 4, 1)
	c := MustNew[sample](buf, 8, 2, 1)
	other := MustNew[sample](seqBuf(10), 3, 4, 1)

	require.True(t, a.Precedes(b))
	require.False(t, b.Precedes(a))
	require.False(t, b.Precedes(c))
	require.False(t, a.Precedes(other))

	u, err := a.UnionWith(b)
	require.NoError(t, err)
	require.Equal(t, holotime.Duration[sample](7), u.Duration())
	require.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6}, u.Data())

	kept, err := b.UnionWith(c)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNotAdjacent))
	require.Equal(t, b, kept)

	_, err = a.UnionWith(other)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNotAdjacent))
}

func TestCopy(t *testing.T) {
	src := MustNew[sample](seqBuf(6), 1, 2, 2)
	dst := FromBuf[sample](bufpool.Wrap(make([]float32, 6)), 2)

	require.NoError(t, src.CopyTo(dst))
	require.Equal(t, []float32{2, 3, 4, 5, 0, 0}, dst.Data())

	err := dst.CopyTo(src)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSizeNotMatch))

	narrow := FromBuf[sample](bufpool.Wrap(make([]float32, 6)), 3)
	require.True(t, moerr.IsMoErrCode(src.CopyTo(narrow), moerr.ErrSizeNotMatch))

	out := make([]float32, 5)
	n, err := src.CopyToArray(out)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []float32{2, 3, 4, 5, 0}, out)
	_, err = src.CopyToArray(make([]float32, 3))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSizeNotMatch))

	require.NoError(t, src.CopyFrom([]float32{9, 8, 7, 6}))
	require.Equal(t, []float32{9, 8, 7, 6}, src.Data())
	require.True(t, moerr.IsMoErrCode(src.CopyFrom([]float32{1}), moerr.ErrSizeNotMatch))
}

func TestTimedSlice(t *testing.T) {
	buf := seqBuf(10)
	a := NewTimedSlice[sample](100, MustNew[sample](buf, 0, 4, 1))
	b := NewTimedSlice[sample](104, MustNew[sample](buf, 4, 2, 1))

	require.Equal(t, holotime.Time[sample](104), a.EndTime())
	require.Equal(t, holotime.NewInterval[sample](100, 4), a.Interval())
	require.True(t, Less(a, b))
	require.False(t, Less(b, a))
	require.Equal(t, a.EndTime(), b.InitialTime)
	require.Contains(t, a.String(), "@100[sample]")
}
