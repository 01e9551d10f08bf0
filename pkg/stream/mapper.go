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
	"math"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/holotime"
)

type mapperKind uint8

const (
	mapIdentity mapperKind = iota
	mapSimpleLoop
	mapContinuousLoop
)

// intervalMapper turns a requested absolute interval into the first
// physically stored sub-interval. It starts as identity and is replaced by
// a looping variant exactly once, when the stream is shut.
type intervalMapper[D holotime.Domain] struct {
	kind       mapperKind
	continuous holotime.ContinuousDuration[D]
}

func identityMapper[D holotime.Domain]() intervalMapper[D] {
	return intervalMapper[D]{kind: mapIdentity}
}

func loopingMapper[D holotime.Domain](p LoopPolicy, c holotime.ContinuousDuration[D]) intervalMapper[D] {
	if p == LoopSimple {
		return intervalMapper[D]{kind: mapSimpleLoop, continuous: c}
	}
	return intervalMapper[D]{kind: mapContinuousLoop, continuous: c}
}

// mapInterval returns a sub-interval of [initial, initial+discrete) no longer
// than in. When looping, the result stops at the next wrap boundary so the
// caller has to query again for the rest.
func (m intervalMapper[D]) mapInterval(
	in holotime.Interval[D],
	initial holotime.Time[D],
	discrete holotime.Duration[D],
) holotime.Interval[D] {
	if in.IsEmpty() || discrete <= 0 {
		return holotime.EmptyInterval[D]()
	}
	d := in.Start.Sub(initial)
	switch m.kind {
	case mapSimpleLoop:
		offset := d % discrete
		if offset < 0 {
			offset += discrete
		}
		return holotime.NewInterval(initial.Add(offset), holotime.MinDuration(in.Duration, discrete-offset))
	case mapContinuousLoop:
		offset, iterLen := loopFold(d, m.continuous)
		iterLen = holotime.MinDuration(iterLen, discrete)
		return holotime.NewInterval(initial.Add(offset), holotime.MinDuration(in.Duration, iterLen-offset))
	default:
		return in.Intersect(holotime.NewInterval(initial, discrete))
	}
}

// loopFold locates d within the continuous loop c. Iteration k covers
// [ceil(k*c), ceil((k+1)*c)); boundaries are recomputed from k every call so
// that no rounding error accumulates over a long session.
func loopFold[D holotime.Domain](d holotime.Duration[D], c holotime.ContinuousDuration[D]) (offset, iterLen holotime.Duration[D]) {
	cf := c.Float()
	x := int64(d)
	k := math.Floor(float64(x) / cf)
	lo, hi := loopBoundary(k, cf), loopBoundary(k+1, cf)
	// float division can land one iteration off near a boundary
	for x < lo {
		k--
		lo, hi = loopBoundary(k, cf), lo
	}
	for x >= hi {
		k++
		lo, hi = hi, loopBoundary(k+1, cf)
	}
	return holotime.Duration[D](x - lo), holotime.Duration[D](hi - lo)
}

func loopBoundary(k, c float64) int64 {
	x := k * c
	// 5*2.4 is 12 in exact arithmetic; do not let representation error push
	// it to 13. The slack is a few ulps of x so a real fraction is still
	// ceiled however long the session runs.
	if r := math.Round(x); math.Abs(x-r) <= 4*ulp(x) {
		return int64(r)
	}
	return int64(math.Ceil(x))
}

func ulp(x float64) float64 {
	x = math.Abs(x)
	return math.Nextafter(x, math.Inf(1)) - x
}
