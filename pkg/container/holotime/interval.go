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

package holotime

import "fmt"

// Interval is the half open span [Start, Start+Duration).
type Interval[D Domain] struct {
	Start    Time[D]
	Duration Duration[D]
}

// NewInterval normalises negative durations to an empty interval.
func NewInterval[D Domain](start Time[D], d Duration[D]) Interval[D] {
	if d < 0 {
		d = 0
	}
	return Interval[D]{Start: start, Duration: d}
}

func EmptyInterval[D Domain]() Interval[D] {
	return Interval[D]{}
}

func (i Interval[D]) End() Time[D] {
	return i.Start.Add(i.Duration)
}

func (i Interval[D]) IsEmpty() bool {
	return i.Duration <= 0
}

func (i Interval[D]) Contains(t Time[D]) bool {
	return i.Start <= t && t < i.End()
}

// Intersect returns the overlap of i and o, or an empty interval.
func (i Interval[D]) Intersect(o Interval[D]) Interval[D] {
	start := MaxTime(i.Start, o.Start)
	end := MinTime(i.End(), o.End())
	if end <= start {
		return Interval[D]{Start: start}
	}
	return Interval[D]{Start: start, Duration: end.Sub(start)}
}

// Suffix drops the first d of the interval.
func (i Interval[D]) Suffix(d Duration[D]) Interval[D] {
	if d >= i.Duration {
		return Interval[D]{Start: i.End()}
	}
	return Interval[D]{Start: i.Start.Add(d), Duration: i.Duration - d}
}

// SubintervalOfDuration keeps at most the first d of the interval.
func (i Interval[D]) SubintervalOfDuration(d Duration[D]) Interval[D] {
	return NewInterval(i.Start, MinDuration(d, i.Duration))
}

func (i Interval[D]) String() string {
	return fmt.Sprintf("[%d, %d)[%s]", int64(i.Start), int64(i.End()), domainName[D]())
}
