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

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/holotime"
)

// TimedSlice is a slice pinned to the absolute time of its first sliver.
// Timed slices order by InitialTime alone.
type TimedSlice[D holotime.Domain, T any] struct {
	InitialTime holotime.Time[D]
	Value       Slice[D, T]
}

func NewTimedSlice[D holotime.Domain, T any](t holotime.Time[D], v Slice[D, T]) TimedSlice[D, T] {
	return TimedSlice[D, T]{InitialTime: t, Value: v}
}

func (ts TimedSlice[D, T]) EndTime() holotime.Time[D] {
	return ts.InitialTime.Add(ts.Value.Duration())
}

func (ts TimedSlice[D, T]) Interval() holotime.Interval[D] {
	return holotime.NewInterval(ts.InitialTime, ts.Value.Duration())
}

// Less orders timed slices by start time.
func Less[D holotime.Domain, T any](a, b TimedSlice[D, T]) bool {
	return a.InitialTime < b.InitialTime
}

func (ts TimedSlice[D, T]) String() string {
	return fmt.Sprintf("@%s %s", ts.InitialTime, ts.Value)
}
