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

// Package holotime is integral time arithmetic tagged with a time domain.
//
// Every value carries its domain as a type parameter, so a sample count can
// never be added to a frame count:
//
//	var s holotime.Time[holotime.AudioSample]
//	var f holotime.Duration[holotime.Frame]
//	s.Add(f) // does not compile
//
// Durations that are allowed to be fractional, such as the final length of a
// loop, are ContinuousDuration values.
package holotime

import (
	"fmt"
	"math"
)

// Domain is implemented by the zero-sized marker types naming a time axis.
type Domain interface {
	DomainName() string
}

// AudioSample counts audio samples.
type AudioSample struct{}

func (AudioSample) DomainName() string { return "sample" }

// Frame counts discrete frames, e.g. video captures.
type Frame struct{}

func (Frame) DomainName() string { return "frame" }

func domainName[D Domain]() string {
	var d D
	return d.DomainName()
}

// Time is an absolute point on the D axis.
type Time[D Domain] int64

// Duration is an integral span on the D axis.
type Duration[D Domain] int64

// ContinuousDuration is a possibly fractional span on the D axis.
type ContinuousDuration[D Domain] float64

func (t Time[D]) Add(d Duration[D]) Time[D] {
	return t + Time[D](d)
}

func (t Time[D]) SubDuration(d Duration[D]) Time[D] {
	return t - Time[D](d)
}

// Sub returns the span from u to t.
func (t Time[D]) Sub(u Time[D]) Duration[D] {
	return Duration[D](t - u)
}

func (t Time[D]) Before(u Time[D]) bool {
	return t < u
}

func (t Time[D]) String() string {
	return fmt.Sprintf("%d[%s]", int64(t), domainName[D]())
}

func (d Duration[D]) Add(o Duration[D]) Duration[D] {
	return d + o
}

func (d Duration[D]) Sub(o Duration[D]) Duration[D] {
	return d - o
}

func (d Duration[D]) Continuous() ContinuousDuration[D] {
	return ContinuousDuration[D](d)
}

func (d Duration[D]) String() string {
	return fmt.Sprintf("%d[%s]", int64(d), domainName[D]())
}

func (c ContinuousDuration[D]) Float() float64 {
	return float64(c)
}

func (c ContinuousDuration[D]) Ceil() Duration[D] {
	return Duration[D](math.Ceil(float64(c)))
}

func (c ContinuousDuration[D]) Floor() Duration[D] {
	return Duration[D](math.Floor(float64(c)))
}

func (c ContinuousDuration[D]) String() string {
	return fmt.Sprintf("%g[%s]", float64(c), domainName[D]())
}

func MinTime[D Domain](a, b Time[D]) Time[D] {
	if a < b {
		return a
	}
	return b
}

func MaxTime[D Domain](a, b Time[D]) Time[D] {
	if a > b {
		return a
	}
	return b
}

func MinDuration[D Domain](a, b Duration[D]) Duration[D] {
	if a < b {
		return a
	}
	return b
}

func MaxDuration[D Domain](a, b Duration[D]) Duration[D] {
	if a > b {
		return a
	}
	return b
}
