// Copyright 2023 Matrix Origin
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

package v2

import "github.com/prometheus/client_golang/prometheus"

var (
	streamAppendedSliversCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holo",
			Subsystem: "stream",
			Name:      "appended_slivers_total",
			Help:      "Total number of slivers appended to streams.",
		}, []string{"kind"})

	streamTrimmedSliversCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holo",
			Subsystem: "stream",
			Name:      "trimmed_slivers_total",
			Help:      "Total number of slivers evicted from streams by trimming.",
		}, []string{"kind"})

	streamShutCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holo",
			Subsystem: "stream",
			Name:      "shut_total",
			Help:      "Total number of streams shut into loops.",
		}, []string{"kind"})

	StreamDenseAppendedCounter  = streamAppendedSliversCounter.WithLabelValues("dense")
	StreamSparseAppendedCounter = streamAppendedSliversCounter.WithLabelValues("sparse")
	StreamDenseTrimmedCounter   = streamTrimmedSliversCounter.WithLabelValues("dense")
	StreamSparseTrimmedCounter  = streamTrimmedSliversCounter.WithLabelValues("sparse")
	StreamDenseShutCounter      = streamShutCounter.WithLabelValues("dense")
	StreamSparseShutCounter     = streamShutCounter.WithLabelValues("sparse")
)
