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
	memPoolReservedBytesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "holo",
			Subsystem: "mem",
			Name:      "pool_reserved_bytes",
			Help:      "Bytes reserved by a buffer pool, free or handed out.",
		}, []string{"pool"})

	memPoolFreeBytesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "holo",
			Subsystem: "mem",
			Name:      "pool_free_bytes",
			Help:      "Bytes sitting on a buffer pool's free list.",
		}, []string{"pool"})

	memPoolAllocateCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holo",
			Subsystem: "mem",
			Name:      "pool_allocate_total",
			Help:      "Total number of buffers handed out by a pool.",
		}, []string{"pool"})

	memPoolFreeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "holo",
			Subsystem: "mem",
			Name:      "pool_free_total",
			Help:      "Total number of buffers returned to a pool.",
		}, []string{"pool"})
)

// PoolMetrics is the set of collectors one buffer pool updates.
type PoolMetrics struct {
	ReservedBytes prometheus.Gauge
	FreeBytes     prometheus.Gauge
	Allocate      prometheus.Counter
	Free          prometheus.Counter
}

func NewPoolMetrics(pool string) PoolMetrics {
	return PoolMetrics{
		ReservedBytes: memPoolReservedBytesGauge.WithLabelValues(pool),
		FreeBytes:     memPoolFreeBytesGauge.WithLabelValues(pool),
		Allocate:      memPoolAllocateCounter.WithLabelValues(pool),
		Free:          memPoolFreeCounter.WithLabelValues(pool),
	}
}
