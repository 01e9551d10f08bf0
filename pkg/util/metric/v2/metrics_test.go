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

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPoolMetrics(t *testing.T) {
	m := NewPoolMetrics("metrics-test")
	m.ReservedBytes.Set(1024)
	m.FreeBytes.Set(512)
	m.Allocate.Inc()
	m.Allocate.Inc()
	m.Free.Inc()

	require.Equal(t, 1024.0, testutil.ToFloat64(m.ReservedBytes))
	require.Equal(t, 512.0, testutil.ToFloat64(m.FreeBytes))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Allocate))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Free))

	// a second handle on the same label shares the series
	require.Equal(t, 2.0, testutil.ToFloat64(NewPoolMetrics("metrics-test").Allocate))
}

func TestRegistryGathers(t *testing.T) {
	StreamDenseShutCounter.Inc()
	NewPoolMetrics("gather-test").Allocate.Inc()
	families, err := GetPrometheusGatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["holo_stream_shut_total"])
	require.True(t, names["holo_mem_pool_allocate_total"])
}
