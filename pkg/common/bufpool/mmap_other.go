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

//go:build !linux && !darwin

package bufpool

import "github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"

var mmapSupported = false

func mmapBuffer[T any](length, elemSize int) ([]T, []byte, error) {
	return nil, nil, moerr.NewNYI(moerr.Context(), "mmap buffers on this platform")
}

func munmapBuffer(mapped []byte) error {
	return nil
}
