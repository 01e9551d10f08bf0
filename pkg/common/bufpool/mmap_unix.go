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

//go:build linux || darwin

package bufpool

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

var mmapSupported = true

func mmapBuffer[T any](length, elemSize int) ([]T, []byte, error) {
	mapped, err := unix.Mmap(
		-1, 0,
		length*elemSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil, nil, err
	}
	data := unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(mapped))), length)
	return data, mapped, nil
}

func munmapBuffer(mapped []byte) error {
	return unix.Munmap(mapped)
}
