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

package bufpool

import "sync/atomic"

var nextBufID atomic.Int64

// Buf is a fixed length array handed out by a BufferAllocator. It is owned
// by exactly one holder at a time: the pool's free list or one stream.
type Buf[T any] struct {
	id    int64
	data  []T
	owner *BufferAllocator[T]
	// mapped is the anonymous mapping backing data, nil for heap buffers
	mapped []byte
}

// Wrap builds an unpooled buffer over caller owned memory. Its ID is 0 and
// it must never be passed to Free.
func Wrap[T any](data []T) *Buf[T] {
	return &Buf[T]{data: data}
}

func (b *Buf[T]) ID() int64 {
	return b.id
}

func (b *Buf[T]) Len() int {
	return len(b.data)
}

// Data returns the whole backing array without copying.
func (b *Buf[T]) Data() []T {
	return b.data
}

func (b *Buf[T]) IsPooled() bool {
	return b.owner != nil
}
