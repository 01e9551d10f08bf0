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

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/RoaringBitmap/roaring/roaring64"
	"go.uber.org/zap"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/logutil"
	v2 "github.com/RobJellinghaus/Holofunk-sub000/pkg/util/metric/v2"
)

type options struct {
	name    string
	useMmap bool
	logger  *zap.Logger
}

type Option func(*options)

// WithName labels the pool in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithMmap backs buffers with anonymous mappings released at Close. Only
// element types without pointers are mapped; others stay on the heap.
func WithMmap() Option {
	return func(o *options) {
		o.useMmap = true
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// BufferAllocator hands out fixed length buffers of T and recycles them
// through a LIFO free list. Allocate never fails, the pool grows on demand.
// It is safe for concurrent use by every stream that shares it.
type BufferAllocator[T any] struct {
	name         string
	bufferLength int
	elemSize     int
	useMmap      bool
	logger       *zap.Logger
	metrics      v2.PoolMetrics

	mu          sync.Mutex
	closed      bool
	free        []*Buf[T]
	onFree      map[*Buf[T]]struct{}
	all         []*Buf[T]
	outstanding *roaring64.Bitmap
}

// NewBufferAllocator creates a pool of buffers of bufferLength elements and
// mints initialCount of them up front.
func NewBufferAllocator[T any](bufferLength, initialCount int, opts ...Option) *BufferAllocator[T] {
	if bufferLength <= 0 {
		panic(moerr.NewInvalidArgNoCtx("buffer length", bufferLength))
	}
	o := options{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logutil.GetGlobalLogger()
	}

	var zero T
	p := &BufferAllocator[T]{
		name:         o.name,
		bufferLength: bufferLength,
		elemSize:     int(unsafe.Sizeof(zero)),
		logger:       o.logger.Named("bufpool").With(logutil.PoolField(o.name)),
		metrics:      v2.NewPoolMetrics(o.name),
		onFree:       make(map[*Buf[T]]struct{}),
		outstanding:  roaring64.New(),
	}
	if o.useMmap {
		if mmapSupported && isPointerFree(reflect.TypeOf(&zero).Elem()) && p.elemSize > 0 {
			p.useMmap = true
		} else {
			p.logger.Warn("mmap backing unavailable, using heap buffers",
				zap.Stringer("type", reflect.TypeOf(&zero).Elem()))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < initialCount; i++ {
		b := p.mintLocked()
		p.free = append(p.free, b)
		p.onFree[b] = struct{}{}
	}
	p.updateGaugesLocked()
	p.logger.Debug("buffer pool created",
		zap.Int("buffer length", bufferLength),
		zap.Int("initial count", initialCount),
		zap.Bool("mmap", p.useMmap),
	)
	return p
}

func isPointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return isPointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !isPointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	}
	return false
}

func (p *BufferAllocator[T]) mintLocked() *Buf[T] {
	b := &Buf[T]{
		id:    nextBufID.Add(1),
		owner: p,
	}
	if p.useMmap {
		data, mapped, err := mmapBuffer[T](p.bufferLength, p.elemSize)
		if err != nil {
			panic(err)
		}
		b.data, b.mapped = data, mapped
	} else {
		b.data = make([]T, p.bufferLength)
	}
	p.all = append(p.all, b)
	return b
}

// Allocate pops the most recently freed buffer, or mints a new one when the
// free list is empty. Contents of recycled buffers are not cleared.
func (p *BufferAllocator[T]) Allocate() *Buf[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		panic(moerr.NewInvalidStateNoCtx("buffer pool %s is closed", p.name))
	}

	var b *Buf[T]
	if n := len(p.free); n > 0 {
		b = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		delete(p.onFree, b)
	} else {
		b = p.mintLocked()
	}
	p.outstanding.Add(uint64(b.id))
	p.metrics.Allocate.Inc()
	p.updateGaugesLocked()
	return b
}

// Free returns b to the free list. Freeing a buffer that is already free is
// a no-op: identity, not id, decides membership.
func (p *BufferAllocator[T]) Free(b *Buf[T]) {
	if b == nil {
		return
	}
	if b.owner != p {
		panic(moerr.NewInvalidInputNoCtx("buffer %d does not belong to pool %s", b.id, p.name))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if _, ok := p.onFree[b]; ok {
		return
	}
	p.free = append(p.free, b)
	p.onFree[b] = struct{}{}
	p.outstanding.Remove(uint64(b.id))
	p.metrics.Free.Inc()
	p.updateGaugesLocked()
}

func (p *BufferAllocator[T]) updateGaugesLocked() {
	p.metrics.ReservedBytes.Set(float64(p.bytesOf(len(p.all))))
	p.metrics.FreeBytes.Set(float64(p.bytesOf(len(p.free))))
}

func (p *BufferAllocator[T]) bytesOf(count int) int64 {
	return int64(count) * int64(p.bufferLength) * int64(p.elemSize)
}

func (p *BufferAllocator[T]) Name() string {
	return p.name
}

// BufferLength is the number of T in every buffer.
func (p *BufferAllocator[T]) BufferLength() int {
	return p.bufferLength
}

// TotalBufferCount is the number of buffers ever minted.
func (p *BufferAllocator[T]) TotalBufferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

func (p *BufferAllocator[T]) FreeBufferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// TotalReservedSpace is the byte size of every buffer ever minted.
func (p *BufferAllocator[T]) TotalReservedSpace() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytesOf(len(p.all))
}

// TotalFreeSpace is the byte size of the free list.
func (p *BufferAllocator[T]) TotalFreeSpace() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytesOf(len(p.free))
}

// Outstanding returns the ids of buffers currently handed out.
func (p *BufferAllocator[T]) Outstanding() *roaring64.Bitmap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding.Clone()
}

// Close tears the pool down. Mapped buffers are unmapped, so no slice over
// any buffer of this pool may be used afterwards.
func (p *BufferAllocator[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	if !p.outstanding.IsEmpty() {
		p.logger.Warn("buffer pool closed with buffers outstanding",
			zap.Uint64("count", p.outstanding.GetCardinality()))
	}
	for _, b := range p.all {
		if b.mapped != nil {
			if err := munmapBuffer(b.mapped); err != nil {
				p.logger.Error("munmap buffer failed", zap.Int64("buffer", b.id), zap.Error(err))
			}
			b.mapped = nil
		}
		b.data = nil
	}
	p.logger.Debug("buffer pool closed", zap.Int("buffers", len(p.all)))
	p.all = nil
	p.free = nil
	p.onFree = nil
	p.updateGaugesLocked()
}
