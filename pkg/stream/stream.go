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

// Package stream stores time indexed data for simultaneous recording and
// looped playback.
//
// A DenseStream holds one sliver per time unit, appended by a real time
// producer and read by a consumer through an interval mapper. Once shut, the
// mapper folds ever advancing absolute time back onto the recorded content,
// honoring a fractional loop length. A SparseStream holds discretely
// timestamped slivers (video frames) on top of a dense frame stream.
//
// Every public method takes the stream's own lock. Streams call into their
// buffer pool while holding it, never the reverse.
package stream

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RobJellinghaus/Holofunk-sub000/pkg/common/moerr"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/container/holotime"
	"github.com/RobJellinghaus/Holofunk-sub000/pkg/logutil"
)

// Stream is the lifecycle surface shared by dense and sparse streams.
type Stream[D holotime.Domain] interface {
	ID() uuid.UUID
	InitialTime() holotime.Time[D]
	IsShut() bool
	// ContinuousDuration is defined only once the stream is shut.
	ContinuousDuration() (holotime.ContinuousDuration[D], bool)
	SliverSize() int
	Shut(final holotime.ContinuousDuration[D]) error
	Dispose()
}

// LoopPolicy selects how a shut dense stream wraps.
type LoopPolicy uint8

const (
	// LoopContinuous honors a fractional loop length: successive iterations
	// alternate between floor and ceil of the continuous duration.
	LoopContinuous LoopPolicy = iota
	// LoopSimple always wraps at the discrete duration.
	LoopSimple
)

func (p LoopPolicy) String() string {
	switch p {
	case LoopContinuous:
		return "continuous"
	case LoopSimple:
		return "simple"
	default:
		return "unknown"
	}
}

func ParseLoopPolicy(s string) (LoopPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continuous":
		return LoopContinuous, nil
	case "simple":
		return LoopSimple, nil
	}
	return LoopContinuous, moerr.NewInvalidArgNoCtx("loop policy", s)
}

type options struct {
	name          string
	initialTime   int64
	maxBuffered   int64
	maxFrameCount int
	policy        LoopPolicy
	logger        *zap.Logger
}

type Option func(*options)

// WithName labels the stream in logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func WithInitialTime[D holotime.Domain](t holotime.Time[D]) Option {
	return func(o *options) {
		o.initialTime = int64(t)
	}
}

// WithMaxBufferedDuration caps the data a dense stream retains. Zero means
// unbounded.
func WithMaxBufferedDuration[D holotime.Domain](d holotime.Duration[D]) Option {
	return func(o *options) {
		o.maxBuffered = int64(d)
	}
}

// WithMaxBufferedFrameCount caps the frames a sparse stream retains. Zero
// means unbounded.
func WithMaxBufferedFrameCount(n int) Option {
	return func(o *options) {
		o.maxFrameCount = n
	}
}

func WithLoopPolicy(p LoopPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

func WithStreamLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validateOptions(o options) error {
	if o.maxBuffered < 0 {
		return moerr.NewInvalidArgNoCtx("max buffered duration", o.maxBuffered)
	}
	if o.maxFrameCount < 0 {
		return moerr.NewInvalidArgNoCtx("max buffered frame count", o.maxFrameCount)
	}
	if o.policy != LoopContinuous && o.policy != LoopSimple {
		return moerr.NewInvalidArgNoCtx("loop policy", o.policy)
	}
	return nil
}

// base carries the state every stream kind shares. Its mutable fields are
// guarded by the owning stream's lock.
type base[D holotime.Domain] struct {
	id          uuid.UUID
	name        string
	sliverSize  int
	initialTime holotime.Time[D]
	shut        bool
	continuous  holotime.ContinuousDuration[D]
	disposed    bool
	logger      *zap.Logger
}

func newBase[D holotime.Domain](kind string, sliverSize int, o options) base[D] {
	id := uuid.New()
	logger := o.logger
	if logger == nil {
		logger = logutil.GetGlobalLogger()
	}
	logger = logger.Named("stream").With(
		zap.String("kind", kind),
		logutil.StreamField(id),
	)
	if o.name != "" {
		logger = logger.With(zap.String("name", o.name))
	}
	return base[D]{
		id:          id,
		name:        o.name,
		sliverSize:  sliverSize,
		initialTime: holotime.Time[D](o.initialTime),
		logger:      logger,
	}
}

func (b *base[D]) ID() uuid.UUID {
	return b.id
}

func (b *base[D]) SliverSize() int {
	return b.sliverSize
}

func (b *base[D]) label() string {
	if b.name != "" {
		return b.name
	}
	return b.id.String()
}

func (b *base[D]) checkWritable() error {
	if b.disposed {
		return moerr.NewStreamDisposedNoCtx(b.label())
	}
	if b.shut {
		return moerr.NewStreamShutNoCtx(b.label())
	}
	return nil
}

func (b *base[D]) checkShut(final holotime.ContinuousDuration[D]) error {
	if b.disposed {
		return moerr.NewStreamDisposedNoCtx(b.label())
	}
	if b.shut {
		return moerr.NewInvalidStateNoCtx("stream %s already shut", b.label())
	}
	if !(final.Float() > 0) {
		return moerr.NewInvalidArgNoCtx("final duration", final)
	}
	return nil
}

func (b *base[D]) markShut(final holotime.ContinuousDuration[D]) {
	b.shut = true
	b.continuous = final
}

func (b *base[D]) continuousDuration() (holotime.ContinuousDuration[D], bool) {
	return b.continuous, b.shut
}
