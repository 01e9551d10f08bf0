// Copyright 2021 - 2022 Matrix Origin
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

package moerr

import (
	"context"
	"fmt"
	"runtime/debug"
)

const (
	// 0 - 99 is OK.
	Ok uint16 = 0

	// Group 1: Internal errors
	ErrStart    uint16 = 20100
	ErrInternal uint16 = 20101
	ErrNYI      uint16 = 20102

	// Group 2: numeric and functions
	ErrOutOfRange uint16 = 20201
	ErrInvalidArg uint16 = 20203

	// Group 3: invalid input
	ErrBadConfig    uint16 = 20300
	ErrInvalidInput uint16 = 20301

	// Group 4: unexpected state
	ErrInvalidState uint16 = 20400
	ErrSizeNotMatch uint16 = 20409

	// Group 9: streaming
	ErrStreamShut       uint16 = 20901
	ErrStreamDisposed   uint16 = 20902
	ErrNotAdjacent      uint16 = 20903
	ErrNonMonotonicTime uint16 = 20904
	ErrDurationMismatch uint16 = 20905

	// ErrEnd, the max value of MOErrorCode
	ErrEnd uint16 = 65535
)

type moErrorMsgItem struct {
	errorMsgOrFormat string
}

var errorMsgRefer = map[uint16]moErrorMsgItem{
	Ok: {"ok"},

	// Group 1: Internal errors
	ErrStart:    {"internal error: error code start"},
	ErrInternal: {"internal error: %s"},
	ErrNYI:      {"%s is not yet implemented"},

	// Group 2: numeric and functions
	ErrOutOfRange: {"out of range %s: %s"},
	ErrInvalidArg: {"invalid argument %s, bad value %s"},

	// Group 3: invalid input
	ErrBadConfig:    {"invalid configuration: %s"},
	ErrInvalidInput: {"invalid input: %s"},

	// Group 4: unexpected state
	ErrInvalidState: {"invalid state %s"},
	ErrSizeNotMatch: {"size not match: %s"},

	// Group 9: streaming
	ErrStreamShut:       {"stream %s is shut"},
	ErrStreamDisposed:   {"stream %s is disposed"},
	ErrNotAdjacent:      {"slices are not adjacent: %s"},
	ErrNonMonotonicTime: {"time %s precedes last appended time %s"},
	ErrDurationMismatch: {"discrete duration %d does not match ceiling of final duration %v"},

	// Group End: max value of MOErrorCode
	ErrEnd: {"internal error: end of errcode code"},
}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	var err *Error
	item, has := errorMsgRefer[code]
	if !has {
		panic(NewInternalError(ctx, "not exist MOErrorCode: %d", code))
	}
	if len(args) == 0 {
		err = &Error{
			code:    code,
			message: item.errorMsgOrFormat,
		}
	} else {
		err = &Error{
			code:    code,
			message: fmt.Sprintf(item.errorMsgOrFormat, args...),
		}
	}
	return err
}

type Error struct {
	code    uint16
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func IsMoErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}

	me, ok := e.(*Error)
	if !ok {
		// This is not a moerr
		return false
	}
	return me.code == rc
}

// ConvertPanicError converts a runtime panic to internal error.
func ConvertPanicError(ctx context.Context, v interface{}) *Error {
	if e, ok := v.(*Error); ok {
		return e
	}
	return newError(ctx, ErrInternal, fmt.Sprintf("panic %v: %s", v, debug.Stack()))
}

// ConvertGoError converts a go error into mo error.
// Note here we must return error, because nil error
// is the same as nil *Error -- Go strangeness.
func ConvertGoError(ctx context.Context, err error) error {
	// nil is nil
	if err == nil {
		return err
	}

	// already a moerr, return it as is
	if _, ok := err.(*Error); ok {
		return err
	}

	return NewInternalError(ctx, "convert go error to mo error %v", err)
}

func Context() context.Context {
	return context.Background()
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInternal, xmsg)
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNYI, xmsg)
}

func NewOutOfRange(ctx context.Context, typ string, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrOutOfRange, typ, xmsg)
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, arg, fmt.Sprintf("%v", val))
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrBadConfig, xmsg)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidInput, xmsg)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidState, xmsg)
}

func NewSizeNotMatch(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrSizeNotMatch, xmsg)
}

func NewStreamShut(ctx context.Context, stream string) *Error {
	return newError(ctx, ErrStreamShut, stream)
}

func NewStreamDisposed(ctx context.Context, stream string) *Error {
	return newError(ctx, ErrStreamDisposed, stream)
}

func NewNotAdjacent(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNotAdjacent, xmsg)
}

func NewNonMonotonicTime(ctx context.Context, t, last fmt.Stringer) *Error {
	return newError(ctx, ErrNonMonotonicTime, t.String(), last.String())
}

func NewDurationMismatch(ctx context.Context, discrete int64, final float64) *Error {
	return newError(ctx, ErrDurationMismatch, discrete, final)
}

// The NoCtx variants are used on paths that never carry a context, which is
// every real-time stream operation.

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(Context(), msg, args...)
}

func NewOutOfRangeNoCtx(typ string, msg string, args ...any) *Error {
	return NewOutOfRange(Context(), typ, msg, args...)
}

func NewInvalidArgNoCtx(arg string, val any) *Error {
	return NewInvalidArg(Context(), arg, val)
}

func NewBadConfigNoCtx(msg string, args ...any) *Error {
	return NewBadConfig(Context(), msg, args...)
}

func NewInvalidInputNoCtx(msg string, args ...any) *Error {
	return NewInvalidInput(Context(), msg, args...)
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return NewInvalidState(Context(), msg, args...)
}

func NewSizeNotMatchNoCtx(msg string, args ...any) *Error {
	return NewSizeNotMatch(Context(), msg, args...)
}

func NewStreamShutNoCtx(stream string) *Error {
	return NewStreamShut(Context(), stream)
}

func NewStreamDisposedNoCtx(stream string) *Error {
	return NewStreamDisposed(Context(), stream)
}

func NewNotAdjacentNoCtx(msg string, args ...any) *Error {
	return NewNotAdjacent(Context(), msg, args...)
}

func NewNonMonotonicTimeNoCtx(t, last fmt.Stringer) *Error {
	return NewNonMonotonicTime(Context(), t, last)
}

func NewDurationMismatchNoCtx(discrete int64, final float64) *Error {
	return NewDurationMismatch(Context(), discrete, final)
}
