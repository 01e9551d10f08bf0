// Copyright 2021 Matrix Origin
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

package logutil

import (
	"fmt"

	"go.uber.org/zap"
)

func Debug(msg string, fields ...zap.Field) {
	GetSkip1Logger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetSkip1Logger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetSkip1Logger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetSkip1Logger().Error(msg, fields...)
}

func Panic(msg string, fields ...zap.Field) {
	GetSkip1Logger().Panic(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetSkip1Logger().Fatal(msg, fields...)
}

// Debugf only use in develop mode
func Debugf(msg string, fields ...interface{}) {
	GetSkip1Logger().Debug(fmt.Sprintf(msg, fields...))
}

// Infof only use in develop mode
func Infof(msg string, fields ...interface{}) {
	GetSkip1Logger().Info(fmt.Sprintf(msg, fields...))
}

// Warnf only use in develop mode
func Warnf(msg string, fields ...interface{}) {
	GetSkip1Logger().Warn(fmt.Sprintf(msg, fields...))
}

// Errorf only use in develop mode
func Errorf(msg string, fields ...interface{}) {
	GetSkip1Logger().WithOptions(zap.AddStacktrace(zap.ErrorLevel)).Error(fmt.Sprintf(msg, fields...))
}

// StreamField tags a log entry with the stream it concerns.
func StreamField(id fmt.Stringer) zap.Field {
	return zap.Stringer("stream", id)
}

// PoolField tags a log entry with a buffer pool name.
func PoolField(name string) zap.Field {
	return zap.String("pool", name)
}
