/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// levelToZap converts a named level into the zap level that produces the
// matching logr verbosity under zapr's V()-to-level mapping.
func levelToZap(level string) zapcore.Level {
	switch level {
	case ErrorLevelString:
		return zapcore.ErrorLevel
	case WarningLevelString, InfoLevelString:
		return zapcore.InfoLevel
	case DebugLevelString:
		return zapcore.DebugLevel
	case TraceLevelString:
		return zapcore.DebugLevel - 1
	default:
		return zapcore.InfoLevel
	}
}

// NewZapLogger builds the process logger from a named level and destination.
// An empty destination logs to stderr.
func NewZapLogger(level, destination string) logr.Logger {
	if !LevelValid(level) {
		level = DefaultLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(levelToZap(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if destination != "" {
		cfg.OutputPaths = []string{destination}
		cfg.ErrorOutputPaths = []string{destination}
	}

	zapLog, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return logr.Discard()
	}

	return zapr.NewLogger(zapLog)
}
