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

// Package log wraps a logr.Logger so the rest of the tree never imports
// zap directly.
package log

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

const (
	// ErrorLevelString is the string representation of the error level
	ErrorLevelString = "error"
	// WarningLevelString is the string representation of the warning level
	WarningLevelString = "warning"
	// InfoLevelString is the string representation of the info level
	InfoLevelString = "info"
	// DebugLevelString is the string representation of the debug level
	DebugLevelString = "debug"
	// TraceLevelString is the string representation of the trace level
	TraceLevelString = "trace"

	// DefaultLevel is used when an invalid level is requested
	DefaultLevel = InfoLevelString
)

// logr's V() levels increase verbosity; info is 0 and each named level below
// it adds one step, matching the --log-level flag semantics. zapr maps V(n)
// onto zap level -n, so debug lands on zap's DebugLevel and trace one below.
const (
	infoVerbosity = iota
	debugVerbosity
	traceVerbosity
)

var (
	mu     sync.RWMutex
	logger = logr.Discard()
)

// SetLogger installs the process-wide logger
func SetLogger(l logr.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// GetLogger returns the process-wide logger
func GetLogger() logr.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// FromContext extracts a logger from the context, falling back to the
// process-wide one
func FromContext(ctx context.Context) logr.Logger {
	if l, err := logr.FromContext(ctx); err == nil {
		return l
	}
	return GetLogger()
}

// IntoContext attaches a logger to a context
func IntoContext(ctx context.Context, l logr.Logger) context.Context {
	return logr.NewContext(ctx, l)
}

// Error logs an error-level message
func Error(err error, msg string, keysAndValues ...interface{}) {
	GetLogger().Error(err, msg, keysAndValues...)
}

// Warning logs a warning-level message (info verbosity, "warning" named level)
func Warning(msg string, keysAndValues ...interface{}) {
	GetLogger().V(infoVerbosity).Info(msg, keysAndValues...)
}

// Info logs an info-level message
func Info(msg string, keysAndValues ...interface{}) {
	GetLogger().V(infoVerbosity).Info(msg, keysAndValues...)
}

// Debug logs a debug-level message
func Debug(msg string, keysAndValues ...interface{}) {
	GetLogger().V(debugVerbosity).Info(msg, keysAndValues...)
}

// Trace logs a trace-level message
func Trace(msg string, keysAndValues ...interface{}) {
	GetLogger().V(traceVerbosity).Info(msg, keysAndValues...)
}

// WithName returns a named child of the process-wide logger
func WithName(name string) logr.Logger {
	return GetLogger().WithName(name)
}

// WithValues returns a child of the process-wide logger carrying the given
// key/value pairs
func WithValues(keysAndValues ...interface{}) logr.Logger {
	return GetLogger().WithValues(keysAndValues...)
}

// LevelValid reports whether the given level name is recognized
func LevelValid(level string) bool {
	switch level {
	case ErrorLevelString, WarningLevelString, InfoLevelString, DebugLevelString, TraceLevelString:
		return true
	default:
		return false
	}
}
