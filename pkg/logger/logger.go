// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the process-wide logging capability for sfmcp.
//
// All output goes to stderr: when the server runs on the stdio transport,
// stdout belongs to the MCP framing and must never receive log lines.
// The level is adjustable at runtime via SetLevel, which accepts the
// syslog-style names used by the MCP logging/setLevel request.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// singleton is the package-level logger created by Initialize.
// Accessed atomically to be safe for concurrent use across goroutines.
var singleton atomic.Pointer[zap.SugaredLogger]

// level is the shared atomic level backing every logger built here, so
// SetLevel takes effect without rebuilding the logger.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func init() {
	// Set a default logger so callers that skip Initialize() don't panic.
	singleton.Store(build(false))
}

func build(structured bool) *zap.SugaredLogger {
	var encoder zapcore.Encoder
	if structured {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core).Sugar()
}

func get() *zap.SugaredLogger {
	return singleton.Load()
}

// Initialize creates and configures the singleton logger.
// If the UNSTRUCTURED_LOGS env var parses as false, output is JSON;
// the default is human-readable console output on stderr.
func Initialize() {
	structured := false
	if v, ok := os.LookupEnv("UNSTRUCTURED_LOGS"); ok {
		structured = strings.EqualFold(v, "false") || v == "0"
	}
	singleton.Store(build(structured))
}

// Set replaces the singleton logger. This is intended for tests that need
// to capture log output; production code should use Initialize instead.
func Set(l *zap.SugaredLogger) {
	singleton.Store(l)
}

// SetLevel adjusts the minimum level using the syslog-style names carried
// by the MCP logging/setLevel request. Unknown names are an error and the
// current level is retained.
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// ParseLevel maps the eight syslog-style level names onto zap levels.
// zap has no distinct notice/alert/emergency severities; the mapping
// collapses them onto the nearest zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "notice":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical":
		return zapcore.DPanicLevel, nil
	case "alert", "emergency":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Debug logs a message at debug level using the singleton logger.
func Debug(msg string) {
	get().Debug(msg)
}

// Debugf logs a formatted message at debug level using the singleton logger.
func Debugf(msg string, args ...any) {
	get().Debugf(msg, args...)
}

// Debugw logs a message at debug level with additional key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	get().Debugw(msg, keysAndValues...)
}

// Info logs a message at info level using the singleton logger.
func Info(msg string) {
	get().Info(msg)
}

// Infof logs a formatted message at info level using the singleton logger.
func Infof(msg string, args ...any) {
	get().Infof(msg, args...)
}

// Infow logs a message at info level with additional key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	get().Infow(msg, keysAndValues...)
}

// Warn logs a message at warning level using the singleton logger.
func Warn(msg string) {
	get().Warn(msg)
}

// Warnf logs a formatted message at warning level using the singleton logger.
func Warnf(msg string, args ...any) {
	get().Warnf(msg, args...)
}

// Warnw logs a message at warning level with additional key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	get().Warnw(msg, keysAndValues...)
}

// Error logs a message at error level using the singleton logger.
func Error(msg string) {
	get().Error(msg)
}

// Errorf logs a formatted message at error level using the singleton logger.
func Errorf(msg string, args ...any) {
	get().Errorf(msg, args...)
}

// Errorw logs a message at error level with additional key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	get().Errorw(msg, keysAndValues...)
}

// Fatalf logs a formatted message at fatal level and exits the program.
func Fatalf(msg string, args ...any) {
	get().Fatalf(msg, args...)
}
