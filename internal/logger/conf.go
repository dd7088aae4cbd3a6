// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package logger

// Level mirrors zap's level names so callers don't need to import zapcore
// directly for configuration.
type Level string

const (
	TraceLevel Level = "trace"
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Formatter controls the sink encoding.
type Formatter string

const (
	JSONFormatter    Formatter = "json"
	ConsoleFormatter Formatter = "console"
)

// Config configures the global logger.
type Config struct {
	Level     Level
	Formatter Formatter
}

// DefaultConfig returns the production default: info level, JSON encoding.
func DefaultConfig() *Config {
	return &Config{
		Level:     InfoLevel,
		Formatter: JSONFormatter,
	}
}
