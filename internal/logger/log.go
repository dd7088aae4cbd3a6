// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package logger wraps zap behind a small global-logger facade, the same
// shape as the teacher's logger/log package (InitGlobalLogger / GlobalLogger
// / package-level Infof-style helpers) but backed by zap's SugaredLogger
// rather than logrus.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.SugaredLogger

func init() {
	_ = Init(DefaultConfig())
}

// Init (re)initialises the global logger from cfg.
func Init(cfg *Config) error {
	zapCfg := zap.NewProductionConfig()
	if cfg.Formatter == ConsoleFormatter {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(toZapLevel(cfg.Level))
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build zap logger: %w", err)
	}
	global = l.Sugar()
	return nil
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case TraceLevel, DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Global returns the process-wide sugared logger.
func Global() *zap.SugaredLogger {
	if global == nil {
		panic("logger not initialized")
	}
	return global
}

// With returns a child logger carrying the given key/value pairs, the usual
// way per-scan or per-request loggers are derived (scan_id, request_id, ...).
func With(kv ...interface{}) *zap.SugaredLogger {
	return Global().With(kv...)
}

func Debugf(template string, args ...interface{}) { Global().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { Global().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { Global().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { Global().Errorf(template, args...) }

func Debug(args ...interface{}) { Global().Debug(args...) }
func Info(args ...interface{})  { Global().Info(args...) }
func Warn(args ...interface{})  { Global().Warn(args...) }
func Error(args ...interface{}) { Global().Error(args...) }
