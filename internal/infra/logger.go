// Package infra holds process-wide plumbing shared by every component.
package infra

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Allow changing log level at run time.
	LoggerLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

type LoggerFactory struct {
	baseLogger *zap.Logger
}

// Create returns a child logger named after the component using it.
func (f *LoggerFactory) Create(name string) *zap.Logger {
	return f.baseLogger.Named(name)
}

// Sync flushes buffered entries; call it on shutdown.
func (f *LoggerFactory) Sync() {
	_ = f.baseLogger.Sync()
}

// NewLoggerFactory builds the console logger. level accepts zap level names
// ("debug", "info", ...); unknown values keep info.
func NewLoggerFactory(level string) *LoggerFactory {
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		LoggerLevel.SetLevel(lvl)
	}
	var cfg = zap.Config{
		Level:            LoggerLevel,
		Development:      false,
		Encoding:         "console",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "name",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}
	logger := zap.Must(cfg.Build())
	logger.Info("logger created")

	return &LoggerFactory{
		baseLogger: logger,
	}
}
