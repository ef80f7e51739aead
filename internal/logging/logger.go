// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the console level and an optional JSON log file.
type Config struct {
	Development bool
	Level       string
	File        string
	FileLevel   string
}

// New builds a zap.Logger writing to stderr and, when File is set, to a
// JSON file with its own level (info by default). The returned close func
// flushes the logger and releases the file; it is never nil.
func New(cfg Config) (*zap.Logger, func(), error) {
	consoleLevel, err := parseLevel(cfg.Level, zapcore.WarnLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("console level: %w", err)
	}

	var consoleEncoder zapcore.Encoder
	if cfg.Development {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.TimeKey = "ts"
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(ec)
	} else {
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "ts"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewJSONEncoder(ec)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleLevel),
	}

	closeFile := func() {}
	if cfg.File != "" {
		fileLevel, err := parseLevel(cfg.FileLevel, zapcore.InfoLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("file level: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		sink, closeSink, err := zap.Open(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closeFile = closeSink
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "ts"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(ec), sink, fileLevel))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.DPanicLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...)
	return logger, func() {
		_ = logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
		closeFile()
	}, nil
}

// LevelForVerbosity maps a -v count to a console level: none is warn, one
// is info, more is debug.
func LevelForVerbosity(count int) string {
	switch {
	case count <= 0:
		return zapcore.WarnLevel.String()
	case count == 1:
		return zapcore.InfoLevel.String()
	default:
		return zapcore.DebugLevel.String()
	}
}

func parseLevel(raw string, fallback zapcore.Level) (zapcore.Level, error) {
	if raw == "" {
		return fallback, nil
	}
	lvl, err := zapcore.ParseLevel(raw)
	if err != nil {
		return fallback, fmt.Errorf("parse level %q: %w", raw, err)
	}
	return lvl, nil
}
