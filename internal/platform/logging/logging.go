// Package logging builds the structured zap logger shared by ledger
// processes.
package logging

import (
	"fmt"
	"log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a zap logger at level writing in format ("json" or
// "console"). An empty level means info.
func New(level, format string) (*zap.Logger, error) {
	var atomic zap.AtomicLevel
	if strings.TrimSpace(level) == "" {
		atomic = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	} else {
		parsed, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		atomic = parsed
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		cfg = zap.NewProductionConfig()
	case FormatConsole:
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	cfg.Level = atomic
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// StdLogger adapts logger for libraries that expect a *log.Logger.
func StdLogger(logger *zap.Logger, prefix string) *log.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	std := zap.NewStdLog(logger.Named(prefix))
	return std
}
