// Package logging builds the zap loggers used by the command line.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing to w at level ("debug", "info", ...).
// format "json" selects the production JSON encoder; anything else the
// console encoder.
func New(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl := zapcore.WarnLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder // Human-readable timestamps

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(config)
	} else {
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(config)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(lvl))
	return zap.New(core), nil
}

// Verbose returns the level implied by the --verbose flag, or fallback.
func Verbose(verbose bool, fallback string) string {
	if verbose {
		return "debug"
	}
	return fallback
}
