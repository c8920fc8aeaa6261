// Package observability holds the process-wide CLI logger.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// CLILogger is the logger used by commands. It discards everything until
// Init or InitCLILogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger installs a console logger on stderr at info level, or debug
// when verbose is set.
func InitCLILogger(appName string, verbose bool) {
	level := "info"
	if verbose {
		level = "debug"
	}
	if err := Init(appName, level, FormatConsole); err != nil {
		CLILogger = zap.NewNop()
	}
}

// Init installs a logger on stderr with the given level and format.
func Init(appName, level, format string) error {
	logger, err := NewLogger(zapcore.Lock(os.Stderr), level, format)
	if err != nil {
		return err
	}
	if appName != "" {
		logger = logger.Named(appName)
	}
	CLILogger = logger
	return nil
}

// NewLogger builds a logger writing to w.
func NewLogger(w zapcore.WriteSyncer, level, format string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", FormatConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	case FormatJSON:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	default:
		return nil, fmt.Errorf("unknown log format %q (want console or json)", format)
	}

	return zap.New(zapcore.NewCore(enc, w, lvl)), nil
}

// ParseLevel accepts zap level names, case-insensitively. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q: %w", level, err)
	}
	return lvl, nil
}

// Sync flushes CLILogger. Errors from syncing a terminal are ignored.
func Sync() {
	_ = CLILogger.Sync()
}
