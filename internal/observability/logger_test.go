package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(zapcore.AddSync(&buf), "warn", FormatJSON)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("Prefix failed", zap.String("prefix", "00aa"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Prefix failed", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "00aa", entry["prefix"])
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(zapcore.AddSync(&buf), "DEBUG", "")
	require.NoError(t, err)

	logger.Debug("Listing complete", zap.Int("objects", 3))
	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "Listing complete")
	assert.Contains(t, out, `"objects": 3`)
}

func TestNewLogger_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{name: "bad level", level: "loud", format: FormatConsole},
		{name: "bad format", level: "info", format: "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLogger(zapcore.AddSync(&bytes.Buffer{}), tt.level, tt.format)
			assert.Error(t, err)
		})
	}
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	InitCLILogger("test", false)
	require.NotNil(t, CLILogger)
	assert.False(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	InitCLILogger("test", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))
}

func TestInit_RejectsBadLevel(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	require.Error(t, Init("test", "nope", FormatJSON))
	assert.Same(t, orig, CLILogger)
}
