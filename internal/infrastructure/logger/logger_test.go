package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.input), tt.input)
	}
}

func TestSetup_ReturnsUsableLogger(t *testing.T) {
	log := Setup("error", "text")
	assert.NotNil(t, log)
	assert.False(t, log.Enabled(nil, slog.LevelInfo))
	assert.True(t, log.Enabled(nil, slog.LevelError))
}

func TestNamedAndWithTrace(t *testing.T) {
	log := Setup("info", "json")

	named := Named(log, "gateway")
	assert.NotNil(t, named)

	traced := WithTrace(named, "trace-123")
	assert.NotNil(t, traced)
	// Child loggers must not replace the shared default.
	assert.Equal(t, slog.Default(), log)
}
