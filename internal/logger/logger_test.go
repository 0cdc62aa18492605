package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gotest.tools/v3/assert"

	"github.com/nikbrunner/bmsort/internal/logger"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, logger.ParseLevel(in), want, in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Level: "warn", Output: &buf})

	l.Info().Msg("hidden")
	l.Warn().Str("phase", "clear").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, len(lines), 1)

	var entry map[string]any
	assert.NilError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, entry["message"], "shown")
	assert.Equal(t, entry["phase"], "clear")
	assert.Equal(t, entry["service"], "bmsort")
}

func TestInit_SetsGlobal(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	logger.Init(logger.Config{Level: "debug", Pretty: true, Output: &buf})
	log.Debug().Msg("hello")
	assert.Assert(t, strings.Contains(buf.String(), "hello"))
}
