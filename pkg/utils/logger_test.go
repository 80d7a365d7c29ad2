package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("warn", "json", &buf).With("instrument", "NIFTY")

	l.Info("hidden %d", 1)
	l.Warn("⏸️ paused for %d minutes", 60)
	l.Error("failed: %v", "boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "NIFTY", entry["instrument"])
	assert.Equal(t, "⏸️ paused for 60 minutes", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestLogger_ParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, parseLevel("debug"))
	assert.Equal(t, ERROR, parseLevel("error"))
	assert.Equal(t, INFO, parseLevel("verbose"))
}

func TestLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter("debug", "console", &buf).Debug("bar %s", "09:20")
	assert.Contains(t, buf.String(), "bar 09:20")
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("dropped")
	l.With("k", "v").Info("dropped")
	assert.NotNil(t, l.Zerolog())
}
