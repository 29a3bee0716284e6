package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("debug message")
	Info("info message")
	Warn("warn message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
}

func TestSetLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Debug("hidden")
	SetLevel("DEBUG")
	Debug("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("asset loaded", Locator("cdn/a.png"), Count(3))

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "asset loaded", entry["msg"])
	assert.Equal(t, "cdn/a.png", entry[KeyLocator])
	assert.Equal(t, float64(3), entry[KeyCount])
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("LOUD")
	Info("still info")
	Debug("still filtered")

	out := buf.String()
	assert.Contains(t, out, "still info")
	assert.NotContains(t, out, "still filtered")
}

func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, KeyLocator, Locator("x").Key)
	assert.Equal(t, KeyReason, Reason("timeout").Key)
	assert.Equal(t, KeyEvicted, Evicted(5).Key)
	assert.Equal(t, KeyDurationMs, DurationMs(1.5).Key)
	assert.Equal(t, KeyError, Err(assert.AnError).Key)
}
