package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("sold", slog.Int("tickets", 3))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "sold", line["msg"])
	assert.EqualValues(t, 3, line["tickets"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, line["time"])
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "pretty").Debug("drawn", slog.String("winner", "0xabc"), slog.String("empty", ""))
	out := buf.String()
	assert.Contains(t, out, "drawn")
	assert.Contains(t, out, "0xabc")
	assert.NotContains(t, out, "empty=")
}

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 42_000_000, time.FixedZone("x", 3600))
	assert.Equal(t, "2024-03-09T06:05:01.042Z", formatRFC3339Millis(ts))
}
