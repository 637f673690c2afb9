package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf, ServiceName: "pdfengine"})

	logger.With(String("op", "merge")).Warn("page failed",
		Int("page", 3),
		Float("ratio", 0.5),
		Duration("elapsed", 2*time.Second),
		Error("error", errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "page failed", entry["message"])
	assert.Equal(t, "pdfengine", entry["service"])
	assert.Equal(t, "merge", entry["op"])
	assert.Equal(t, float64(3), entry["page"])
	assert.Equal(t, "boom", entry["error"])
}

func TestZerologHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})
	logger.Info("hidden")
	logger.Debug("hidden")
	assert.Zero(t, buf.Len())
	logger.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.With(String("k", "v")).Info("nothing")
	assert.IsType(t, NopLogger{}, OrNop(nil))
}
