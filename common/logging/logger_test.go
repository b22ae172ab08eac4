package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-systems/vigil/common/middleware"
)

// capture builds a Logger writing JSON to a buffer so attributes can be
// inspected.
func capture(level slog.Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler)}, buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewFormats(t *testing.T) {
	assert.NotNil(t, New(slog.LevelInfo, "json"))
	assert.NotNil(t, New(slog.LevelDebug, "text"))
	assert.NotNil(t, New(slog.LevelError, ""))
}

func TestLoggerRespectsLevel(t *testing.T) {
	logger, buf := capture(slog.LevelWarn)

	logger.InfoContext(context.Background(), "quiet")
	assert.Empty(t, buf.String())

	logger.WarnContext(context.Background(), "loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestWithContextAddsRequestID(t *testing.T) {
	logger, buf := capture(slog.LevelInfo)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-777")
	logger.InfoContext(ctx, "handling request")

	entry := lastEntry(t, buf)
	assert.Equal(t, "req-777", entry["request_id"])
}

func TestWithContextWithoutRequestID(t *testing.T) {
	logger, buf := capture(slog.LevelInfo)

	logger.InfoContext(context.Background(), "no request")

	entry := lastEntry(t, buf)
	_, present := entry["request_id"]
	assert.False(t, present)
}

func TestWith(t *testing.T) {
	logger, buf := capture(slog.LevelInfo)

	logger.With("service", "collector").InfoContext(context.Background(), "started")

	entry := lastEntry(t, buf)
	assert.Equal(t, "collector", entry["service"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "bogus", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "level %q", tt.input)
	}
}
