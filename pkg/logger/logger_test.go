package logger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHandler records rendered log lines for assertions
type captureHandler struct {
	logs  *[]string
	attrs []slog.Attr
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, record slog.Record) error {
	parts := []string{record.Message}
	for _, attr := range h.attrs {
		parts = append(parts, attr.Key+"="+attr.Value.String())
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, attr.Key+"="+attr.Value.String())
		return true
	})
	*h.logs = append(*h.logs, strings.Join(parts, " "))
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &captureHandler{logs: h.logs, attrs: combined}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func captureLogger() (Logger, *[]string) {
	var logs []string
	return &SlogLogger{logger: slog.New(&captureHandler{logs: &logs})}, &logs
}

func TestNew_Success(t *testing.T) {
	logger := New("test-package")

	assert.NotNil(t, logger)
	assert.IsType(t, &SlogLogger{}, logger)
}

func TestNewWithConfig_Formats(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatText} {
		logger := NewWithConfig(Config{
			Name:   "test-service",
			Format: format,
			Level:  slog.LevelDebug,
		})
		assert.NotNil(t, logger)
	}
}

func TestErr_ReturnsOriginalError(t *testing.T) {
	logger, logs := captureLogger()

	cause := errors.New("connection refused")
	err := logger.Err("failed to reach service", cause, "host", "example.com")

	assert.Equal(t, cause, err)
	require.Len(t, *logs, 1)
	assert.Contains(t, (*logs)[0], "failed to reach service")
	assert.Contains(t, (*logs)[0], "host=example.com")
}

func TestErrMsg_CreatesError(t *testing.T) {
	logger, logs := captureLogger()

	err := logger.ErrMsg("something went wrong")

	require.Error(t, err)
	assert.Equal(t, "something went wrong", err.Error())
	assert.Len(t, *logs, 1)
}

func TestError_ReturnsLoggedMessageAsError(t *testing.T) {
	logger, logs := captureLogger()

	err := logger.Error("invariant broken", "id", "abc")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invariant broken")
	assert.Len(t, *logs, 1)
}

func TestFunction_AddsScope(t *testing.T) {
	logger, logs := captureLogger()

	logger.Function("DoThing").Info("done")

	require.Len(t, *logs, 1)
	assert.Contains(t, (*logs)[0], "DoThing")
}

func TestTraceIDRoundTripsThroughContext(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "trace-123")
	assert.Equal(t, "trace-123", TraceIDFromContext(ctx))

	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestTraceFromContext_AttachesTraceID(t *testing.T) {
	logger, logs := captureLogger()

	ctx := ContextWithTraceID(context.Background(), "trace-123")
	logger.TraceFromContext(ctx).Info("traced message")

	require.Len(t, *logs, 1)
	assert.Contains(t, (*logs)[0], "trace-123")
}
