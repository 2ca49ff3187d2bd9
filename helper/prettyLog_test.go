package helper

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPrettyHandler(t *testing.T) {
	t.Run("Create PrettyHandler with empty options", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		assert.NotNil(t, handler, "Expected NewPrettyHandler to return a non-nil handler")
		assert.NotNil(t, handler.Handler, "Expected handler to have a non-nil Handler field")
		assert.NotNil(t, handler.l, "Expected handler to have a non-nil logger field")
	})

	t.Run("Level option filters records", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{Level: slog.LevelWarn},
		})

		assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo), "Expected info to be disabled")
		assert.True(t, handler.Enabled(context.Background(), slog.LevelError), "Expected error to be enabled")
	})
}

func TestPrettyHandlerHandle(t *testing.T) {
	ctx := context.Background()

	levels := []struct {
		level  slog.Level
		prefix string
		attr   slog.Attr
		value  string
	}{
		{slog.LevelDebug, "DEBUG:", slog.String("stage", "fetch"), "fetch"},
		{slog.LevelInfo, "INFO:", slog.Int("results", 42), "42"},
		{slog.LevelWarn, "WARN:", slog.Bool("fellBack", true), "true"},
		{slog.LevelError, "ERROR:", slog.String("error", "index unavailable"), "index unavailable"},
	}
	for _, tc := range levels {
		t.Run("Handle "+tc.prefix+" record", func(t *testing.T) {
			var buf bytes.Buffer
			handler := NewPrettyHandler(&buf, PrettyHandlerOptions{
				SlogOpts: slog.HandlerOptions{Level: slog.LevelDebug},
			})

			record := slog.NewRecord(time.Now(), tc.level, "query finished", 0)
			record.AddAttrs(tc.attr)

			err := handler.Handle(ctx, record)
			assert.NoError(t, err, "Expected Handle to not return an error")

			output := buf.String()
			assert.Contains(t, output, tc.prefix, "Expected output to contain the level")
			assert.Contains(t, output, "query finished", "Expected output to contain the message")
			assert.Contains(t, output, tc.attr.Key, "Expected output to contain the attribute key")
			assert.Contains(t, output, tc.value, "Expected output to contain the attribute value")
		})
	}

	t.Run("Record without attributes prints an empty object", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		err := handler.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "cache invalidated", 0))
		assert.NoError(t, err, "Expected Handle to not return an error")
		assert.Contains(t, buf.String(), "{}", "Expected output to contain empty JSON object for attributes")
	})

	t.Run("Timestamp uses milliseconds", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		err := handler.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "tick", 0))
		assert.NoError(t, err, "Expected Handle to not return an error")
		assert.Regexp(t, `\[\d{2}:\d{2}:\d{2}\.\d{3}\]`, buf.String(), "Expected output to contain properly formatted timestamp")
	})

	t.Run("Nested attribute values are encoded", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		record := slog.NewRecord(time.Now(), slog.LevelInfo, "scope resolved", 0)
		record.AddAttrs(slog.Any("chain", []string{"project:api", "org:acme", "global"}))

		err := handler.Handle(ctx, record)
		assert.NoError(t, err, "Expected Handle to not return an error")
		assert.Contains(t, buf.String(), "org:acme", "Expected output to contain the nested value")
	})
}

func TestPrettyHandlerWithAttrs(t *testing.T) {
	t.Run("Attributes from With are printed on every record", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(NewPrettyHandler(&buf, PrettyHandlerOptions{}))

		stageLogger := logger.With(slog.String("component", "pipeline"))
		stageLogger.Info("stage finished", slog.String("stage", "fetch"))

		output := buf.String()
		assert.Contains(t, output, "stage finished", "Expected output to contain the message")
		assert.Contains(t, output, "pipeline", "Expected output to contain the inherited attribute")
		assert.Contains(t, output, "fetch", "Expected output to contain the record attribute")
	})

	t.Run("NewLogger respects the level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, slog.LevelWarn)

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}
