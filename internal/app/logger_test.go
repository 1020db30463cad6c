package app

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "bogus", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run("level "+tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, parseLevel(tc.in))
		})
	}
}

func TestNewLogger_Format(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buf := &SafeBuffer{}
		logger := newLogger("info", "json", buf)
		logger.Info("hello")
		assert.True(t, strings.HasPrefix(buf.String(), "{"), "json handler emits objects")
	})

	t.Run("text", func(t *testing.T) {
		buf := &SafeBuffer{}
		logger := newLogger("info", "text", buf)
		logger.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("level filtering", func(t *testing.T) {
		buf := &SafeBuffer{}
		logger := newLogger("warn", "text", buf)
		logger.Info("quiet")
		logger.Warn("loud")
		assert.NotContains(t, buf.String(), "quiet")
		assert.Contains(t, buf.String(), "loud")
	})
}
