package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/adscope/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newBufferedLogger resets global state and initializes the logger against an in-memory sink.
func newBufferedLogger(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		buf := newBufferedLogger(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "adscope",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Named("session").Info("browser launched")
		Sync()

		out := buf.String()
		assert.Contains(t, out, ansi["green"]+"INFO"+ansiReset)
		assert.Contains(t, out, "adscope.session.")
		assert.Contains(t, out, "browser launched")
	})

	t.Run("json output is structured", func(t *testing.T) {
		buf := newBufferedLogger(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})
		GetLogger().Warn("refresh detected", zap.String("domain", "doubleclick.net"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "refresh detected", entry["msg"])
		assert.Equal(t, "doubleclick.net", entry["domain"])
	})

	t.Run("level filtering", func(t *testing.T) {
		buf := newBufferedLogger(t, config.LoggerConfig{Level: "warn", Format: "json"})
		GetLogger().Info("hidden")
		GetLogger().Error("shown")
		Sync()

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		buf := newBufferedLogger(t, config.LoggerConfig{Level: "loud", Format: "json"})
		GetLogger().Debug("debug line")
		GetLogger().Info("info line")
		Sync()

		assert.NotContains(t, buf.String(), "debug line")
		assert.Contains(t, buf.String(), "info line")
	})

	t.Run("file core receives entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "adscope.log")
		newBufferedLogger(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: path,
			MaxSize: 1,
		})
		GetLogger().Error("this goes to the file")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "this goes to the file")
	})

	t.Run("only the first call takes effect", func(t *testing.T) {
		buf := newBufferedLogger(t, config.LoggerConfig{Level: "info", ServiceName: "First", Format: "json"})
		first := GetLogger()

		var other bytes.Buffer
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&other))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.Empty(t, other.String())
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("returns the stored logger", func(t *testing.T) {
		newBufferedLogger(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestForCrawl(t *testing.T) {
	buf := newBufferedLogger(t, config.LoggerConfig{Level: "info", Format: "json"})
	ForCrawl(GetLogger(), "c-123", "https://example.com").Info("crawl started")
	Sync()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "c-123", entry["crawl_id"])
	assert.Equal(t, "https://example.com", entry["url"])
}

func TestSetLevel(t *testing.T) {
	buf := newBufferedLogger(t, config.LoggerConfig{Level: "info", Format: "json"})
	GetLogger().Debug("before")
	SetLevel(zapcore.DebugLevel)
	GetLogger().Debug("after")
	Sync()

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}

func TestPalette(t *testing.T) {
	p := levelPalette(config.ColorConfig{Warn: "yellow", Error: "no-such-color"})
	assert.Equal(t, ansi["yellow"], p[zapcore.WarnLevel])
	assert.Empty(t, p[zapcore.ErrorLevel], "unknown names print without color")
	assert.Empty(t, p[zapcore.InfoLevel])
}
