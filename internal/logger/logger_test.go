package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFileOutput(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "stackpilot.log")

	l, err := New(Config{
		Level:   "debug",
		File:    logFile,
		Console: false,
	})
	require.NoError(t, err)
	defer l.Close()

	zl := l.GetZerolog()
	zl.Info().Str("component", "test").Msg("hello")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestNewCreatesLogDirectory(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "nested", "logs", "stackpilot.log")

	l, err := New(Config{Level: "info", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(filepath.Dir(logFile))
	assert.NoError(t, err)
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "stackpilot.log")

	l, err := New(Config{Level: "chatty", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	zl := l.GetZerolog()
	zl.Debug().Msg("should be filtered")
	zl.Info().Msg("should appear")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be filtered")
	assert.Contains(t, string(data), "should appear")
}

func TestNewRedactsFileOutput(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "stackpilot.log")

	l, err := New(Config{
		Level:     "info",
		File:      logFile,
		Redaction: true,
	})
	require.NoError(t, err)
	defer l.Close()

	zl := l.GetZerolog()
	zl.Info().Str("auth", "Bearer eyJhbGciOiJSUzI1NiJ9.payload.sig").Msg("exchange done")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "eyJhbGciOiJSUzI1NiJ9")
	assert.Contains(t, string(data), "[REDACTED]")
}

func TestCloseWithoutFile(t *testing.T) {
	l, err := New(Config{Level: "info", Console: true})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Empty(t, cfg.File)
}

func TestLoggerAppendsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "stackpilot.log")

	first, err := New(Config{Level: "info", File: logFile})
	require.NoError(t, err)
	firstZl := first.GetZerolog()
	firstZl.Info().Msg("first run")
	require.NoError(t, first.Close())

	second, err := New(Config{Level: "info", File: logFile})
	require.NoError(t, err)
	secondZl := second.GetZerolog()
	secondZl.Info().Msg("second run")
	require.NoError(t, second.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), "first run")
	assert.Contains(t, string(data), "second run")
}
