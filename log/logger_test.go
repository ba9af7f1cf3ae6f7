/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_FileOutput(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = LevelWarn
	cfg.Output = OutputFile
	cfg.File.Path = filepath.Join(t.TempDir(), "siteapi-{{pid}}.log")

	logger, closeLogger := NewLogger(cfg)
	logger.With(String("request_id", "req-1")).Warn("upstream is slow", Int("attempt", 2))
	logger.Info("dropped by level")
	closeLogger()

	data, err := os.ReadFile(strings.ReplaceAll(cfg.File.Path, "{{pid}}", strconv.Itoa(os.Getpid())))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "upstream is slow", entry["msg"])
	require.Equal(t, "req-1", entry["request_id"])
	require.EqualValues(t, 2, entry["attempt"])
}

func TestLogfAdapter_AtLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = filepath.Join(t.TempDir(), "siteapi.log")

	logger, closeLogger := NewLogger(cfg)
	defer closeLogger()

	called := false
	logger.AtLevel(LevelDebug, func(LogFunc) { called = true })
	require.False(t, called)
	logger.AtLevel(LevelError, func(logFn LogFunc) {
		called = true
		logFn("delivery failed", Error(errors.New("connection refused")))
	})
	require.True(t, called)
}

func TestExpandFilePath(t *testing.T) {
	startTime := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	got := expandFilePath("/var/log/siteapi-{{starttime}}-{{pid}}.log", startTime)
	require.Equal(t, "/var/log/siteapi-202503011230-"+strconv.Itoa(os.Getpid())+".log", got)
}
