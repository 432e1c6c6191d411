package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_WritesStructuredFileLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, "debug"))
	t.Cleanup(func() {
		mu.Lock()
		Logger, consoleLogger = zap.NewNop(), zap.NewNop()
		mu.Unlock()
	})

	LogInfo("price sent", zap.String("user_id", "u1"), zap.Int("interval", 5))
	LogError("delivery failed", zap.Error(errors.New("boom")))
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "INFO price sent")
	require.Contains(t, lines[0], `"user_id":"u1"`)
	require.Contains(t, lines[0], `"interval":5`)
	require.Contains(t, lines[1], "ERROR delivery failed")
	require.Contains(t, lines[1], `"error":"boom"`)
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	require.Error(t, Init(t.TempDir(), "loud"))
}

func TestLoggers_NopBeforeInit(t *testing.T) {
	require.NotPanics(t, func() {
		LogWarn("not initialised")
		LogSuccess("still quiet", zap.Int64("duration_ms", 12))
		LogResponse("req", 500, 3, zap.String("endpoint", "/x"))
	})
}
