package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerAdapter_FieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.WithField("account", "alice").Info("login started", "attempt", 1)
	l.WithFields(map[string]any{"state": "verify"}).Warn("probe failed", "err", errors.New("boom"))
	l.Debug("odd", "dangling")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "alice", entries[0].ContextMap()["account"])
	assert.EqualValues(t, 1, entries[0].ContextMap()["attempt"])

	assert.Equal(t, "verify", entries[1].ContextMap()["state"])
	assert.Equal(t, "boom", entries[1].ContextMap()["err"])

	assert.Equal(t, "dangling", entries[2].ContextMap()["extra"])
}

func TestNewLoggerAdapter_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLoggerAdapter("run: alice/1", Config{Level: "debug", Dir: dir})
	require.NoError(t, err)

	l.Info("hello", "k", "v")
	require.NoError(t, l.Close())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0].Name(), "_run__alice_1.log"), files[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "run", sanitize(""))
	assert.Equal(t, "a_b-c", sanitize("a b-c"))
	assert.Len(t, sanitize(strings.Repeat("x", 100)), 60)
}
