package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "nonsense", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.log")
	log, err := New(Config{Level: "debug", Format: "json", OutputFile: path})
	require.NoError(t, err)

	log.Debug("txn begin")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"txn begin"`)
	assert.Contains(t, string(data), `"service":"tiny_kv"`)
}

func TestNewBadFile(t *testing.T) {
	_, err := New(Config{OutputFile: filepath.Join(t.TempDir(), "missing", "store.log")})
	assert.Error(t, err)
}
