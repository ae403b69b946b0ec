package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connector.log")

	log, err := New(&Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("store throttled", zap.String("connector_id", "c-1"))
	require.NoError(t, Sync(log))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry), "exactly one JSON line expected")
	assert.Equal(t, "store throttled", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "c-1", entry["connector_id"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "caller")
}

func TestNew_Levels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"chatty":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		log, err := New(&Config{Level: in, Output: "stderr"})
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(want), in)
		if want > zapcore.DebugLevel {
			assert.False(t, log.Core().Enabled(want-1), in)
		}
	}
}

func TestNew_UnwritableFile(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
