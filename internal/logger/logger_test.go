package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.log")
	log, err := New(Config{Level: "debug", Encoding: "json", OutputPath: out})
	require.NoError(t, err)

	log.Debug("turn generated", zap.Int("index", 3))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"turn generated"`)
	assert.Contains(t, string(data), `"level":"DEBUG"`)
	assert.Contains(t, string(data), `"index":3`)
}

func TestNew_FallsBackOnBadValues(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.log")
	log, err := New(Config{Level: "chatty", Encoding: "xml", OutputPath: out})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.DebugLevel))
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
}
