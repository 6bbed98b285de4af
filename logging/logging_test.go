package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "riskd.log")

	cfg := DefaultConfig()
	cfg.File = file
	logger, err := newLogger(cfg, &console)
	require.NoError(t, err)

	logger.Info("model loaded", zap.Int("trees", 100))
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	assert.Contains(t, console.String(), "model loaded")
	assert.NotContains(t, console.String(), "hidden at info level")

	payload, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(payload), `"msg":"model loaded"`), string(payload))
	assert.Contains(t, string(payload), `"trees":100`)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNewJSONConsole(t *testing.T) {
	var console bytes.Buffer
	logger, err := newLogger(Config{Level: "DEBUG", Format: "json"}, &console)
	require.NoError(t, err)
	logger.Debug("aligned", zap.Int("fallback", 9))
	assert.Contains(t, console.String(), `"fallback":9`)
}
