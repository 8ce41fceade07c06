package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexStarov/escpos-dotimage/config"
)

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "escpos.log")
	logger, err := New(config.LoggingConfig{Level: INFO, Format: "json", Output: path, MaxSize: 1})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("job finished")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"job finished"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewRejectsLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "verbose"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{DEBUG, INFO, WARN, ERROR, ""} {
		_, err := parseLevel(s)
		assert.NoError(t, err, s)
	}
}
