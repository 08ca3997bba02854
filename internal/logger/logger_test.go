package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevel(t *testing.T) {
	log, err := New(Config{Level: "debug"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log, err = New(Config{Level: "invalid"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "smabot.log")
	var stdout bytes.Buffer
	log, err := New(Config{Level: "info", Format: "json", File: path, MaxSizeMB: 1}, &stdout)
	require.NoError(t, err)

	log.WithField("symbol", "GBPUSD").Info("cycle")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"symbol":"GBPUSD"`)
	assert.Contains(t, stdout.String(), `"msg":"cycle"`)
}
