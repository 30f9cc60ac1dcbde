package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level LogLevel, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: level, Output: &buf, Format: format})
	require.NoError(t, err)
	return logger, &buf
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	t.Run("quiet drops info", func(t *testing.T) {
		logger, buf := newBufferLogger(t, LogLevelQuiet, "text")
		logger.Info("routine message")
		assert.Empty(t, buf.String())

		logger.Error("something broke")
		assert.Contains(t, buf.String(), "something broke")
	})

	t.Run("normal drops debug", func(t *testing.T) {
		logger, buf := newBufferLogger(t, LogLevelNormal, "text")
		logger.Debug("noise")
		assert.Empty(t, buf.String())

		logger.Info("routine message")
		assert.Contains(t, buf.String(), "routine message")
	})

	t.Run("verbose keeps debug", func(t *testing.T) {
		logger, buf := newBufferLogger(t, LogLevelVerbose, "text")
		logger.Debug("detail")
		assert.Contains(t, buf.String(), "detail")
	})
}

func TestNewLogger_JSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")
	logger.WithField("operation", "archive_create").Info("Archive created")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Archive created", entry["msg"])
	assert.Equal(t, "archive_create", entry["operation"])
	assert.Equal(t, "info", entry["level"])
}

func TestLogger_LogArchiveCreation(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")

	logger.LogArchiveCreation("backup_2026-08-29_10-00-00.zip", 2048, true, 3*time.Second, nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "backup_2026-08-29_10-00-00.zip", entry["filename"])
	assert.Equal(t, float64(2048), entry["size"])
	assert.Equal(t, true, entry["encrypted"])
	assert.Equal(t, "info", entry["level"])

	buf.Reset()
	logger.LogArchiveCreation("", 0, false, time.Second, errors.New("disk full"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "disk full", entry["error"])
}

func TestLogger_LogStorageTransfer(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")

	logger.LogStorageTransfer("upload", "s3", "backup_a.encrypted.zip", 4096, time.Second, nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "storage_upload", entry["operation"])
	assert.Equal(t, "s3", entry["backend"])
	assert.Equal(t, "backup_a.encrypted.zip", entry["key"])
}

func TestLogger_LogSyncCycle(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")

	logger.LogSyncCycle("local", 2*time.Second, nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sync_cycle", entry["operation"])
	assert.Equal(t, "local", entry["resolution"])

	buf.Reset()
	logger.LogSyncCycle("none", time.Second, errors.New("network unreachable"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
}

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	require.NotNil(t, logger)
	assert.Equal(t, LogLevelNormal, logger.GetLevel())
}
