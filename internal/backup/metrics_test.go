package backup

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RecordOperations(t *testing.T) {
	collector := NewMetricsCollector(nil, "")

	collector.RecordBackup(2*time.Second, true)
	collector.RecordBackup(4*time.Second, true)
	collector.RecordBackup(6*time.Second, false)
	collector.RecordSync(time.Second, true)

	metrics := collector.GetMetrics()
	backup := metrics.BackupOperations
	assert.Equal(t, int64(3), backup.Total)
	assert.Equal(t, int64(2), backup.Success)
	assert.Equal(t, int64(1), backup.Failed)
	assert.InDelta(t, 2.0/3.0, backup.SuccessRate, 0.001)
	assert.Equal(t, 2*time.Second, backup.MinDuration)
	assert.Equal(t, 6*time.Second, backup.MaxDuration)
	assert.Equal(t, 4*time.Second, backup.AverageDuration)

	assert.Equal(t, int64(1), metrics.SyncOperations.Total)
	assert.Equal(t, int64(0), metrics.RestoreOperations.Total)
	assert.False(t, metrics.LastUpdate.IsZero())
}

func TestMetricsCollector_RecordTransfer(t *testing.T) {
	collector := NewMetricsCollector(nil, "")

	collector.RecordTransfer("upload", 1024)
	collector.RecordTransfer("upload", 512)
	collector.RecordTransfer("download", 2048)
	collector.RecordTransfer("sideways", 9999)

	metrics := collector.GetMetrics()
	assert.Equal(t, int64(1536), metrics.BytesUploaded)
	assert.Equal(t, int64(2048), metrics.BytesDownloaded)
}

func TestMetricsCollector_GetMetrics_ReturnsCopy(t *testing.T) {
	collector := NewMetricsCollector(nil, "")
	collector.RecordBackup(time.Second, true)

	snapshot := collector.GetMetrics()
	snapshot.BackupOperations.Total = 99

	assert.Equal(t, int64(1), collector.GetMetrics().BackupOperations.Total)
}

func TestMetricsCollector_SaveReport(t *testing.T) {
	t.Run("no path is a no-op", func(t *testing.T) {
		path, err := NewMetricsCollector(nil, "").SaveReport()
		require.NoError(t, err)
		assert.Empty(t, path)
	})

	t.Run("writes a JSON snapshot", func(t *testing.T) {
		collector := NewMetricsCollector(nil, t.TempDir())
		collector.RecordBackup(time.Second, true)

		path, err := collector.SaveReport()
		require.NoError(t, err)
		require.NotEmpty(t, path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var snapshot SystemMetrics
		require.NoError(t, json.Unmarshal(data, &snapshot))
		assert.Equal(t, int64(1), snapshot.BackupOperations.Total)
	})
}
