package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"emr-backup-sync/internal/logging"
)

// MetricsCollector tracks backup and sync activity for the status surface
// and optional JSON reports
type MetricsCollector struct {
	logger     *logging.Logger
	metrics    *SystemMetrics
	mu         sync.RWMutex
	startTime  time.Time
	reportPath string
}

// SystemMetrics holds the counters exposed by the collector
type SystemMetrics struct {
	BackupOperations  *OperationMetrics `json:"backup_operations"`
	SyncOperations    *OperationMetrics `json:"sync_operations"`
	RestoreOperations *OperationMetrics `json:"restore_operations"`

	// Transfer totals across all backends
	BytesUploaded   int64 `json:"bytes_uploaded"`
	BytesDownloaded int64 `json:"bytes_downloaded"`

	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`
}

// OperationMetrics tracks success/failure rates and timings for one
// operation kind
type OperationMetrics struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`

	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
}

// record folds one operation outcome into the counters
func (om *OperationMetrics) record(duration time.Duration, success bool) {
	om.Total++
	if success {
		om.Success++
	} else {
		om.Failed++
	}
	om.SuccessRate = float64(om.Success) / float64(om.Total)

	if om.MinDuration == 0 || duration < om.MinDuration {
		om.MinDuration = duration
	}
	if duration > om.MaxDuration {
		om.MaxDuration = duration
	}
	totalDuration := time.Duration(int64(om.AverageDuration)*(om.Total-1)) + duration
	om.AverageDuration = totalDuration / time.Duration(om.Total)
}

// NewMetricsCollector creates a metrics collector. reportPath may be empty
// to disable report files.
func NewMetricsCollector(logger *logging.Logger, reportPath string) *MetricsCollector {
	now := time.Now()
	return &MetricsCollector{
		logger:     logger,
		startTime:  now,
		reportPath: reportPath,
		metrics: &SystemMetrics{
			BackupOperations:  &OperationMetrics{},
			SyncOperations:    &OperationMetrics{},
			RestoreOperations: &OperationMetrics{},
			StartTime:         now,
		},
	}
}

// RecordBackup records the outcome of a local backup
func (mc *MetricsCollector) RecordBackup(duration time.Duration, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.BackupOperations.record(duration, success)
	mc.metrics.LastUpdate = time.Now()
}

// RecordSync records the outcome of a sync cycle
func (mc *MetricsCollector) RecordSync(duration time.Duration, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.SyncOperations.record(duration, success)
	mc.metrics.LastUpdate = time.Now()
}

// RecordRestore records the outcome of a restore
func (mc *MetricsCollector) RecordRestore(duration time.Duration, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.RestoreOperations.record(duration, success)
	mc.metrics.LastUpdate = time.Now()
}

// RecordTransfer accumulates bytes moved through a storage backend
func (mc *MetricsCollector) RecordTransfer(direction string, bytes int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	switch direction {
	case "upload":
		mc.metrics.BytesUploaded += bytes
	case "download":
		mc.metrics.BytesDownloaded += bytes
	}
	mc.metrics.LastUpdate = time.Now()
}

// GetMetrics returns a copy of the current metrics
func (mc *MetricsCollector) GetMetrics() SystemMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := *mc.metrics
	backup := *mc.metrics.BackupOperations
	syncOps := *mc.metrics.SyncOperations
	restore := *mc.metrics.RestoreOperations
	snapshot.BackupOperations = &backup
	snapshot.SyncOperations = &syncOps
	snapshot.RestoreOperations = &restore
	return snapshot
}

// Uptime returns how long the collector has been running
func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.startTime)
}

// SaveReport writes a timestamped JSON snapshot of the metrics. It is a
// no-op when no report path is configured.
func (mc *MetricsCollector) SaveReport() (string, error) {
	if mc.reportPath == "" {
		return "", nil
	}

	snapshot := mc.GetMetrics()

	if err := os.MkdirAll(mc.reportPath, 0o755); err != nil {
		return "", NewIOError("failed to create report directory", err)
	}

	filename := fmt.Sprintf("backup-report_%s.json", time.Now().Format(archiveTimestampLayout))
	fullPath := filepath.Join(mc.reportPath, filename)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", NewIOError("failed to marshal metrics report", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", NewIOError("failed to write metrics report", err)
	}

	if mc.logger != nil {
		mc.logger.WithFields(map[string]interface{}{
			"report_path": fullPath,
			"report_size": len(data),
		}).Info("Metrics report saved")
	}
	return fullPath, nil
}
