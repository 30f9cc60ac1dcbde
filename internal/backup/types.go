package backup

import (
	"encoding/json"
	"time"
)

// ManifestVersion is the schema version written into every backup manifest.
const ManifestVersion = "1.0"

// ManifestFilename is the name of the manifest entry inside every archive.
const ManifestFilename = "backup_manifest.json"

// Archive filename suffixes. Encrypted archives carry a distinct suffix so
// callers can branch on encryption status without opening the file.
const (
	ArchiveSuffix          = ".zip"
	EncryptedArchiveSuffix = ".encrypted.zip"
)

// archiveTimestampLayout is embedded in archive filenames:
// backup_<YYYY-MM-DD_HH-MM-SS>.zip
const archiveTimestampLayout = "2006-01-02_15-04-05"

// RecordCounts holds the live record counts captured into a manifest.
type RecordCounts struct {
	Patients int `json:"patient_count"`
	Visits   int `json:"visit_count"`
}

// Manifest describes the contents of a single backup archive. It is written
// once at creation and immutable thereafter.
type Manifest struct {
	CreatedAt  time.Time `json:"created_at"`
	Version    string    `json:"version"`
	Patients   int       `json:"patient_count"`
	Visits     int       `json:"visit_count"`
	AppVersion string    `json:"app_version"`
}

// ToJSON serializes the manifest
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Counts returns the record counts embedded in the manifest
func (m *Manifest) Counts() RecordCounts {
	return RecordCounts{Patients: m.Patients, Visits: m.Visits}
}

// Record describes one stored archive instance, local or remote.
type Record struct {
	Location     string       `json:"location"`
	Filename     string       `json:"filename"`
	SizeBytes    int64        `json:"size_bytes"`
	CreatedAt    time.Time    `json:"created_at"`
	RecordCounts RecordCounts `json:"record_counts"`
	IsEncrypted  bool         `json:"is_encrypted"`
}

// SyncState reflects the coordinator's view of the last and next sync.
// It is owned by the coordinator, mutated only under its lock, and rebuilt
// on every process start.
type SyncState struct {
	Syncing         bool      `json:"syncing"`
	LastSyncTime    time.Time `json:"last_sync_time"`
	LastSyncSuccess bool      `json:"last_sync_success"`
	LastError       string    `json:"last_error"`
	StorageUsed     int64     `json:"storage_used"`
	StorageQuota    int64     `json:"storage_quota"`
	NextSyncTime    time.Time `json:"next_sync_time"`
}

// SchedulerState reflects the local backup scheduler's policy and progress.
type SchedulerState struct {
	Enabled          bool      `json:"enabled"`
	FrequencyHours   int       `json:"frequency_hours"`
	LastBackupTime   time.Time `json:"last_backup_time"`
	NextBackupTime   time.Time `json:"next_backup_time"`
	BackupInProgress bool      `json:"backup_in_progress"`
}

// ObjectInfo describes one object held by a storage backend.
type ObjectInfo struct {
	Key          string    `json:"key"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// AccountInfo reports storage consumption against the account quota.
type AccountInfo struct {
	StorageUsed  int64 `json:"storage_used"`
	StorageQuota int64 `json:"storage_quota"`
}

// SyncStatus is the orchestrator's externally visible phase.
type SyncStatus string

const (
	SyncStatusIdle        SyncStatus = "idle"
	SyncStatusUploading   SyncStatus = "uploading"
	SyncStatusDownloading SyncStatus = "downloading"
	SyncStatusSyncing     SyncStatus = "syncing"
	SyncStatusComplete    SyncStatus = "complete"
	SyncStatusError       SyncStatus = "error"
)

// Resolution is the outcome of whole-snapshot conflict resolution. It selects
// one snapshot (or keeps both); records are never merged.
type Resolution string

const (
	// ResolutionLocal uploads the local snapshot
	ResolutionLocal Resolution = "local"
	// ResolutionCloud downloads the remote snapshot
	ResolutionCloud Resolution = "cloud"
	// ResolutionBoth downloads the remote snapshot alongside the local one
	// for manual review
	ResolutionBoth Resolution = "both"
	// ResolutionNone means there is nothing to transfer
	ResolutionNone Resolution = "none"
)

// ConflictSummary describes one side of a divergence for resolver callbacks.
type ConflictSummary struct {
	Filename     string       `json:"filename"`
	CreatedAt    time.Time    `json:"created_at"`
	SizeBytes    int64        `json:"size_bytes"`
	RecordCounts RecordCounts `json:"record_counts"`
}

// ValidFrequencies lists the scheduler frequencies accepted by SetFrequency.
var ValidFrequencies = []int{1, 4, 12, 24}

// IsValidFrequency reports whether hours is an accepted scheduler frequency
func IsValidFrequency(hours int) bool {
	for _, h := range ValidFrequencies {
		if h == hours {
			return true
		}
	}
	return false
}
