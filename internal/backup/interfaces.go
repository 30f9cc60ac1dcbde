package backup

import (
	"context"
	"time"
)

// ProgressFunc reports transfer progress as (bytesTransferred, totalBytes).
// totalBytes is -1 when unknown.
type ProgressFunc func(bytesTransferred, totalBytes int64)

// StorageBackend abstracts byte transfer to and from a named location.
// All implementations are drop-in substitutable; higher layers select one
// by BackendConfig tag only, never by inspecting the instance.
type StorageBackend interface {
	Upload(ctx context.Context, key string, localPath string, progress ProgressFunc) error
	Download(ctx context.Context, key string, localPath string, progress ProgressFunc) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	GetMetadata(ctx context.Context, key string) (*ObjectInfo, error)
}

// QuotaReporter is implemented by backends that can report account-level
// storage consumption. The managed cloud backend implements it.
type QuotaReporter interface {
	AccountInfo(ctx context.Context) (*AccountInfo, error)
}

// DatasetProvider exposes the application state being backed up. The
// relational store and vector index live outside this subsystem; they are
// consumed through this interface only.
type DatasetProvider interface {
	// SnapshotStore writes a consistent snapshot of the relational store to
	// destPath using the store's own hot-backup primitive. It must be safe
	// against concurrent writers.
	SnapshotStore(ctx context.Context, destPath string) error

	// StorePath returns the path of the live relational store file.
	StorePath() string

	// VectorIndexPath returns the directory of the vector index, copied
	// verbatim into every archive.
	VectorIndexPath() string

	// RecordCounts returns live record counts for the manifest.
	RecordCounts(ctx context.Context) (RecordCounts, error)
}

// ChangeOracle answers whether application state changed since a timestamp.
// The scheduler uses it to skip backups of unchanged state. Implementations
// that cannot tell must answer true so a backup is never skipped on bad
// information.
type ChangeOracle interface {
	HasChangesSince(t time.Time) bool
}

// ConflictResolver decides between divergent local and remote snapshots when
// their timestamps differ by at least the same-generation window.
type ConflictResolver func(local, remote ConflictSummary) Resolution

// Notifier is the status and progress sink consumed by the orchestrator,
// coordinator, and scheduler.
type Notifier interface {
	NotifyStatus(status SyncStatus, message string)
	NotifyProgress(status SyncStatus, percent float64)
}
