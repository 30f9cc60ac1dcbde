package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"emr-backup-sync/internal/logging"
)

// Progress split between the encryption and transfer phases of an upload,
// and between transfer and decryption on the way back down.
const (
	encryptPhasePercent  = 10.0
	downloadPhasePercent = 80.0
)

// Orchestrator drives encrypt-then-upload and download-then-decrypt against
// one storage backend. It runs at most one operation at a time; concurrent
// requests fail fast.
type Orchestrator struct {
	backend     StorageBackend
	backendType BackendType
	crypto      *CryptoEngine
	logger      *logging.Logger
	notifier    Notifier
	workDir     string

	mu     sync.Mutex
	active bool
	status SyncStatus
}

// NewOrchestrator creates an Orchestrator using workDir for transfer
// intermediates. backendType is the configuration tag the backend was built
// from; it only labels log entries.
func NewOrchestrator(backend StorageBackend, backendType BackendType, crypto *CryptoEngine, logger *logging.Logger, notifier Notifier, workDir string) (*Orchestrator, error) {
	if backend == nil {
		return nil, NewConfigurationError("storage backend is required", nil)
	}
	if crypto == nil {
		return nil, NewConfigurationError("crypto engine is required", nil)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, NewIOError("failed to create work directory", err)
	}

	return &Orchestrator{
		backend:     backend,
		backendType: backendType,
		crypto:      crypto,
		logger:      logger,
		notifier:    notifier,
		workDir:     workDir,
		status:      SyncStatusIdle,
	}, nil
}

// Status returns the orchestrator's current phase
func (o *Orchestrator) Status() SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// begin claims the single operation slot, failing fast if one is in flight
func (o *Orchestrator) begin(status SyncStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return NewConflictError("a sync operation is already in flight", nil)
	}
	o.active = true
	o.setStatusLocked(status)
	return nil
}

// finish releases the operation slot and records the terminal status
func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = false
	if err != nil {
		o.setStatusLocked(SyncStatusError)
	} else {
		o.setStatusLocked(SyncStatusComplete)
	}
}

func (o *Orchestrator) setStatusLocked(status SyncStatus) {
	o.status = status
	if o.notifier != nil {
		o.notifier.NotifyStatus(status, "")
	}
}

// setStatus transitions the phase mid-operation
func (o *Orchestrator) setStatus(status SyncStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStatusLocked(status)
}

// notifyProgress reports overall progress for the running operation
func (o *Orchestrator) notifyProgress(status SyncStatus, percent float64) {
	if o.notifier != nil {
		o.notifier.NotifyProgress(status, percent)
	}
}

// SyncToCloud encrypts a local archive and uploads it. The encrypted
// intermediate is removed on every exit path. Already-encrypted archives
// are uploaded as they are.
func (o *Orchestrator) SyncToCloud(ctx context.Context, localArchive, password string) error {
	if err := o.begin(SyncStatusSyncing); err != nil {
		return err
	}

	start := time.Now()
	key, err := o.syncToCloud(ctx, localArchive, password)
	o.finish(err)

	if o.logger != nil {
		o.logger.LogStorageTransfer("upload", string(o.backendType), key, 0, time.Since(start), err)
	}
	return err
}

func (o *Orchestrator) syncToCloud(ctx context.Context, localArchive, password string) (string, error) {
	if _, err := os.Stat(localArchive); err != nil {
		return "", NewNotFoundError("archive not found: "+localArchive, err)
	}

	uploadPath := localArchive
	key := filepath.Base(localArchive)

	if !IsEncryptedArchive(localArchive) {
		if password == "" {
			return key, NewValidationError("password is required to encrypt before upload", nil)
		}

		o.notifyProgress(SyncStatusSyncing, 0)

		plaintext, err := os.ReadFile(localArchive)
		if err != nil {
			return key, NewIOError("failed to read archive", err)
		}

		blob, err := o.crypto.Encrypt(plaintext, password)
		if err != nil {
			return key, err
		}

		key = strings.TrimSuffix(filepath.Base(localArchive), ArchiveSuffix) + EncryptedArchiveSuffix
		intermediate := filepath.Join(o.workDir, "."+key+".tmp")
		// The encrypted intermediate never outlives the operation
		defer os.Remove(intermediate)

		if err := os.WriteFile(intermediate, blob.Bytes(), 0600); err != nil {
			return key, NewIOError("failed to write encrypted intermediate", err)
		}
		uploadPath = intermediate

		o.notifyProgress(SyncStatusSyncing, encryptPhasePercent)
	}

	o.setStatus(SyncStatusUploading)
	err := o.backend.Upload(ctx, key, uploadPath, func(transferred, total int64) {
		if total > 0 {
			pct := encryptPhasePercent + (100-encryptPhasePercent)*float64(transferred)/float64(total)
			o.notifyProgress(SyncStatusUploading, pct)
		}
	})
	if err != nil {
		return key, err
	}

	o.notifyProgress(SyncStatusUploading, 100)
	return key, nil
}

// RestoreFromCloud downloads a remote archive and decrypts it, returning the
// path of the local plaintext archive. The downloaded intermediate is
// removed on every exit path.
func (o *Orchestrator) RestoreFromCloud(ctx context.Context, remoteKey, password string) (string, error) {
	if err := o.begin(SyncStatusDownloading); err != nil {
		return "", err
	}

	start := time.Now()
	localPath, err := o.restoreFromCloud(ctx, remoteKey, password)
	o.finish(err)

	if o.logger != nil {
		o.logger.LogStorageTransfer("download", string(o.backendType), remoteKey, 0, time.Since(start), err)
	}
	return localPath, err
}

func (o *Orchestrator) restoreFromCloud(ctx context.Context, remoteKey, password string) (string, error) {
	downloaded := filepath.Join(o.workDir, "."+filepath.Base(remoteKey)+".download")
	// The downloaded intermediate never outlives the operation
	defer os.Remove(downloaded)

	err := o.backend.Download(ctx, remoteKey, downloaded, func(transferred, total int64) {
		if total > 0 {
			pct := downloadPhasePercent * float64(transferred) / float64(total)
			o.notifyProgress(SyncStatusDownloading, pct)
		}
	})
	if err != nil {
		return "", err
	}

	if !IsEncryptedArchive(remoteKey) {
		final := filepath.Join(o.workDir, filepath.Base(remoteKey))
		if err := os.Rename(downloaded, final); err != nil {
			return "", NewIOError("failed to finalize downloaded archive", err)
		}
		o.notifyProgress(SyncStatusComplete, 100)
		return final, nil
	}

	o.setStatus(SyncStatusSyncing)
	o.notifyProgress(SyncStatusSyncing, downloadPhasePercent)

	data, err := os.ReadFile(downloaded)
	if err != nil {
		return "", NewIOError("failed to read downloaded archive", err)
	}

	blob, err := ParseBlob(data)
	if err != nil {
		return "", err
	}

	plaintext, err := o.crypto.Decrypt(blob, password)
	if err != nil {
		return "", err
	}

	final := filepath.Join(o.workDir,
		strings.TrimSuffix(filepath.Base(remoteKey), EncryptedArchiveSuffix)+ArchiveSuffix)
	if err := os.WriteFile(final, plaintext, 0600); err != nil {
		return "", NewIOError("failed to write decrypted archive", err)
	}

	o.notifyProgress(SyncStatusComplete, 100)
	return final, nil
}

// ListCloudBackups lists remote archives, excluding metadata sidecar files
func (o *Orchestrator) ListCloudBackups(ctx context.Context) ([]ObjectInfo, error) {
	objects, err := o.backend.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var archives []ObjectInfo
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, ArchiveSuffix) {
			archives = append(archives, obj)
		}
	}
	return archives, nil
}
