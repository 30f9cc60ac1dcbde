package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"emr-backup-sync/internal/logging"
)

// preRestoreSuffix marks the safety copies taken before a restore overwrites
// live state. Every restore is undoable through them.
const preRestoreSuffix = ".pre-restore"

// Archiver creates and restores versioned archives of local persistent
// state: a hot snapshot of the relational store, the vector index directory,
// and a manifest, packed into one ZIP.
type Archiver struct {
	dataset    DatasetProvider
	crypto     *CryptoEngine
	logger     *logging.Logger
	backupDir  string
	appVersion string
}

// NewArchiver creates an Archiver writing archives under backupDir
func NewArchiver(dataset DatasetProvider, crypto *CryptoEngine, logger *logging.Logger, backupDir, appVersion string) (*Archiver, error) {
	if dataset == nil {
		return nil, NewConfigurationError("dataset provider is required", nil)
	}
	if crypto == nil {
		return nil, NewConfigurationError("crypto engine is required", nil)
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, NewIOError("failed to create backup directory", err)
	}

	return &Archiver{
		dataset:    dataset,
		crypto:     crypto,
		logger:     logger,
		backupDir:  backupDir,
		appVersion: appVersion,
	}, nil
}

// BackupDir returns the directory archives are written to
func (a *Archiver) BackupDir() string {
	return a.backupDir
}

// CreateBackup snapshots the relational store with its hot-backup primitive,
// copies the vector index verbatim, writes a manifest from live counts, and
// packs everything into one archive. All work happens in a staging location;
// the final archive appears under its terminal name only via an atomic
// rename, so a failed creation never leaves a partial file behind.
func (a *Archiver) CreateBackup(ctx context.Context, encrypt bool, password string) (*Record, error) {
	start := time.Now()

	record, err := a.createBackup(ctx, encrypt, password)

	if a.logger != nil {
		filename := ""
		var size int64
		if record != nil {
			filename = record.Filename
			size = record.SizeBytes
		}
		a.logger.LogArchiveCreation(filename, size, encrypt, time.Since(start), err)
	}

	return record, err
}

func (a *Archiver) createBackup(ctx context.Context, encrypt bool, password string) (*Record, error) {
	if encrypt && password == "" {
		return nil, NewValidationError("password is required for encrypted backups", nil)
	}

	counts, err := a.dataset.RecordCounts(ctx)
	if err != nil {
		return nil, NewIOError("failed to read record counts", err)
	}

	staging, err := os.MkdirTemp(a.backupDir, ".staging-")
	if err != nil {
		return nil, NewIOError("failed to create staging directory", err)
	}
	defer os.RemoveAll(staging)

	// Hot snapshot, never a naive copy of the live store file
	storeName := filepath.Base(a.dataset.StorePath())
	if err := a.dataset.SnapshotStore(ctx, filepath.Join(staging, storeName)); err != nil {
		return nil, NewIOError("hot backup of relational store failed", err)
	}

	vectorPath := a.dataset.VectorIndexPath()
	if vectorPath != "" {
		if _, err := os.Stat(vectorPath); err == nil {
			if err := copyDir(vectorPath, filepath.Join(staging, vectorIndexEntry)); err != nil {
				return nil, NewIOError("failed to copy vector index", err)
			}
		}
	}

	createdAt := time.Now()
	manifest := &Manifest{
		CreatedAt:  createdAt,
		Version:    ManifestVersion,
		Patients:   counts.Patients,
		Visits:     counts.Visits,
		AppVersion: a.appVersion,
	}
	manifestData, err := manifest.ToJSON()
	if err != nil {
		return nil, NewIOError("failed to serialize manifest", err)
	}
	if err := os.WriteFile(filepath.Join(staging, ManifestFilename), manifestData, 0644); err != nil {
		return nil, NewIOError("failed to write manifest", err)
	}

	// Pack into a dot-prefixed temp name in the backup dir so the final
	// rename stays on one filesystem
	tmpArchive := filepath.Join(a.backupDir, fmt.Sprintf(".tmp-%d.zip", createdAt.UnixNano()))
	defer os.Remove(tmpArchive)
	if err := packArchive(staging, tmpArchive); err != nil {
		return nil, err
	}

	filename := ArchiveFilename(createdAt, encrypt)
	finalPath := filepath.Join(a.backupDir, filename)

	if encrypt {
		plaintext, err := os.ReadFile(tmpArchive)
		if err != nil {
			return nil, NewIOError("failed to read staged archive", err)
		}

		blob, err := a.crypto.Encrypt(plaintext, password)
		if err != nil {
			return nil, err
		}

		tmpEncrypted := tmpArchive + ".enc"
		defer os.Remove(tmpEncrypted)
		if err := os.WriteFile(tmpEncrypted, blob.Bytes(), 0600); err != nil {
			return nil, NewIOError("failed to write encrypted archive", err)
		}

		// Discard the plaintext intermediate before the encrypted archive
		// becomes visible
		if err := os.Remove(tmpArchive); err != nil {
			return nil, NewIOError("failed to remove plaintext intermediate", err)
		}
		if err := os.Rename(tmpEncrypted, finalPath); err != nil {
			return nil, NewIOError("failed to finalize encrypted archive", err)
		}
	} else {
		if err := os.Rename(tmpArchive, finalPath); err != nil {
			return nil, NewIOError("failed to finalize archive", err)
		}
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, NewIOError("failed to stat archive", err)
	}

	return &Record{
		Location:     finalPath,
		Filename:     filename,
		SizeBytes:    info.Size(),
		CreatedAt:    createdAt,
		RecordCounts: counts,
		IsEncrypted:  encrypt,
	}, nil
}

// RestoreBackup restores local state from an archive. It fails closed: an
// encrypted archive is decrypted to a temporary plaintext archive first,
// and structural parsing happens only after authenticated decryption
// succeeds. The live store file and vector index are renamed aside as
// pre-restore copies before anything is overwritten.
func (a *Archiver) RestoreBackup(ctx context.Context, archivePath, password string) error {
	start := time.Now()
	err := a.restoreBackup(ctx, archivePath, password)
	if a.logger != nil {
		a.logger.LogRestore(filepath.Base(archivePath), time.Since(start), err)
	}
	return err
}

func (a *Archiver) restoreBackup(ctx context.Context, archivePath, password string) error {
	if _, err := os.Stat(archivePath); err != nil {
		return NewNotFoundError("archive not found: "+archivePath, err)
	}

	plainArchive := archivePath
	if IsEncryptedArchive(archivePath) {
		data, err := os.ReadFile(archivePath)
		if err != nil {
			return NewIOError("failed to read archive", err)
		}

		blob, err := ParseBlob(data)
		if err != nil {
			return err
		}

		plaintext, err := a.crypto.Decrypt(blob, password)
		if err != nil {
			return err
		}

		tmp, err := os.CreateTemp(a.backupDir, ".restore-*.zip")
		if err != nil {
			return NewIOError("failed to create temporary archive", err)
		}
		plainArchive = tmp.Name()
		defer os.Remove(plainArchive)

		if _, err := tmp.Write(plaintext); err != nil {
			tmp.Close()
			return NewIOError("failed to write decrypted archive", err)
		}
		if err := tmp.Close(); err != nil {
			return NewIOError("failed to write decrypted archive", err)
		}
	}

	// Structural validation before any live state is touched
	if _, err := readArchiveManifest(plainArchive); err != nil {
		return err
	}

	staging, err := os.MkdirTemp(a.backupDir, ".restore-staging-")
	if err != nil {
		return NewIOError("failed to create restore staging directory", err)
	}
	defer os.RemoveAll(staging)

	if err := unpackArchive(plainArchive, staging); err != nil {
		return err
	}

	storePath := a.dataset.StorePath()
	stagedStore := filepath.Join(staging, filepath.Base(storePath))
	if _, err := os.Stat(stagedStore); err != nil {
		return NewCorruptArchiveError("archive is missing the relational store file", err)
	}

	// Rename current state aside rather than deleting it
	if err := setAside(storePath); err != nil {
		return err
	}
	vectorPath := a.dataset.VectorIndexPath()
	if vectorPath != "" {
		if err := setAside(vectorPath); err != nil {
			return err
		}
	}

	if err := os.Rename(stagedStore, storePath); err != nil {
		return NewIOError("failed to install restored store file", err)
	}

	stagedVector := filepath.Join(staging, vectorIndexEntry)
	if vectorPath != "" {
		if _, err := os.Stat(stagedVector); err == nil {
			if err := os.Rename(stagedVector, vectorPath); err != nil {
				return NewIOError("failed to install restored vector index", err)
			}
		}
	}

	return nil
}

// setAside renames path to a pre-restore safety copy, replacing any earlier
// safety copy. Missing paths are fine.
func setAside(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	aside := path + preRestoreSuffix
	if err := os.RemoveAll(aside); err != nil {
		return NewIOError("failed to clear previous pre-restore copy", err)
	}
	if err := os.Rename(path, aside); err != nil {
		return NewIOError("failed to set aside "+path, err)
	}
	return nil
}

// ListBackups returns records for all archives in the backup directory,
// newest first. Creation timestamps fall back through three tiers: the
// manifest, the filename, then filesystem mtime, so a corrupt manifest
// never hides a backup from retention.
func (a *Archiver) ListBackups() ([]*Record, error) {
	entries, err := os.ReadDir(a.backupDir)
	if err != nil {
		return nil, NewIOError("failed to read backup directory", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || !IsArchiveFilename(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(a.backupDir, entry.Name())
		record := &Record{
			Location:    path,
			Filename:    entry.Name(),
			SizeBytes:   info.Size(),
			IsEncrypted: IsEncryptedArchive(entry.Name()),
		}

		// Tier 1: manifest (plaintext archives only)
		if !record.IsEncrypted {
			if manifest, err := readArchiveManifest(path); err == nil {
				record.CreatedAt = manifest.CreatedAt
				record.RecordCounts = manifest.Counts()
			}
		}
		// Tier 2: filename-embedded timestamp
		if record.CreatedAt.IsZero() {
			if ts, err := ParseArchiveTimestamp(entry.Name()); err == nil {
				record.CreatedAt = ts
			}
		}
		// Tier 3: filesystem mtime
		if record.CreatedAt.IsZero() {
			record.CreatedAt = info.ModTime()
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// CleanupOldBackups deletes all but the maxCount most recent archives and
// returns the deleted records.
func (a *Archiver) CleanupOldBackups(maxCount int) ([]*Record, error) {
	if maxCount < 0 {
		return nil, NewValidationError("maxCount must not be negative", nil)
	}

	records, err := a.ListBackups()
	if err != nil {
		return nil, err
	}
	if len(records) <= maxCount {
		return nil, nil
	}

	var deleted []*Record
	for _, record := range records[maxCount:] {
		if err := os.Remove(record.Location); err != nil {
			return deleted, NewIOError("failed to delete old backup "+record.Filename, err)
		}
		deleted = append(deleted, record)
		if a.logger != nil {
			a.logger.WithFields(map[string]interface{}{
				"operation": "backup_cleanup",
				"filename":  record.Filename,
			}).Info("Old backup removed")
		}
	}

	return deleted, nil
}

// ArchiveFilename builds the terminal archive name for a creation timestamp
func ArchiveFilename(t time.Time, encrypted bool) string {
	suffix := ArchiveSuffix
	if encrypted {
		suffix = EncryptedArchiveSuffix
	}
	return "backup_" + t.Format(archiveTimestampLayout) + suffix
}

// IsArchiveFilename reports whether name looks like a backup archive
func IsArchiveFilename(name string) bool {
	return strings.HasPrefix(name, "backup_") && strings.HasSuffix(name, ArchiveSuffix)
}

// IsEncryptedArchive reports whether name carries the encrypted suffix
func IsEncryptedArchive(name string) bool {
	return strings.HasSuffix(name, EncryptedArchiveSuffix)
}

// ParseArchiveTimestamp extracts the timestamp embedded in an archive name
func ParseArchiveTimestamp(name string) (time.Time, error) {
	base := strings.TrimSuffix(name, EncryptedArchiveSuffix)
	if base == name {
		base = strings.TrimSuffix(name, ArchiveSuffix)
	}
	base = strings.TrimPrefix(base, "backup_")

	ts, err := time.ParseInLocation(archiveTimestampLayout, base, time.Local)
	if err != nil {
		return time.Time{}, NewValidationError("archive name carries no timestamp: "+name, err)
	}
	return ts, nil
}
