// Package backup provides encrypted backup and multi-backend cloud sync for
// the patient record store.
//
// The package implements a zero-knowledge backup pipeline: the record store
// and its vector index are snapshotted into a ZIP archive together with a
// JSON manifest, encrypted client-side with a key derived from the user's
// password, and uploaded to a pluggable storage backend. The server side
// only ever sees opaque encrypted blobs. The system is designed with the
// following key principles:
//
// 1. Zero knowledge: plaintext and passwords never leave the device
// 2. Fail closed: restores validate before touching live data, uploads
//    remove plaintext intermediates on every path
// 3. Whole-snapshot conflict resolution: archives are atomic units, never
//    merged record by record
// 4. Pluggable storage: local, S3-compatible, managed cloud, GCS and Azure
//    backends behind one interface
//
// Core Components:
//
// - CryptoEngine: password-based key derivation and authenticated
//   encryption with a versioned blob format
// - Archiver: archive creation, restore, listing and retention
// - StorageBackend: the storage abstraction and its five implementations
// - Orchestrator: single-flight encrypt-then-upload and
//   download-then-decrypt operations with progress reporting
// - Coordinator: conflict resolution, sync state and the background sync
//   loop
// - Scheduler: periodic local backups with change detection
//
// Example usage:
//
//	crypto := backup.NewDefaultCryptoEngine()
//	archiver, err := backup.NewArchiver(dataset, crypto, logger, backupDir, version)
//	if err != nil {
//		return err
//	}
//
//	record, err := archiver.CreateBackup(ctx, password)
//	if err != nil {
//		return fmt.Errorf("backup failed: %w", err)
//	}
//
//	backend, err := backup.NewStorageBackend(ctx, storageConfig)
//	if err != nil {
//		return err
//	}
//	orch, err := backup.NewOrchestrator(backend, storageConfig.Provider, crypto, logger, notifier, backupDir)
//	if err != nil {
//		return err
//	}
//	if err := orch.SyncToCloud(ctx, record.Location, password); err != nil {
//		return fmt.Errorf("upload failed: %w", err)
//	}
package backup
