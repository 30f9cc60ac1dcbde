package backup

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CountsFunc reports live record counts for the manifest
type CountsFunc func(ctx context.Context) (RecordCounts, error)

// FileDataset is a DatasetProvider over a file-based record store. The host
// application normally supplies its own provider with a transactional
// snapshot; FileDataset serves standalone use, where the store file is not
// open for writing while a backup runs.
type FileDataset struct {
	storePath       string
	vectorIndexPath string
	counts          CountsFunc
}

// NewFileDataset creates a FileDataset. vectorIndexPath and counts may be
// empty when the dataset has no vector index or no count source.
func NewFileDataset(storePath, vectorIndexPath string, counts CountsFunc) (*FileDataset, error) {
	if storePath == "" {
		return nil, NewConfigurationError("store path is required", nil)
	}
	return &FileDataset{
		storePath:       storePath,
		vectorIndexPath: vectorIndexPath,
		counts:          counts,
	}, nil
}

// StorePath returns the live store file path
func (fd *FileDataset) StorePath() string {
	return fd.storePath
}

// VectorIndexPath returns the vector index directory, or empty
func (fd *FileDataset) VectorIndexPath() string {
	return fd.vectorIndexPath
}

// SnapshotStore copies the store file to destPath and syncs it to disk
func (fd *FileDataset) SnapshotStore(ctx context.Context, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := copyFile(fd.storePath, destPath, 0o600); err != nil {
		return err
	}

	f, err := os.Open(destPath)
	if err != nil {
		return NewIOError("failed to reopen snapshot for sync", err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return NewIOError("failed to sync snapshot", err)
	}
	return nil
}

// RecordCounts returns live counts, or zero counts without a source
func (fd *FileDataset) RecordCounts(ctx context.Context) (RecordCounts, error) {
	if fd.counts == nil {
		return RecordCounts{}, nil
	}
	return fd.counts(ctx)
}

// MtimeOracle is a ChangeOracle that treats any modification time newer
// than the reference as a change
type MtimeOracle struct {
	paths []string
}

// NewMtimeOracle creates an oracle watching the given files or directories
func NewMtimeOracle(paths ...string) *MtimeOracle {
	return &MtimeOracle{paths: paths}
}

// HasChangesSince reports whether anything under the watched paths was
// modified after t. Unreadable paths count as changed so a backup is never
// skipped on bad information.
func (mo *MtimeOracle) HasChangesSince(t time.Time) bool {
	for _, root := range mo.paths {
		if root == "" {
			continue
		}

		changed := false
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				changed = true
				return filepath.SkipAll
			}
			info, err := d.Info()
			if err != nil {
				changed = true
				return filepath.SkipAll
			}
			if info.ModTime().After(t) {
				changed = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return true
		}
		if changed {
			return true
		}
	}
	return false
}
