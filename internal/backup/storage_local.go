package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend implements StorageBackend as byte copies under a rooted base
// directory. Keys map to relative paths; keys that resolve outside the base
// directory are rejected.
type LocalBackend struct {
	basePath string
}

// Compile-time interface check
var _ StorageBackend = (*LocalBackend)(nil)

// NewLocalBackend creates a LocalBackend rooted at the configured base path
func NewLocalBackend(config *LocalConfig) (*LocalBackend, error) {
	if config == nil {
		return nil, NewConfigurationError("local storage configuration is required", nil)
	}
	if config.BasePath == "" {
		return nil, NewConfigurationError("local storage base path is required", nil)
	}

	basePath, err := filepath.Abs(config.BasePath)
	if err != nil {
		return nil, NewConfigurationError("invalid base path", err)
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, NewIOError("failed to create base directory", err)
	}

	return &LocalBackend{basePath: basePath}, nil
}

// BasePath returns the rooted base directory
func (lb *LocalBackend) BasePath() string {
	return lb.basePath
}

// resolveKey maps a key to an absolute path and rejects keys escaping the
// base directory.
func (lb *LocalBackend) resolveKey(key string) (string, error) {
	if key == "" {
		return "", NewValidationError("storage key cannot be empty", nil)
	}

	resolved := filepath.Join(lb.basePath, filepath.FromSlash(key))
	if resolved != lb.basePath && !strings.HasPrefix(resolved, lb.basePath+string(os.PathSeparator)) {
		return "", NewValidationError("storage key resolves outside base directory: "+key, nil)
	}
	return resolved, nil
}

// Upload copies localPath to the location named by key
func (lb *LocalBackend) Upload(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	target, err := lb.resolveKey(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return NewIOError("failed to create target directory", err)
	}

	return transferFile(localPath, target, progress)
}

// Download copies the object named by key to localPath
func (lb *LocalBackend) Download(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	source, err := lb.resolveKey(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return NewNotFoundError("object not found: "+key, err)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return NewIOError("failed to create local directory", err)
	}

	return transferFile(source, localPath, progress)
}

// Delete removes the object named by key
func (lb *LocalBackend) Delete(ctx context.Context, key string) error {
	target, err := lb.resolveKey(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return NewNotFoundError("object not found: "+key, err)
	}
	if err := os.Remove(target); err != nil {
		return NewIOError("failed to delete object "+key, err)
	}
	return nil
}

// List returns objects whose keys start with prefix
func (lb *LocalBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	err := filepath.Walk(lb.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(lb.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}

		objects = append(objects, ObjectInfo{
			Key:          key,
			SizeBytes:    info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, NewIOError("failed to list objects", err)
	}

	return objects, nil
}

// Exists reports whether an object with the given key exists
func (lb *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	target, err := lb.resolveKey(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, NewIOError("failed to stat object "+key, err)
	}
	return true, nil
}

// GetMetadata returns metadata for the object named by key
func (lb *LocalBackend) GetMetadata(ctx context.Context, key string) (*ObjectInfo, error) {
	target, err := lb.resolveKey(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotFoundError("object not found: "+key, err)
		}
		return nil, NewIOError("failed to stat object "+key, err)
	}

	return &ObjectInfo{
		Key:          key,
		SizeBytes:    info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// transferFile copies src to dest reporting progress along the way
func transferFile(src, dest string, progress ProgressFunc) error {
	in, err := os.Open(src)
	if err != nil {
		return NewIOError("failed to open "+src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return NewIOError("failed to stat "+src, err)
	}
	total := info.Size()

	out, err := os.Create(dest)
	if err != nil {
		return NewIOError("failed to create "+dest, err)
	}
	defer out.Close()

	var reader io.Reader = in
	if progress != nil {
		reader = &progressReader{r: in, total: total, progress: progress}
	}

	if _, err := io.Copy(out, reader); err != nil {
		return NewIOError("failed to copy "+src, err)
	}
	if err := out.Sync(); err != nil {
		return NewIOError("failed to sync "+dest, err)
	}
	if progress != nil {
		progress(total, total)
	}
	return nil
}

// progressReader wraps a reader and reports cumulative bytes read
type progressReader struct {
	r           io.Reader
	total       int64
	transferred int64
	progress    ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
		pr.progress(pr.transferred, pr.total)
	}
	return n, err
}
