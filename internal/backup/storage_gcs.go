package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBackend implements StorageBackend for Google Cloud Storage
type GCSBackend struct {
	client *storage.Client
	bucket string
}

var _ StorageBackend = (*GCSBackend)(nil)

// NewGCSBackend creates a GCSBackend, using explicit credentials when a
// credentials path is configured and ambient credentials otherwise.
func NewGCSBackend(ctx context.Context, config *GCSConfig) (*GCSBackend, error) {
	if config == nil {
		return nil, NewConfigurationError("GCS storage configuration is required", nil)
	}

	var client *storage.Client
	var err error

	if config.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(config.CredentialsPath))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, NewNetworkError("failed to create GCS client", err)
	}

	return &GCSBackend{
		client: client,
		bucket: config.Bucket,
	}, nil
}

// Upload stores localPath under key
func (gb *GCSBackend) Upload(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewIOError("failed to open "+localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return NewIOError("failed to stat "+localPath, err)
	}

	var reader io.Reader = file
	if progress != nil {
		reader = &progressReader{r: file, total: info.Size(), progress: progress}
	}

	w := gb.client.Bucket(gb.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, reader); err != nil {
		w.Close()
		return NewNetworkError("failed to upload object "+key, err)
	}
	if err := w.Close(); err != nil {
		return NewNetworkError("failed to finalize upload of "+key, err)
	}
	if progress != nil {
		progress(info.Size(), info.Size())
	}
	return nil
}

// Download retrieves the object named by key into localPath
func (gb *GCSBackend) Download(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	r, err := gb.client.Bucket(gb.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return NewNotFoundError("object not found: "+key, err)
		}
		return NewNetworkError("failed to download object "+key, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return NewIOError("failed to create local directory", err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		return NewIOError("failed to create "+localPath, err)
	}
	defer out.Close()

	var reader io.Reader = r
	if progress != nil {
		reader = &progressReader{r: r, total: r.Attrs.Size, progress: progress}
	}

	if _, err := io.Copy(out, reader); err != nil {
		return NewNetworkError("failed to read object "+key, err)
	}
	return out.Sync()
}

// Delete removes the object named by key
func (gb *GCSBackend) Delete(ctx context.Context, key string) error {
	err := gb.client.Bucket(gb.bucket).Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return NewNotFoundError("object not found: "+key, err)
		}
		return NewNetworkError("failed to delete object "+key, err)
	}
	return nil
}

// List returns objects whose keys start with prefix
func (gb *GCSBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	it := gb.client.Bucket(gb.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, NewNetworkError("failed to list objects", err)
		}
		objects = append(objects, ObjectInfo{
			Key:          attrs.Name,
			SizeBytes:    attrs.Size,
			LastModified: attrs.Updated,
		})
	}

	return objects, nil
}

// Exists reports whether an object with the given key exists
func (gb *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := gb.client.Bucket(gb.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, NewNetworkError("failed to check object "+key, err)
	}
	return true, nil
}

// GetMetadata returns metadata for the object named by key
func (gb *GCSBackend) GetMetadata(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := gb.client.Bucket(gb.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, NewNotFoundError("object not found: "+key, err)
		}
		return nil, NewNetworkError("failed to get object metadata for "+key, err)
	}

	return &ObjectInfo{
		Key:          attrs.Name,
		SizeBytes:    attrs.Size,
		LastModified: attrs.Updated,
	}, nil
}

// Close releases the underlying GCS client
func (gb *GCSBackend) Close() error {
	return gb.client.Close()
}
