package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureBackend implements StorageBackend for Azure Blob Storage
type AzureBackend struct {
	container azblob.ContainerURL
}

var _ StorageBackend = (*AzureBackend)(nil)

// NewAzureBackend creates an AzureBackend from shared-key credentials
func NewAzureBackend(config *AzureConfig) (*AzureBackend, error) {
	if config == nil {
		return nil, NewConfigurationError("Azure storage configuration is required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewConfigurationError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewConfigurationError("failed to parse Azure service URL", err)
	}

	container := azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName)
	return &AzureBackend{container: container}, nil
}

// Upload stores localPath under key
func (ab *AzureBackend) Upload(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewIOError("failed to open "+localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return NewIOError("failed to stat "+localPath, err)
	}

	options := azblob.UploadToBlockBlobOptions{}
	if progress != nil {
		total := info.Size()
		options.Progress = func(bytesTransferred int64) {
			progress(bytesTransferred, total)
		}
	}

	blobURL := ab.container.NewBlockBlobURL(key)
	if _, err := azblob.UploadFileToBlockBlob(ctx, file, blobURL, options); err != nil {
		return NewNetworkError("failed to upload object "+key, err)
	}
	return nil
}

// Download retrieves the object named by key into localPath
func (ab *AzureBackend) Download(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	meta, err := ab.GetMetadata(ctx, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return NewIOError("failed to create local directory", err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		return NewIOError("failed to create "+localPath, err)
	}
	defer out.Close()

	options := azblob.DownloadFromBlobOptions{}
	if progress != nil {
		total := meta.SizeBytes
		options.Progress = func(bytesTransferred int64) {
			progress(bytesTransferred, total)
		}
	}

	blobURL := ab.container.NewBlockBlobURL(key)
	if err := azblob.DownloadBlobToFile(ctx, blobURL.BlobURL, 0, azblob.CountToEnd, out, options); err != nil {
		return NewNetworkError("failed to download object "+key, err)
	}
	return nil
}

// Delete removes the object named by key
func (ab *AzureBackend) Delete(ctx context.Context, key string) error {
	blobURL := ab.container.NewBlockBlobURL(key)
	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		if isAzureNotFound(err) {
			return NewNotFoundError("object not found: "+key, err)
		}
		return NewNetworkError("failed to delete object "+key, err)
	}
	return nil
}

// List returns objects whose keys start with prefix
func (ab *AzureBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := ab.container.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: prefix,
		})
		if err != nil {
			return nil, NewNetworkError("failed to list objects", err)
		}
		marker = resp.NextMarker

		for _, blob := range resp.Segment.BlobItems {
			info := ObjectInfo{
				Key:          blob.Name,
				LastModified: blob.Properties.LastModified,
			}
			if blob.Properties.ContentLength != nil {
				info.SizeBytes = *blob.Properties.ContentLength
			}
			objects = append(objects, info)
		}
	}

	return objects, nil
}

// Exists reports whether an object with the given key exists
func (ab *AzureBackend) Exists(ctx context.Context, key string) (bool, error) {
	blobURL := ab.container.NewBlockBlobURL(key)
	_, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, NewNetworkError("failed to check object "+key, err)
	}
	return true, nil
}

// GetMetadata returns metadata for the object named by key
func (ab *AzureBackend) GetMetadata(ctx context.Context, key string) (*ObjectInfo, error) {
	blobURL := ab.container.NewBlockBlobURL(key)
	props, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, NewNotFoundError("object not found: "+key, err)
		}
		return nil, NewNetworkError("failed to get object metadata for "+key, err)
	}

	return &ObjectInfo{
		Key:          key,
		SizeBytes:    props.ContentLength(),
		LastModified: props.LastModified(),
	}, nil
}

// isAzureNotFound reports whether err is an Azure missing-blob error
func isAzureNotFound(err error) bool {
	if serr, ok := err.(azblob.StorageError); ok {
		return serr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
