package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Backend implements StorageBackend against any S3-compatible object
// store. A custom endpoint selects non-AWS providers; operations map 1:1 to
// Put/Get/Delete/List/HeadObject.
type S3Backend struct {
	client *s3.S3
	bucket string
}

var _ StorageBackend = (*S3Backend)(nil)

// NewS3Backend creates an authenticated S3Backend
func NewS3Backend(config *S3Config) (*S3Backend, error) {
	if config == nil {
		return nil, NewConfigurationError("S3 storage configuration is required", nil)
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"", // token
		),
	}

	if config.EndpointURL != "" {
		awsConfig.Endpoint = aws.String(config.EndpointURL)
		// Non-AWS providers generally require path-style addressing
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewNetworkError("failed to create S3 session", err)
	}

	return &S3Backend{
		client: s3.New(sess),
		bucket: config.Bucket,
	}, nil
}

// Upload stores localPath under key
func (sb *S3Backend) Upload(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewIOError("failed to open "+localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return NewIOError("failed to stat "+localPath, err)
	}

	var body io.ReadSeeker = file
	if progress != nil {
		body = &seekingProgressReader{r: file, total: info.Size(), progress: progress}
	}

	_, err = sb.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(sb.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return NewNetworkError("failed to upload object "+key, err)
	}
	if progress != nil {
		progress(info.Size(), info.Size())
	}
	return nil
}

// Download retrieves the object named by key into localPath
func (sb *S3Backend) Download(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	result, err := sb.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return NewNotFoundError("object not found: "+key, err)
		}
		return NewNetworkError("failed to download object "+key, err)
	}
	defer result.Body.Close()

	total := int64(-1)
	if result.ContentLength != nil {
		total = *result.ContentLength
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return NewIOError("failed to create local directory", err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		return NewIOError("failed to create "+localPath, err)
	}
	defer out.Close()

	var reader io.Reader = result.Body
	if progress != nil {
		reader = &progressReader{r: result.Body, total: total, progress: progress}
	}

	if _, err := io.Copy(out, reader); err != nil {
		return NewNetworkError("failed to read object "+key, err)
	}
	return out.Sync()
}

// Delete removes the object named by key
func (sb *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := sb.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return NewNetworkError("failed to delete object "+key, err)
	}
	return nil
}

// List returns objects whose keys start with prefix
func (sb *S3Backend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(sb.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	err := sb.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				info := ObjectInfo{Key: aws.StringValue(obj.Key)}
				if obj.Size != nil {
					info.SizeBytes = *obj.Size
				}
				if obj.LastModified != nil {
					info.LastModified = *obj.LastModified
				}
				objects = append(objects, info)
			}
			return true
		})
	if err != nil {
		return nil, NewNetworkError("failed to list objects", err)
	}

	return objects, nil
}

// Exists reports whether an object with the given key exists
func (sb *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := sb.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, NewNetworkError("failed to check object "+key, err)
	}
	return true, nil
}

// GetMetadata returns metadata for the object named by key
func (sb *S3Backend) GetMetadata(ctx context.Context, key string) (*ObjectInfo, error) {
	result, err := sb.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(sb.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, NewNotFoundError("object not found: "+key, err)
		}
		return nil, NewNetworkError("failed to get object metadata for "+key, err)
	}

	info := &ObjectInfo{Key: key}
	if result.ContentLength != nil {
		info.SizeBytes = *result.ContentLength
	}
	if result.LastModified != nil {
		info.LastModified = *result.LastModified
	}
	return info, nil
}

// isS3NotFound reports whether err is an S3 missing-object error
func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		code := aerr.Code()
		return code == s3.ErrCodeNoSuchKey || code == "NotFound" || strings.Contains(code, "404")
	}
	return false
}

// seekingProgressReader reports progress while remaining seekable, as the S3
// SDK rewinds the body on retries.
type seekingProgressReader struct {
	r           io.ReadSeeker
	total       int64
	transferred int64
	progress    ProgressFunc
}

func (spr *seekingProgressReader) Read(p []byte) (int, error) {
	n, err := spr.r.Read(p)
	if n > 0 {
		spr.transferred += int64(n)
		spr.progress(spr.transferred, spr.total)
	}
	return n, err
}

func (spr *seekingProgressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := spr.r.Seek(offset, whence)
	if err == nil {
		spr.transferred = pos
	}
	return pos, err
}
