package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ManagedCloudBackend implements StorageBackend against the managed HTTP
// cloud API: bearer-token plus device-id authentication over TLS, with
// objects addressed as /backups/{device_id}/{key}. Failures surface as
// typed errors carrying the HTTP status.
type ManagedCloudBackend struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	deviceID   string
}

var _ StorageBackend = (*ManagedCloudBackend)(nil)
var _ QuotaReporter = (*ManagedCloudBackend)(nil)

// cloudObject is the listing entry shape returned by the managed API
type cloudObject struct {
	Key          string    `json:"key"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// cloudAccount is the /account response shape
type cloudAccount struct {
	StorageUsed  int64 `json:"storage_used"`
	StorageQuota int64 `json:"storage_quota"`
}

// NewManagedCloudBackend creates a ManagedCloudBackend from its config
func NewManagedCloudBackend(config *ManagedCloudConfig) (*ManagedCloudBackend, error) {
	if config == nil {
		return nil, NewConfigurationError("managed cloud configuration is required", nil)
	}
	if !strings.HasPrefix(config.APIURL, "https://") {
		return nil, NewConfigurationError("managed cloud api url must use TLS", nil)
	}

	return &ManagedCloudBackend{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		apiURL:     strings.TrimSuffix(config.APIURL, "/"),
		apiKey:     config.APIKey,
		deviceID:   config.DeviceID,
	}, nil
}

// objectURL builds the URL for a single object
func (mc *ManagedCloudBackend) objectURL(key string) string {
	return fmt.Sprintf("%s/backups/%s/%s", mc.apiURL, url.PathEscape(mc.deviceID), url.PathEscape(key))
}

// newRequest builds an authenticated request
func (mc *ManagedCloudBackend) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, NewNetworkError("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+mc.apiKey)
	req.Header.Set("X-Device-ID", mc.deviceID)
	return req, nil
}

// statusError converts a non-2xx response into a typed error
func statusError(operation string, resp *http.Response) *Error {
	if resp.StatusCode == http.StatusNotFound {
		return NewNotFoundError(fmt.Sprintf("%s: object not found", operation), nil)
	}
	return NewNetworkError(fmt.Sprintf("%s failed", operation), nil).
		WithContext("status", resp.StatusCode)
}

// Upload stores localPath under key via PUT
func (mc *ManagedCloudBackend) Upload(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewIOError("failed to open "+localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return NewIOError("failed to stat "+localPath, err)
	}

	var body io.Reader = file
	if progress != nil {
		body = &progressReader{r: file, total: info.Size(), progress: progress}
	}

	req, err := mc.newRequest(ctx, http.MethodPut, mc.objectURL(key), body)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return NewNetworkError("upload of "+key+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("upload of "+key, resp)
	}
	if progress != nil {
		progress(info.Size(), info.Size())
	}
	return nil
}

// Download retrieves the object named by key into localPath via GET
func (mc *ManagedCloudBackend) Download(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	req, err := mc.newRequest(ctx, http.MethodGet, mc.objectURL(key), nil)
	if err != nil {
		return err
	}

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return NewNetworkError("download of "+key+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("download of "+key, resp)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return NewIOError("failed to create local directory", err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		return NewIOError("failed to create "+localPath, err)
	}
	defer out.Close()

	var reader io.Reader = resp.Body
	if progress != nil {
		reader = &progressReader{r: resp.Body, total: resp.ContentLength, progress: progress}
	}

	if _, err := io.Copy(out, reader); err != nil {
		return NewNetworkError("failed to read object "+key, err)
	}
	return out.Sync()
}

// Delete removes the object named by key via DELETE
func (mc *ManagedCloudBackend) Delete(ctx context.Context, key string) error {
	req, err := mc.newRequest(ctx, http.MethodDelete, mc.objectURL(key), nil)
	if err != nil {
		return err
	}

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return NewNetworkError("delete of "+key+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("delete of "+key, resp)
	}
	return nil
}

// List returns objects whose keys start with prefix
func (mc *ManagedCloudBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	listURL := fmt.Sprintf("%s/backups/%s", mc.apiURL, url.PathEscape(mc.deviceID))
	if prefix != "" {
		listURL += "?prefix=" + url.QueryEscape(prefix)
	}

	req, err := mc.newRequest(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("listing failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("listing", resp)
	}

	var listed []cloudObject
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, NewNetworkError("failed to parse listing response", err)
	}

	objects := make([]ObjectInfo, 0, len(listed))
	for _, obj := range listed {
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			SizeBytes:    obj.SizeBytes,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

// Exists reports whether an object with the given key exists via HEAD
func (mc *ManagedCloudBackend) Exists(ctx context.Context, key string) (bool, error) {
	req, err := mc.newRequest(ctx, http.MethodHead, mc.objectURL(key), nil)
	if err != nil {
		return false, err
	}

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return false, NewNetworkError("existence check of "+key+" failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, statusError("existence check of "+key, resp)
	}
}

// GetMetadata returns metadata for the object named by key via HEAD
func (mc *ManagedCloudBackend) GetMetadata(ctx context.Context, key string) (*ObjectInfo, error) {
	req, err := mc.newRequest(ctx, http.MethodHead, mc.objectURL(key), nil)
	if err != nil {
		return nil, err
	}

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("metadata request for "+key+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("metadata request for "+key, resp)
	}

	info := &ObjectInfo{Key: key, SizeBytes: resp.ContentLength}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if ts, err := http.ParseTime(lm); err == nil {
			info.LastModified = ts
		}
	}
	if cl := resp.Header.Get("Content-Length"); info.SizeBytes < 0 && cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			info.SizeBytes = n
		}
	}
	return info, nil
}

// AccountInfo polls /account for storage consumption against the quota
func (mc *ManagedCloudBackend) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	req, err := mc.newRequest(ctx, http.MethodGet, mc.apiURL+"/account", nil)
	if err != nil {
		return nil, err
	}

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("account request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("account request", resp)
	}

	var account cloudAccount
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, NewNetworkError("failed to parse account response", err)
	}

	return &AccountInfo{
		StorageUsed:  account.StorageUsed,
		StorageQuota: account.StorageQuota,
	}, nil
}
