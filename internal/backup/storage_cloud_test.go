package backup

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCloudServer is an in-memory stand-in for the managed cloud API
type fakeCloudServer struct {
	mu       sync.Mutex
	objects  map[string][]byte
	deviceID string
	apiKey   string
}

func (fc *fakeCloudServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+fc.apiKey, r.Header.Get("Authorization"))
		assert.Equal(t, fc.deviceID, r.Header.Get("X-Device-ID"))

		fc.mu.Lock()
		defer fc.mu.Unlock()

		if r.URL.Path == "/account" {
			json.NewEncoder(w).Encode(cloudAccount{StorageUsed: 1024, StorageQuota: 4096})
			return
		}

		prefix := "/backups/" + fc.deviceID
		if r.URL.Path == prefix {
			filter := r.URL.Query().Get("prefix")
			listed := []cloudObject{}
			for key, data := range fc.objects {
				if filter != "" && !strings.HasPrefix(key, filter) {
					continue
				}
				listed = append(listed, cloudObject{
					Key:          key,
					SizeBytes:    int64(len(data)),
					LastModified: time.Now(),
				})
			}
			json.NewEncoder(w).Encode(listed)
			return
		}

		key := strings.TrimPrefix(r.URL.Path, prefix+"/")
		switch r.Method {
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			fc.objects[key] = data
		case http.MethodGet, http.MethodHead:
			data, ok := fc.objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			if r.Method == http.MethodHead {
				w.Header().Set("Content-Length", strconv.Itoa(len(data)))
				return
			}
			w.Write(data)
		case http.MethodDelete:
			if _, ok := fc.objects[key]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(fc.objects, key)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestCloudBackend(t *testing.T) (*ManagedCloudBackend, *fakeCloudServer) {
	t.Helper()
	fake := &fakeCloudServer{
		objects:  map[string][]byte{},
		deviceID: "device-001",
		apiKey:   "test-key",
	}
	server := httptest.NewTLSServer(fake.handler(t))
	t.Cleanup(server.Close)

	backend := &ManagedCloudBackend{
		httpClient: server.Client(),
		apiURL:     server.URL,
		apiKey:     fake.apiKey,
		deviceID:   fake.deviceID,
	}
	return backend, fake
}

func TestNewManagedCloudBackend_RequiresTLS(t *testing.T) {
	_, err := NewManagedCloudBackend(&ManagedCloudConfig{
		APIKey: "k", DeviceID: "d", APIURL: "http://api.example.com",
	})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConfiguration))

	_, err = NewManagedCloudBackend(nil)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConfiguration))
}

func TestManagedCloudBackend_UploadDownload(t *testing.T) {
	backend, fake := newTestCloudBackend(t)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "backup.zip")
	require.NoError(t, os.WriteFile(source, []byte("archive bytes"), 0o600))

	require.NoError(t, backend.Upload(ctx, "backup_2026-08-29_10-00-00.zip", source, nil))
	assert.Equal(t, []byte("archive bytes"), fake.objects["backup_2026-08-29_10-00-00.zip"])

	dest := filepath.Join(t.TempDir(), "fetched.zip")
	require.NoError(t, backend.Download(ctx, "backup_2026-08-29_10-00-00.zip", dest, nil))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("archive bytes"), data)
}

func TestManagedCloudBackend_Download_NotFound(t *testing.T) {
	backend, _ := newTestCloudBackend(t)

	err := backend.Download(context.Background(), "missing.zip", filepath.Join(t.TempDir(), "out"), nil)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeNotFound))
}

func TestManagedCloudBackend_ExistsAndDelete(t *testing.T) {
	backend, fake := newTestCloudBackend(t)
	ctx := context.Background()
	fake.objects["a.zip"] = []byte("x")

	exists, err := backend.Exists(ctx, "a.zip")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, backend.Delete(ctx, "a.zip"))

	exists, err = backend.Exists(ctx, "a.zip")
	require.NoError(t, err)
	assert.False(t, exists)

	err = backend.Delete(ctx, "a.zip")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeNotFound))
}

func TestManagedCloudBackend_List_FiltersByPrefix(t *testing.T) {
	backend, fake := newTestCloudBackend(t)
	fake.objects["backup_a.zip"] = []byte("x")
	fake.objects["backup_b.zip"] = []byte("xy")
	fake.objects["report.json"] = []byte("{}")

	objects, err := backend.List(context.Background(), "backup_")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}

func TestManagedCloudBackend_GetMetadata(t *testing.T) {
	backend, fake := newTestCloudBackend(t)
	fake.objects["a.zip"] = []byte("archive bytes")

	info, err := backend.GetMetadata(context.Background(), "a.zip")
	require.NoError(t, err)
	assert.Equal(t, "a.zip", info.Key)
	assert.Equal(t, int64(len("archive bytes")), info.SizeBytes)
	assert.False(t, info.LastModified.IsZero())
}

func TestManagedCloudBackend_AccountInfo(t *testing.T) {
	backend, _ := newTestCloudBackend(t)

	account, err := backend.AccountInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1024), account.StorageUsed)
	assert.Equal(t, int64(4096), account.StorageQuota)
}
