package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *LocalBackend) {
	t.Helper()
	backend := newTestLocalBackend(t)

	orchestrator, err := NewOrchestrator(backend, BackendTypeLocal,
		NewDefaultCryptoEngine(), nil, nil, t.TempDir())
	require.NoError(t, err)
	return orchestrator, backend
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(nil, BackendTypeLocal, NewDefaultCryptoEngine(), nil, nil, t.TempDir())
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConfiguration))

	_, err = NewOrchestrator(newTestLocalBackend(t), BackendTypeLocal, nil, nil, nil, t.TempDir())
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConfiguration))
}

func TestOrchestrator_SyncToCloud_EncryptsBeforeUpload(t *testing.T) {
	orchestrator, backend := newTestOrchestrator(t)
	ctx := context.Background()

	archive := filepath.Join(t.TempDir(), "backup_2026-08-29_10-00-00.zip")
	require.NoError(t, os.WriteFile(archive, []byte("plaintext archive"), 0o600))

	require.NoError(t, orchestrator.SyncToCloud(ctx, archive, "password"))
	assert.Equal(t, SyncStatusComplete, orchestrator.Status())

	// Exactly one object lands remotely, under the encrypted name
	objects, err := backend.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "backup_2026-08-29_10-00-00.encrypted.zip", objects[0].Key)

	// The stored bytes are ciphertext that decrypts back to the archive
	stored, err := os.ReadFile(filepath.Join(backend.BasePath(), objects[0].Key))
	require.NoError(t, err)
	assert.NotContains(t, string(stored), "plaintext archive")

	blob, err := ParseBlob(stored)
	require.NoError(t, err)
	plaintext, err := NewDefaultCryptoEngine().Decrypt(blob, "password")
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext archive"), plaintext)
}

func TestOrchestrator_SyncToCloud_AlreadyEncrypted(t *testing.T) {
	orchestrator, backend := newTestOrchestrator(t)
	ctx := context.Background()

	engine := NewDefaultCryptoEngine()
	blob, err := engine.Encrypt([]byte("archive"), "password")
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "backup_2026-08-29_10-00-00.encrypted.zip")
	require.NoError(t, os.WriteFile(archive, blob.Bytes(), 0o600))

	// No password needed; the bytes go up untouched
	require.NoError(t, orchestrator.SyncToCloud(ctx, archive, ""))

	stored, err := os.ReadFile(filepath.Join(backend.BasePath(), filepath.Base(archive)))
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes(), stored)
}

func TestOrchestrator_SyncToCloud_PlaintextWithoutPassword(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)

	archive := filepath.Join(t.TempDir(), "backup_2026-08-29_10-00-00.zip")
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0o600))

	err := orchestrator.SyncToCloud(context.Background(), archive, "")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeValidation))
	assert.Equal(t, SyncStatusError, orchestrator.Status())
}

func TestOrchestrator_SyncToCloud_MissingArchive(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)

	err := orchestrator.SyncToCloud(context.Background(), "/nonexistent/backup.zip", "password")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeNotFound))
}

func TestOrchestrator_RestoreFromCloud_RoundTrip(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)
	ctx := context.Background()

	archive := filepath.Join(t.TempDir(), "backup_2026-08-29_10-00-00.zip")
	require.NoError(t, os.WriteFile(archive, []byte("plaintext archive"), 0o600))
	require.NoError(t, orchestrator.SyncToCloud(ctx, archive, "password"))

	localPath, err := orchestrator.RestoreFromCloud(ctx, "backup_2026-08-29_10-00-00.encrypted.zip", "password")
	require.NoError(t, err)
	assert.Equal(t, "backup_2026-08-29_10-00-00.zip", filepath.Base(localPath))

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext archive"), data)
}

func TestOrchestrator_RestoreFromCloud_WrongPassword(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)
	ctx := context.Background()

	archive := filepath.Join(t.TempDir(), "backup_2026-08-29_10-00-00.zip")
	require.NoError(t, os.WriteFile(archive, []byte("plaintext archive"), 0o600))
	require.NoError(t, orchestrator.SyncToCloud(ctx, archive, "password"))

	_, err := orchestrator.RestoreFromCloud(ctx, "backup_2026-08-29_10-00-00.encrypted.zip", "wrong")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeDecryption))
}

func TestOrchestrator_ConcurrentOperationFailsFast(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)

	// Claim the slot directly, as a long-running operation would
	require.NoError(t, orchestrator.begin(SyncStatusSyncing))
	defer orchestrator.finish(nil)

	err := orchestrator.SyncToCloud(context.Background(), "irrelevant.zip", "password")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConflict))

	_, err = orchestrator.RestoreFromCloud(context.Background(), "irrelevant.zip", "password")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConflict))
}

func TestOrchestrator_ListCloudBackups_FiltersSidecars(t *testing.T) {
	orchestrator, backend := newTestOrchestrator(t)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o600))
	require.NoError(t, backend.Upload(ctx, "backup_a.zip", source, nil))
	require.NoError(t, backend.Upload(ctx, "backup_b.encrypted.zip", source, nil))
	require.NoError(t, backend.Upload(ctx, "backup-report_2026.json", source, nil))

	archives, err := orchestrator.ListCloudBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, archives, 2)
	for _, obj := range archives {
		assert.NotContains(t, obj.Key, ".json")
	}
}
