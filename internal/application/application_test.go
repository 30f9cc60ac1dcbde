package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"emr-backup-sync/internal/backup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *backup.BackupSystemConfig {
	t.Helper()
	config := &backup.BackupSystemConfig{}
	config.SetDefaults()
	config.BackupDir = t.TempDir()
	config.Storage.Local = &backup.LocalConfig{BasePath: t.TempDir()}
	return config
}

func testDataset(t *testing.T) backup.DatasetProvider {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "emr.db")
	require.NoError(t, os.WriteFile(storePath, []byte("store"), 0o600))

	dataset, err := backup.NewFileDataset(storePath, "", nil)
	require.NoError(t, err)
	return dataset
}

func TestNewApplication_RequiresDataset(t *testing.T) {
	_, err := NewApplication(context.Background(), Options{Config: testConfig(t)})
	require.Error(t, err)
}

func TestNewApplication_SyncDisabledSkipsCloudWiring(t *testing.T) {
	app, err := NewApplication(context.Background(), Options{
		Config:  testConfig(t),
		Dataset: testDataset(t),
	})
	require.NoError(t, err)

	assert.NotNil(t, app.Archiver())
	assert.NotNil(t, app.Scheduler())
	assert.NotNil(t, app.Metrics())
	assert.Nil(t, app.Coordinator())
	assert.Nil(t, app.Orchestrator())
}

func TestNewApplication_SyncEnabledWiresCloud(t *testing.T) {
	config := testConfig(t)
	config.Sync.Enabled = true

	app, err := NewApplication(context.Background(), Options{
		Config:  config,
		Dataset: testDataset(t),
	})
	require.NoError(t, err)

	assert.NotNil(t, app.Coordinator())
	assert.NotNil(t, app.Orchestrator())
}

func TestNewApplication_RejectsUnknownScheme(t *testing.T) {
	config := testConfig(t)
	config.Encryption.Scheme = "rot13"

	_, err := NewApplication(context.Background(), Options{
		Config:  config,
		Dataset: testDataset(t),
	})
	require.Error(t, err)
}

func TestApplication_StartAndShutdown(t *testing.T) {
	config := testConfig(t)
	config.Sync.Enabled = true
	config.Scheduler.Enabled = true

	app, err := NewApplication(context.Background(), Options{
		Config:  config,
		Dataset: testDataset(t),
	})
	require.NoError(t, err)

	require.NoError(t, app.Start(1))
	require.NoError(t, app.Shutdown())

	// Shutdown left both loops stopped
	assert.False(t, app.Scheduler().State().BackupInProgress)
	assert.False(t, app.Coordinator().State().Syncing)
}
