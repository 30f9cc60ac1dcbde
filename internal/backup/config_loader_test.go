package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoader_LoadConfig_Defaults(t *testing.T) {
	config, err := NewConfigLoader("").LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "./backups", config.BackupDir)
	assert.Equal(t, "normal", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, BackendTypeLocal, config.Storage.Provider)
	assert.Equal(t, 24, config.Scheduler.FrequencyHours)
	assert.Equal(t, 10, config.Scheduler.MaxBackups)
	assert.Equal(t, DefaultSameGenerationWindow, config.Sync.SameGenerationWindow)
}

func TestConfigLoader_LoadConfig_MissingFileUsesDefaults(t *testing.T) {
	loader := NewConfigLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	config, err := loader.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "./backups", config.BackupDir)
}

func TestConfigLoader_LoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backup_dir: "/srv/backups"
scheduler:
  enabled: true
  frequency_hours: 4
sync:
  enabled: true
  same_generation_window: 30m
storage:
  provider: s3
  s3:
    bucket: "emr-backups"
    region: "eu-west-1"
    access_key: "ak"
    secret_key: "sk"
`), 0o600))

	config, err := NewConfigLoader(path).LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/srv/backups", config.BackupDir)
	assert.Equal(t, 4, config.Scheduler.FrequencyHours)
	assert.Equal(t, 30*time.Minute, config.Sync.SameGenerationWindow)
	assert.Equal(t, BackendTypeS3, config.Storage.Provider)
	require.NotNil(t, config.Storage.S3)
	assert.Equal(t, "emr-backups", config.Storage.S3.Bucket)
}

func TestConfigLoader_LoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("EMR_BACKUP_DIR", "/env/backups")
	t.Setenv("EMR_BACKUP_PASSWORD", "env-secret")
	t.Setenv("EMR_LOG_LEVEL", "debug")

	config, err := NewConfigLoader("").LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/env/backups", config.BackupDir)
	assert.Equal(t, "env-secret", config.Scheduler.Password)
	assert.Equal(t, "env-secret", config.Sync.Password)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestConfigLoader_LoadConfig_S3SecretsFromEnvironment(t *testing.T) {
	t.Setenv("EMR_S3_ACCESS_KEY", "env-ak")
	t.Setenv("EMR_S3_SECRET_KEY", "env-sk")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync:
  enabled: true
storage:
  provider: s3
  s3:
    bucket: "emr-backups"
    region: "eu-west-1"
`), 0o600))

	config, err := NewConfigLoader(path).LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-ak", config.Storage.S3.AccessKey)
	assert.Equal(t, "env-sk", config.Storage.S3.SecretKey)
}

func TestConfigLoader_LoadConfig_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  frequency_hours: 7
encryption:
  scheme: rot13
`), 0o600))

	_, err := NewConfigLoader(path).LoadConfig()
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConfiguration))
}

func TestConfigLoader_LoadConfig_StorageCheckedOnlyWhenSyncEnabled(t *testing.T) {
	// An incomplete storage section passes while sync is off
	config, err := LoadConfigFromBytes([]byte(`
storage:
  provider: s3
`))
	require.NoError(t, err)
	assert.False(t, config.Sync.Enabled)

	_, err = LoadConfigFromBytes([]byte(`
sync:
  enabled: true
storage:
  provider: s3
`))
	require.Error(t, err)
}

func TestConfigLoader_SaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	loader := NewConfigLoader(path)

	config := &BackupSystemConfig{}
	config.SetDefaults()
	config.BackupDir = "/srv/backups"
	config.Scheduler.Enabled = true
	require.NoError(t, loader.SaveConfig(config))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := loader.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/srv/backups", loaded.BackupDir)
	assert.True(t, loaded.Scheduler.Enabled)
}

func TestConfigLoader_SaveConfig_RejectsInvalid(t *testing.T) {
	loader := NewConfigLoader(filepath.Join(t.TempDir(), "config.yaml"))

	config := &BackupSystemConfig{}
	config.SetDefaults()
	config.Scheduler.FrequencyHours = 7
	require.Error(t, loader.SaveConfig(config))
}

func TestGenerateDefaultConfigYAML_Loads(t *testing.T) {
	config, err := LoadConfigFromBytes(GenerateDefaultConfigYAML())
	require.NoError(t, err)
	assert.Equal(t, "./backups", config.BackupDir)
	assert.Equal(t, SchemeNameSecretbox, config.Encryption.Scheme)
	assert.True(t, config.Scheduler.Enabled)
	assert.False(t, config.Sync.Enabled)
}

func TestEncryptionConfig_SchemeByte(t *testing.T) {
	cases := map[string]byte{
		"":                  SchemeSecretbox,
		SchemeNameSecretbox: SchemeSecretbox,
		SchemeNameAESGCM:    SchemeAESGCM,
	}
	for name, want := range cases {
		ec := EncryptionConfig{Scheme: name}
		got, err := ec.SchemeByte()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := (&EncryptionConfig{Scheme: "rot13"}).SchemeByte()
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConfiguration))
}
