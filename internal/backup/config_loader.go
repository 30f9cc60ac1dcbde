package backup

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigLoader loads and persists the backup system configuration
type ConfigLoader struct {
	configPath string
}

// NewConfigLoader creates a configuration loader
func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{configPath: configPath}
}

// LoadConfig loads configuration from file and environment variables.
// A missing file yields the defaults.
func (cl *ConfigLoader) LoadConfig() (*BackupSystemConfig, error) {
	config := &BackupSystemConfig{}
	config.SetDefaults()

	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, err
		}
	}

	config.LoadFromEnvironment()

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("configuration validation failed", err)
	}
	return config, nil
}

// loadFromFile merges the YAML file into config
func (cl *ConfigLoader) loadFromFile(config *BackupSystemConfig) error {
	if _, err := os.Stat(cl.configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(cl.configPath)
	if err != nil {
		return NewIOError("failed to read config file "+cl.configPath, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return NewConfigurationError("failed to parse YAML config", err)
	}
	return nil
}

// SaveConfig validates then writes the configuration as YAML
func (cl *ConfigLoader) SaveConfig(config *BackupSystemConfig) error {
	if err := config.Validate(); err != nil {
		return NewConfigurationError("cannot save invalid configuration", err)
	}

	if err := os.MkdirAll(filepath.Dir(cl.configPath), 0o755); err != nil {
		return NewIOError("failed to create config directory", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return NewIOError("failed to marshal config to YAML", err)
	}
	if err := os.WriteFile(cl.configPath, data, 0o600); err != nil {
		return NewIOError("failed to write config file", err)
	}
	return nil
}

// LoadConfigFromBytes loads configuration from YAML bytes
func LoadConfigFromBytes(data []byte) (*BackupSystemConfig, error) {
	config := &BackupSystemConfig{}
	config.SetDefaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewConfigurationError("failed to parse YAML config", err)
	}

	config.LoadFromEnvironment()

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("configuration validation failed", err)
	}
	return config, nil
}

// GenerateDefaultConfigYAML returns a commented starter configuration
func GenerateDefaultConfigYAML() []byte {
	return []byte(`# EMR backup and sync configuration

# Directory holding local backup archives
backup_dir: "./backups"

# Live data to back up
dataset:
  store_path: "./data/emr.db"
  vector_index_path: "./data/vector_index"

# Structured logging. Levels: quiet, normal, verbose, debug
logging:
  level: normal
  format: text

# Archive encryption scheme for new backups: secretbox or aes-gcm.
# Existing archives decrypt with whichever scheme they were written with.
encryption:
  scheme: secretbox

# Local backup scheduler
scheduler:
  enabled: true
  # Hours between backups: 1, 4, 12 or 24
  frequency_hours: 24
  # Oldest backups beyond this count are deleted after each backup
  max_backups: 10

# Cloud sync
sync:
  enabled: false
  # Snapshots closer together than this are treated as the same
  # generation and the local copy wins
  same_generation_window: 1h

# Cloud storage backend, used when sync is enabled.
# provider: local, s3, managed_cloud, gcs or azure
storage:
  provider: local
  local:
    base_path: "./backups/cloud"

  # s3:
  #   bucket: "my-backups"
  #   region: "us-east-1"
  #   access_key: ""   # or EMR_S3_ACCESS_KEY
  #   secret_key: ""   # or EMR_S3_SECRET_KEY
  #   endpoint_url: "" # optional, for S3-compatible providers

  # managed_cloud:
  #   api_url: "https://backup.example.com/api/v1"
  #   api_key: ""      # or EMR_CLOUD_API_KEY
  #   device_id: ""    # or EMR_CLOUD_DEVICE_ID

  # gcs:
  #   bucket: "my-backups"
  #   credentials_path: "/path/to/credentials.json"

  # azure:
  #   account_name: "myaccount"
  #   account_key: ""  # or EMR_AZURE_ACCOUNT_KEY
  #   container_name: "backups"

# Notifications for sync status changes
notifications:
  enabled: false
  # webhook:
  #   url: "https://hooks.example.com/backup-status"
`)
}
