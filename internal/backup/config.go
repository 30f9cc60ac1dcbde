package backup

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EncryptionConfig selects the scheme used for new archives. Existing
// archives decrypt by their stored scheme regardless of this setting.
type EncryptionConfig struct {
	Scheme string `yaml:"scheme"`
}

// Supported encryption scheme names
const (
	SchemeNameSecretbox = "secretbox"
	SchemeNameAESGCM    = "aes-gcm"
)

// SchemeByte maps a configured scheme name to its wire byte
func (ec *EncryptionConfig) SchemeByte() (byte, error) {
	switch ec.Scheme {
	case SchemeNameSecretbox, "":
		return SchemeSecretbox, nil
	case SchemeNameAESGCM:
		return SchemeAESGCM, nil
	default:
		return 0, NewConfigurationError(fmt.Sprintf("unknown encryption scheme: %s", ec.Scheme), nil)
	}
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatasetConfig locates the live record store for standalone use. Host
// applications embedding the system supply their own DatasetProvider
// instead.
type DatasetConfig struct {
	StorePath       string `yaml:"store_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// BackupSystemConfig is the root configuration for the backup system
type BackupSystemConfig struct {
	BackupDir  string `yaml:"backup_dir"`
	AppVersion string `yaml:"app_version"`
	ReportPath string `yaml:"report_path"`

	Dataset       DatasetConfig      `yaml:"dataset"`
	Storage       BackendConfig      `yaml:"storage"`
	Encryption    EncryptionConfig   `yaml:"encryption"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Sync          CoordinatorConfig  `yaml:"sync"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// SetDefaults fills the configuration with the standard policy
func (c *BackupSystemConfig) SetDefaults() {
	if c.BackupDir == "" {
		c.BackupDir = "./backups"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "normal"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = BackendTypeLocal
		c.Storage.Local = &LocalConfig{BasePath: "./backups/cloud"}
	}
	c.Scheduler.setDefaults()
	c.Sync.setDefaults()
}

// LoadFromEnvironment overrides secrets and connection details from the
// environment so they can stay out of the config file
func (c *BackupSystemConfig) LoadFromEnvironment() {
	if v := os.Getenv("EMR_BACKUP_DIR"); v != "" {
		c.BackupDir = v
	}
	if v := os.Getenv("EMR_STORE_PATH"); v != "" {
		c.Dataset.StorePath = v
	}
	if v := os.Getenv("EMR_BACKUP_PASSWORD"); v != "" {
		c.Scheduler.Password = v
		c.Sync.Password = v
	}
	if v := os.Getenv("EMR_SYNC_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Sync.Enabled = enabled
		}
	}
	if v := os.Getenv("EMR_SYNC_WINDOW"); v != "" {
		if window, err := time.ParseDuration(v); err == nil {
			c.Sync.SameGenerationWindow = window
		}
	}
	if v := os.Getenv("EMR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if c.Storage.S3 != nil {
		if v := os.Getenv("EMR_S3_ACCESS_KEY"); v != "" {
			c.Storage.S3.AccessKey = v
		}
		if v := os.Getenv("EMR_S3_SECRET_KEY"); v != "" {
			c.Storage.S3.SecretKey = v
		}
	}
	if c.Storage.ManagedCloud != nil {
		if v := os.Getenv("EMR_CLOUD_API_KEY"); v != "" {
			c.Storage.ManagedCloud.APIKey = v
		}
		if v := os.Getenv("EMR_CLOUD_DEVICE_ID"); v != "" {
			c.Storage.ManagedCloud.DeviceID = v
		}
	}
	if c.Storage.Azure != nil {
		if v := os.Getenv("EMR_AZURE_ACCOUNT_KEY"); v != "" {
			c.Storage.Azure.AccountKey = v
		}
	}
}

// Validate validates the whole configuration
func (c *BackupSystemConfig) Validate() error {
	var errors FieldErrors

	if c.BackupDir == "" {
		errors.Add("backup_dir", "backup directory is required", nil)
	}
	if !IsValidFrequency(c.Scheduler.FrequencyHours) {
		errors.Add("scheduler.frequency_hours",
			fmt.Sprintf("unsupported backup frequency: %d hours", c.Scheduler.FrequencyHours),
			c.Scheduler.FrequencyHours)
	}
	if c.Scheduler.MaxBackups < 1 {
		errors.Add("scheduler.max_backups", "max backups must be at least 1", c.Scheduler.MaxBackups)
	}
	if _, err := c.Encryption.SchemeByte(); err != nil {
		errors.Add("encryption.scheme", err.Error(), c.Encryption.Scheme)
	}

	// The storage union only matters when sync is on
	if c.Sync.Enabled {
		if err := c.Storage.Validate(); err != nil {
			if fieldErrs, ok := err.(FieldErrors); ok {
				errors = append(errors, fieldErrs...)
			} else {
				errors.Add("storage", err.Error(), nil)
			}
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}
