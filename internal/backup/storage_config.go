package backup

import (
	"fmt"
	"strings"
)

// BackendType identifies a storage backend variant
type BackendType string

const (
	BackendTypeLocal        BackendType = "local"
	BackendTypeS3           BackendType = "s3"
	BackendTypeManagedCloud BackendType = "managed_cloud"
	BackendTypeGCS          BackendType = "gcs"
	BackendTypeAzure        BackendType = "azure"
)

// BackendConfig is a tagged union over the supported storage backends.
// It is validated once at construction; call sites never probe it ad hoc.
type BackendConfig struct {
	Provider     BackendType         `yaml:"provider"`
	Local        *LocalConfig        `yaml:"local,omitempty"`
	S3           *S3Config           `yaml:"s3,omitempty"`
	ManagedCloud *ManagedCloudConfig `yaml:"managed_cloud,omitempty"`
	GCS          *GCSConfig          `yaml:"gcs,omitempty"`
	Azure        *AzureConfig        `yaml:"azure,omitempty"`
}

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath string `yaml:"base_path"`
}

// S3Config for S3-compatible object stores. EndpointURL is optional and
// selects a non-AWS provider.
type S3Config struct {
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	EndpointURL string `yaml:"endpoint_url,omitempty"`
}

// ManagedCloudConfig for the managed HTTP cloud API
type ManagedCloudConfig struct {
	APIKey   string `yaml:"api_key"`
	DeviceID string `yaml:"device_id"`
	APIURL   string `yaml:"api_url"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsPath string `yaml:"credentials_path"`
	ProjectID       string `yaml:"project_id"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `yaml:"account_name"`
	AccountKey    string `yaml:"account_key"`
	ContainerName string `yaml:"container_name"`
}

// Validate validates the BackendConfig tagged union
func (bc *BackendConfig) Validate() error {
	var errors FieldErrors

	switch bc.Provider {
	case BackendTypeLocal:
		if bc.Local == nil {
			errors.Add("local", "local configuration is required", nil)
		} else if bc.Local.BasePath == "" {
			errors.Add("local.base_path", "base path is required", nil)
		}

	case BackendTypeS3:
		if bc.S3 == nil {
			errors.Add("s3", "s3 configuration is required", nil)
		} else {
			if bc.S3.Bucket == "" {
				errors.Add("s3.bucket", "bucket is required", nil)
			}
			if bc.S3.AccessKey == "" {
				errors.Add("s3.access_key", "access key is required", nil)
			}
			if bc.S3.SecretKey == "" {
				errors.Add("s3.secret_key", "secret key is required", nil)
			}
			if bc.S3.Region == "" && bc.S3.EndpointURL == "" {
				errors.Add("s3.region", "region is required unless a custom endpoint is set", nil)
			}
		}

	case BackendTypeManagedCloud:
		if bc.ManagedCloud == nil {
			errors.Add("managed_cloud", "managed cloud configuration is required", nil)
		} else {
			if bc.ManagedCloud.APIKey == "" {
				errors.Add("managed_cloud.api_key", "api key is required", nil)
			}
			if bc.ManagedCloud.DeviceID == "" {
				errors.Add("managed_cloud.device_id", "device id is required", nil)
			}
			if bc.ManagedCloud.APIURL == "" {
				errors.Add("managed_cloud.api_url", "api url is required", nil)
			} else if !strings.HasPrefix(bc.ManagedCloud.APIURL, "https://") {
				errors.Add("managed_cloud.api_url", "api url must use TLS", bc.ManagedCloud.APIURL)
			}
		}

	case BackendTypeGCS:
		if bc.GCS == nil {
			errors.Add("gcs", "gcs configuration is required", nil)
		} else if bc.GCS.Bucket == "" {
			errors.Add("gcs.bucket", "bucket is required", nil)
		}

	case BackendTypeAzure:
		if bc.Azure == nil {
			errors.Add("azure", "azure configuration is required", nil)
		} else {
			if bc.Azure.AccountName == "" {
				errors.Add("azure.account_name", "account name is required", nil)
			}
			if bc.Azure.AccountKey == "" {
				errors.Add("azure.account_key", "account key is required", nil)
			}
			if bc.Azure.ContainerName == "" {
				errors.Add("azure.container_name", "container name is required", nil)
			}
		}

	case "":
		errors.Add("provider", "storage provider is required", nil)

	default:
		errors.Add("provider", fmt.Sprintf("unsupported storage provider: %s", bc.Provider), bc.Provider)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}
