package backup

import (
	"context"
	"fmt"
)

// NewStorageBackend creates a storage backend from a validated BackendConfig.
// Selection is by tag only; every variant satisfies StorageBackend.
func NewStorageBackend(ctx context.Context, config BackendConfig) (StorageBackend, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid storage configuration", err)
	}

	switch config.Provider {
	case BackendTypeLocal:
		return NewLocalBackend(config.Local)

	case BackendTypeS3:
		return NewS3Backend(config.S3)

	case BackendTypeManagedCloud:
		return NewManagedCloudBackend(config.ManagedCloud)

	case BackendTypeGCS:
		return NewGCSBackend(ctx, config.GCS)

	case BackendTypeAzure:
		return NewAzureBackend(config.Azure)

	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
	}
}

// SupportedBackends returns the supported storage backend types
func SupportedBackends() []BackendType {
	return []BackendType{
		BackendTypeLocal,
		BackendTypeS3,
		BackendTypeManagedCloud,
		BackendTypeGCS,
		BackendTypeAzure,
	}
}
