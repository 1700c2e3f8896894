package repository

import (
	"context"

	"github.com/zots0127/filevault/internal/domain/entities"
)

// HealthRepository defines the interface for health check operations
type HealthRepository interface {
	// CheckHealth performs a comprehensive health check
	CheckHealth(ctx context.Context) (*entities.HealthCheck, error)

	// CheckTokenStore verifies the batch token backend is reachable
	CheckTokenStore(ctx context.Context) entities.CheckResult

	// CheckStorage verifies the upload root is accessible and writable
	CheckStorage(ctx context.Context) entities.CheckResult

	// CheckDiskSpace checks available disk space
	CheckDiskSpace(ctx context.Context) entities.CheckResult

	// GetSystemInfo retrieves system information
	GetSystemInfo(ctx context.Context) (*entities.SystemInfo, error)

	// StorageHealth is the compact probe: free space and writability
	StorageHealth(ctx context.Context) (*entities.StorageHealth, error)

	// IsReady checks if the service is ready to handle requests
	IsReady(ctx context.Context) (bool, string)
}
