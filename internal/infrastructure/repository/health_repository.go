package repository

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
)

// MinFreeBytes is the free space below which the upload root is unhealthy
const MinFreeBytes = 1 << 30

// HealthRepositoryImpl implements HealthRepository
type HealthRepositoryImpl struct {
	tokens      repository.TokenStore
	storagePath string
}

// NewHealthRepository creates a new health repository
func NewHealthRepository(tokens repository.TokenStore, storagePath string) repository.HealthRepository {
	return &HealthRepositoryImpl{
		tokens:      tokens,
		storagePath: storagePath,
	}
}

// CheckHealth performs a comprehensive health check
func (h *HealthRepositoryImpl) CheckHealth(ctx context.Context) (*entities.HealthCheck, error) {
	checks := make(map[string]entities.CheckResult)

	checks["token_store"] = h.CheckTokenStore(ctx)
	checks["storage"] = h.CheckStorage(ctx)
	checks["disk_space"] = h.CheckDiskSpace(ctx)

	systemInfo, err := h.GetSystemInfo(ctx)
	if err != nil {
		systemInfo = &entities.SystemInfo{}
	}

	overallStatus := entities.HealthStatusUp
	for _, check := range checks {
		if check.Status == entities.HealthStatusDown {
			overallStatus = entities.HealthStatusDown
			break
		} else if check.Status == entities.HealthStatusPartial {
			overallStatus = entities.HealthStatusPartial
		}
	}

	return &entities.HealthCheck{
		Status:     overallStatus,
		Checks:     checks,
		SystemInfo: *systemInfo,
	}, nil
}

// CheckTokenStore pings the batch token backend
func (h *HealthRepositoryImpl) CheckTokenStore(ctx context.Context) entities.CheckResult {
	if h.tokens == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Token store is not configured",
		}
	}
	if err := h.tokens.Ping(ctx); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Token store ping failed: %v", err),
		}
	}
	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "Token store is healthy",
	}
}

func (h *HealthRepositoryImpl) writable() error {
	f, err := os.CreateTemp(h.storagePath, ".health_check-*")
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(f.Name())
}

// CheckStorage verifies the upload root exists and accepts writes
func (h *HealthRepositoryImpl) CheckStorage(ctx context.Context) entities.CheckResult {
	info, err := os.Stat(h.storagePath)
	if err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Storage path not accessible",
		}
	}

	if !info.IsDir() {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Storage path is not a directory",
		}
	}

	if err := h.writable(); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Cannot write to storage",
		}
	}

	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "Storage is healthy",
		Details: map[string]interface{}{
			"writable": true,
		},
	}
}

func (h *HealthRepositoryImpl) statfs() (total, available uint64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(h.storagePath, &stat); err != nil {
		return 0, 0, err
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize), nil
}

// CheckDiskSpace checks available disk space
func (h *HealthRepositoryImpl) CheckDiskSpace(ctx context.Context) entities.CheckResult {
	totalSpace, availableSpace, err := h.statfs()
	if err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Failed to check disk space",
		}
	}

	usedSpace := totalSpace - availableSpace
	usagePercent := 0.0
	if totalSpace > 0 {
		usagePercent = float64(usedSpace) / float64(totalSpace) * 100
	}

	details := map[string]interface{}{
		"total_bytes":     totalSpace,
		"available_bytes": availableSpace,
		"used_bytes":      usedSpace,
		"usage_percent":   usagePercent,
	}

	status := entities.HealthStatusUp
	message := "Disk space is sufficient"

	if availableSpace < MinFreeBytes {
		status = entities.HealthStatusDown
		message = "Critical: less than 1 GiB free"
	} else if usagePercent > 90 {
		status = entities.HealthStatusPartial
		message = "Warning: Disk space is running low"
	}

	return entities.CheckResult{
		Status:  status,
		Message: message,
		Details: details,
	}
}

// GetSystemInfo retrieves system information
func (h *HealthRepositoryImpl) GetSystemInfo(ctx context.Context) (*entities.SystemInfo, error) {
	total, available, err := h.statfs()
	if err != nil {
		return nil, err
	}

	diskUsagePercent := 0.0
	if total > 0 {
		diskUsagePercent = float64(total-available) / float64(total) * 100
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &entities.SystemInfo{
		TotalDiskSpace:     int64(total),
		AvailableDiskSpace: int64(available),
		DiskUsagePercent:   diskUsagePercent,
		TotalMemory:        int64(memStats.Sys),
		AvailableMemory:    int64(memStats.Sys - memStats.Alloc),
		MemoryUsagePercent: float64(memStats.Alloc) / float64(memStats.Sys) * 100,
		GoRoutines:         runtime.NumGoroutine(),
	}, nil
}

// StorageHealth is healthy iff the root is writable and more than 1 GiB is
// free. Free space is reported in GB rounded to two decimals.
func (h *HealthRepositoryImpl) StorageHealth(ctx context.Context) (*entities.StorageHealth, error) {
	result := &entities.StorageHealth{Status: entities.StorageUnhealthy}

	_, available, err := h.statfs()
	if err != nil {
		return result, fmt.Errorf("failed to read disk usage: %w", err)
	}
	result.DiskFreeGB = math.Round(float64(available)/(1<<30)*100) / 100
	result.Writable = h.writable() == nil

	if result.Writable && available > MinFreeBytes {
		result.Status = entities.StorageHealthy
	}
	return result, nil
}

// IsReady checks if the service is ready to handle requests
func (h *HealthRepositoryImpl) IsReady(ctx context.Context) (bool, string) {
	if _, err := os.Stat(filepath.Clean(h.storagePath)); err != nil {
		return false, "Storage not ready"
	}

	if h.tokens != nil {
		if err := h.tokens.Ping(ctx); err != nil {
			return false, fmt.Sprintf("Token store not ready: %v", err)
		}
	}

	return true, "Service is ready"
}
