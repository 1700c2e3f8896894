package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/infrastructure/tokenstore"
)

type downTokenStore struct {
	*tokenstore.MemoryStore
}

func (downTokenStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHealthRepository_Healthy(t *testing.T) {
	root := t.TempDir()
	repo := NewHealthRepository(tokenstore.NewMemoryStore(), root)
	ctx := context.Background()

	assert.Equal(t, entities.HealthStatusUp, repo.CheckTokenStore(ctx).Status)
	assert.Equal(t, entities.HealthStatusUp, repo.CheckStorage(ctx).Status)

	health, err := repo.StorageHealth(ctx)
	require.NoError(t, err)
	assert.True(t, health.Writable)
	assert.GreaterOrEqual(t, health.DiskFreeGB, 0.0)

	ready, msg := repo.IsReady(ctx)
	assert.True(t, ready)
	assert.Equal(t, "Service is ready", msg)

	check, err := repo.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Contains(t, check.Checks, "token_store")
	assert.Contains(t, check.Checks, "storage")
	assert.Contains(t, check.Checks, "disk_space")
}

func TestHealthRepository_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	repo := NewHealthRepository(tokenstore.NewMemoryStore(), root)
	ctx := context.Background()

	assert.Equal(t, entities.HealthStatusDown, repo.CheckStorage(ctx).Status)

	health, err := repo.StorageHealth(ctx)
	assert.Error(t, err)
	assert.False(t, health.Healthy())

	ready, _ := repo.IsReady(ctx)
	assert.False(t, ready)
}

func TestHealthRepository_TokenStoreDown(t *testing.T) {
	repo := NewHealthRepository(downTokenStore{tokenstore.NewMemoryStore()}, t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result := repo.CheckTokenStore(ctx)
	assert.Equal(t, entities.HealthStatusDown, result.Status)

	check, err := repo.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.HealthStatusDown, check.Status)

	ready, msg := repo.IsReady(ctx)
	assert.False(t, ready)
	assert.Contains(t, msg, "Token store")
}
