package tokenstore

import (
	"context"
	"fmt"

	"github.com/zots0127/filevault/internal/domain/repository"
)

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend
type Config struct {
	Backend    string
	Redis      RedisConfig
	SQLitePath string
}

// New builds the configured backend. An empty backend means memory.
func New(ctx context.Context, cfg Config) (repository.TokenStore, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown batch token backend %q", cfg.Backend)
	}
}
