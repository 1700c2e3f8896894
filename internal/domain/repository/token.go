package repository

import (
	"context"
	"time"

	"github.com/zots0127/filevault/internal/domain/entities"
)

// TokenStore is the key-value registry behind batch-download tokens.
// Implementations must be safe for concurrent use.
type TokenStore interface {
	// Put stores the token until its ExpiresAt
	Put(ctx context.Context, token *entities.BatchToken) error

	// Get returns the token or an error matching entities.ErrNotFound
	Get(ctx context.Context, token string) (*entities.BatchToken, error)

	// PurgeExpired removes every token expired at now and reports how many
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}
