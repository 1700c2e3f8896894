// Package tokenstore holds batch-download tokens. Tokens live in process
// memory by default; redis and sqlite backends let several instances, or a
// restarted one, resolve the same token.
package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
)

// MemoryStore is a mutex-guarded map of tokens
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*entities.BatchToken
	now    func() time.Time
}

var _ repository.TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]*entities.BatchToken), now: time.Now}
}

func (m *MemoryStore) Put(ctx context.Context, token *entities.BatchToken) error {
	if token == nil || token.Token == "" {
		return entities.NewValidationError("token", "token is required")
	}
	stored := *token
	stored.Keys = append([]string(nil), token.Keys...)

	m.mu.Lock()
	m.tokens[token.Token] = &stored
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, token string) (*entities.BatchToken, error) {
	m.mu.RLock()
	stored, ok := m.tokens[token]
	m.mu.RUnlock()
	if !ok || stored.Expired(m.now()) {
		return nil, notFound()
	}
	out := *stored
	out.Keys = append([]string(nil), stored.Keys...)
	return &out, nil
}

func (m *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, token := range m.tokens {
		if token.Expired(now) {
			delete(m.tokens, id)
			purged++
		}
	}
	return purged, nil
}

// Len reports how many tokens are held, expired ones included
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func notFound() error {
	return entities.NewError(entities.KindNotFound, "invalid or expired token")
}
