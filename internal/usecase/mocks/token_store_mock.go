package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/filevault/internal/domain/entities"
)

// MockTokenStore is a mock implementation of TokenStore
type MockTokenStore struct {
	mock.Mock
}

// Put mocks the Put method
func (m *MockTokenStore) Put(ctx context.Context, token *entities.BatchToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// Get mocks the Get method
func (m *MockTokenStore) Get(ctx context.Context, token string) (*entities.BatchToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.BatchToken), args.Error(1)
}

// PurgeExpired mocks the PurgeExpired method
func (m *MockTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// Ping mocks the Ping method
func (m *MockTokenStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks the Close method
func (m *MockTokenStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
