package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
)

// MockFileRepository is a mock implementation of FileRepository
type MockFileRepository struct {
	mock.Mock
}

// DeriveKey mocks the DeriveKey method
func (m *MockFileRepository) DeriveKey(ownerID, folder, filename string) string {
	args := m.Called(ownerID, folder, filename)
	return args.String(0)
}

// CheckQuota mocks the CheckQuota method
func (m *MockFileRepository) CheckQuota(ctx context.Context, ownerID string, additional int64) (entities.QuotaUsage, error) {
	args := m.Called(ctx, ownerID, additional)
	return args.Get(0).(entities.QuotaUsage), args.Error(1)
}

// LockOwner mocks the LockOwner method. The release func is a no-op.
func (m *MockFileRepository) LockOwner(ownerID string) func() {
	m.Called(ownerID)
	return func() {}
}

// Create mocks the Create method
func (m *MockFileRepository) Create(ctx context.Context, key string) (repository.StagedFile, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(repository.StagedFile), args.Error(1)
}

// WriteRecord mocks the WriteRecord method
func (m *MockFileRepository) WriteRecord(ctx context.Context, file *entities.StoredFile) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

// Stat mocks the Stat method
func (m *MockFileRepository) Stat(ctx context.Context, key string) (*entities.StoredFile, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.StoredFile), args.Error(1)
}

// Open mocks the Open method
func (m *MockFileRepository) Open(ctx context.Context, key string) (io.ReadSeekCloser, *entities.StoredFile, error) {
	args := m.Called(ctx, key)
	var rc io.ReadSeekCloser
	if args.Get(0) != nil {
		rc = args.Get(0).(io.ReadSeekCloser)
	}
	var file *entities.StoredFile
	if args.Get(1) != nil {
		file = args.Get(1).(*entities.StoredFile)
	}
	return rc, file, args.Error(2)
}

// ListFiles mocks the ListFiles method
func (m *MockFileRepository) ListFiles(ctx context.Context, ownerID, folder string) ([]*entities.StoredFile, error) {
	args := m.Called(ctx, ownerID, folder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.StoredFile), args.Error(1)
}

// DeleteFile mocks the DeleteFile method
func (m *MockFileRepository) DeleteFile(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockStagedFile is a mock implementation of StagedFile
type MockStagedFile struct {
	mock.Mock
}

// Write mocks the Write method
func (m *MockStagedFile) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

// Commit mocks the Commit method
func (m *MockStagedFile) Commit() error {
	args := m.Called()
	return args.Error(0)
}

// Discard mocks the Discard method
func (m *MockStagedFile) Discard() error {
	args := m.Called()
	return args.Error(0)
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

// CreateSession mocks the CreateSession method
func (m *MockSessionRepository) CreateSession(ctx context.Context, session *entities.UploadSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

// GetSession mocks the GetSession method
func (m *MockSessionRepository) GetSession(ctx context.Context, id string) (*entities.UploadSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.UploadSession), args.Error(1)
}

// SetState mocks the SetState method
func (m *MockSessionRepository) SetState(ctx context.Context, id string, state entities.SessionState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

// WritePart mocks the WritePart method
func (m *MockSessionRepository) WritePart(ctx context.Context, id string, partNumber int, r io.Reader) (int64, error) {
	args := m.Called(ctx, id, partNumber, r)
	return args.Get(0).(int64), args.Error(1)
}

// CopyParts mocks the CopyParts method
func (m *MockSessionRepository) CopyParts(ctx context.Context, id string, w io.Writer) (int64, error) {
	args := m.Called(ctx, id, w)
	return args.Get(0).(int64), args.Error(1)
}

// DeleteSession mocks the DeleteSession method
func (m *MockSessionRepository) DeleteSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// SweepSessions mocks the SweepSessions method
func (m *MockSessionRepository) SweepSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}
