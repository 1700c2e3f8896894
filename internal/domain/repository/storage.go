package repository

import (
	"context"
	"io"
	"time"

	"github.com/zots0127/filevault/internal/domain/entities"
)

// FileRepository is the key/layout engine: it derives keys, accounts quota
// and owns the content and sidecar files under the storage tree.
type FileRepository interface {
	// DeriveKey builds a fresh unique key from sanitized components
	DeriveKey(ownerID, folder, filename string) string

	// CheckQuota sums the owner's stored bytes and compares against the limit
	CheckQuota(ctx context.Context, ownerID string, additional int64) (entities.QuotaUsage, error)

	// LockOwner serializes check-and-commit sequences for one owner.
	// The returned func releases the lock.
	LockOwner(ownerID string) func()

	// Create stages a new content file for key. Nothing is visible under the
	// key until Commit.
	Create(ctx context.Context, key string) (StagedFile, error)

	// WriteRecord persists the sidecar descriptor for a committed file
	WriteRecord(ctx context.Context, file *entities.StoredFile) error

	// Stat returns the stored file at key merged with its sidecar
	Stat(ctx context.Context, key string) (*entities.StoredFile, error)

	// Open returns a seekable reader over the content at key
	Open(ctx context.Context, key string) (io.ReadSeekCloser, *entities.StoredFile, error)

	// ListFiles walks the owner's tree, newest first
	ListFiles(ctx context.Context, ownerID, folder string) ([]*entities.StoredFile, error)

	// DeleteFile removes content and sidecar; false when nothing existed
	DeleteFile(ctx context.Context, key string) (bool, error)
}

// StagedFile is content being written ahead of its final key
type StagedFile interface {
	io.Writer

	// Commit atomically moves the staged bytes under the final key
	Commit() error

	// Discard drops the staged bytes. Safe to call after Commit.
	Discard() error
}

// SessionRepository persists in-flight upload sessions and their numbered parts
type SessionRepository interface {
	// CreateSession allocates the session directory and bookkeeping
	CreateSession(ctx context.Context, session *entities.UploadSession) error

	// GetSession loads the bookkeeping for id
	GetSession(ctx context.Context, id string) (*entities.UploadSession, error)

	// SetState records a lifecycle transition
	SetState(ctx context.Context, id string, state entities.SessionState) error

	// WritePart stores one numbered fragment. Duplicate numbers are rejected.
	WritePart(ctx context.Context, id string, partNumber int, r io.Reader) (int64, error)

	// CopyParts streams all parts in ascending part number into w
	CopyParts(ctx context.Context, id string, w io.Writer) (int64, error)

	// DeleteSession removes the session directory
	DeleteSession(ctx context.Context, id string) error

	// SweepSessions removes sessions older than the given age
	SweepSessions(ctx context.Context, olderThan time.Duration) (int, error)
}
