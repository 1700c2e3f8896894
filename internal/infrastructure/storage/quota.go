package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zots0127/filevault/internal/domain/entities"
)

// CheckQuota sums every content file under the owner's tree with a full walk
// and compares used+additional against the configured limit. When the limit
// would be exceeded the usage is returned together with a quota_exceeded error.
func (s *Store) CheckQuota(ctx context.Context, ownerID string, additional int64) (entities.QuotaUsage, error) {
	usage := entities.QuotaUsage{OwnerID: ownerID, LimitBytes: s.quotaBytes, Requested: additional}
	if err := ValidateOwner(ownerID); err != nil {
		return usage, err
	}

	used, err := s.usedBytes(ctx, ownerID)
	if err != nil {
		return usage, err
	}
	usage.UsedBytes = used

	if !usage.Allowed() {
		return usage, entities.NewError(entities.KindQuotaExceeded,
			"upload would exceed quota. Used: %d, Quota: %d, Requested: %d", used, s.quotaBytes, additional)
	}
	return usage, nil
}

func (s *Store) usedBytes(ctx context.Context, ownerID string) (int64, error) {
	base := filepath.Join(s.root, StoragePrefix, SanitizeFolderPart(ownerID))

	var used int64
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				if p == base {
					return fs.SkipAll
				}
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		used += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to compute usage: %w", err)
	}
	return used, nil
}

// LockOwner serializes quota check-and-commit sequences for one owner
func (s *Store) LockOwner(ownerID string) func() {
	return s.locks.lock(SanitizeFolderPart(ownerID))
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// ownerLocks is a keyed mutex. Entries are dropped once nobody holds or waits
// on them.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*ownerLock)}
}

func (l *ownerLocks) lock(owner string) func() {
	l.mu.Lock()
	entry, ok := l.locks[owner]
	if !ok {
		entry = &ownerLock{}
		l.locks[owner] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, owner)
			}
			l.mu.Unlock()
		})
	}
}
