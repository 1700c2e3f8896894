package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
)

const (
	sessionMetadataFile = "metadata.json"
	partPrefix          = "part_"

	// MaxPartNumber is the largest number representable by the part file name
	MaxPartNumber = 999999

	copyBufferSize = 32 * 1024
)

// SessionStore implements repository.SessionRepository with one directory
// per session under {root}/.parts.
type SessionStore struct {
	dir string
	now func() time.Time
}

var _ repository.SessionRepository = (*SessionStore)(nil)

// NewSessionStore creates the parts directory under root
func NewSessionStore(root string) (*SessionStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	dir := filepath.Join(abs, PartsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parts directory: %w", err)
	}
	return &SessionStore{dir: dir, now: time.Now}, nil
}

// PartName is the fixed-width file name for a part number
func PartName(partNumber int) string {
	return fmt.Sprintf("%s%06d", partPrefix, partNumber)
}

func sessionNotFound(id string) error {
	return entities.NewError(entities.KindSessionNotFound, "upload session %s not found", id)
}

// sessionDir maps an id onto its directory. Ids that are not UUIDs can never
// name a session.
func (s *SessionStore) sessionDir(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", sessionNotFound(id)
	}
	return filepath.Join(s.dir, id), nil
}

func (s *SessionStore) existingDir(id string) (string, error) {
	dir, err := s.sessionDir(id)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", sessionNotFound(id)
	}
	return dir, nil
}

// CreateSession allocates the session directory and writes metadata.json
func (s *SessionStore) CreateSession(ctx context.Context, session *entities.UploadSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.sessionDir(session.ID)
	if err != nil {
		return entities.NewValidationError("uploadId", "invalid session id")
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now().UTC()
	}
	if err := s.writeMetadata(dir, session); err != nil {
		os.RemoveAll(dir)
		return err
	}
	return nil
}

func (s *SessionStore) writeMetadata(dir string, session *entities.UploadSession) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, sessionMetadataFile), data); err != nil {
		return fmt.Errorf("failed to write session metadata: %w", err)
	}
	return nil
}

// GetSession loads metadata.json for id
func (s *SessionStore) GetSession(ctx context.Context, id string) (*entities.UploadSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.existingDir(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, sessionMetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sessionNotFound(id)
		}
		return nil, fmt.Errorf("failed to read session metadata: %w", err)
	}
	var session entities.UploadSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	return &session, nil
}

// SetState records a lifecycle transition in metadata.json
func (s *SessionStore) SetState(ctx context.Context, id string, state entities.SessionState) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	session.State = state
	dir, _ := s.sessionDir(id)
	return s.writeMetadata(dir, session)
}

// WritePart stores one fragment as part_NNNNNN. A part number that was
// already received is rejected instead of silently overwritten.
func (s *SessionStore) WritePart(ctx context.Context, id string, partNumber int, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if partNumber < 1 || partNumber > MaxPartNumber {
		return 0, entities.NewValidationError("partNumber", "part number must be between 1 and %d", MaxPartNumber)
	}
	dir, err := s.existingDir(id)
	if err != nil {
		return 0, err
	}

	p := filepath.Join(dir, PartName(partNumber))
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return 0, entities.NewValidationError("partNumber", "part %d already received", partNumber)
		}
		if os.IsNotExist(err) {
			return 0, sessionNotFound(id)
		}
		return 0, fmt.Errorf("failed to create part: %w", err)
	}

	n, err := io.CopyBuffer(f, r, make([]byte, copyBufferSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(p)
		return 0, fmt.Errorf("failed to write part: %w", err)
	}
	return n, nil
}

type partFile struct {
	number int
	path   string
}

func (s *SessionStore) listParts(dir string) ([]partFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	parts := make([]partFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, partPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, partPrefix))
		if err != nil {
			continue
		}
		parts = append(parts, partFile{number: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].number < parts[j].number })
	return parts, nil
}

// CopyParts streams every part in ascending number into w. Arrival order is
// irrelevant.
func (s *SessionStore) CopyParts(ctx context.Context, id string, w io.Writer) (int64, error) {
	dir, err := s.existingDir(id)
	if err != nil {
		return 0, err
	}
	parts, err := s.listParts(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, sessionNotFound(id)
		}
		return 0, fmt.Errorf("failed to list parts: %w", err)
	}
	if len(parts) == 0 {
		return 0, entities.NewError(entities.KindSessionNotFound, "no parts found for upload session %s", id)
	}

	buf := make([]byte, copyBufferSize)
	var total int64
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := copyFile(w, part.path, buf)
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to copy part %d: %w", part.number, err)
		}
	}
	return total, nil
}

func copyFile(w io.Writer, p string, buf []byte) (int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.CopyBuffer(w, f, buf)
}

// DeleteSession removes the session directory and every part in it
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	dir, err := s.sessionDir(id)
	if err != nil {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SweepSessions removes sessions created more than olderThan ago. Sessions
// without readable metadata are aged by directory mtime.
func (s *SessionStore) SweepSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read parts directory: %w", err)
	}
	cutoff := s.now().Add(-olderThan)

	removed := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.IsDir() {
			continue
		}
		created := s.sessionCreated(ctx, e)
		if created.IsZero() || created.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (s *SessionStore) sessionCreated(ctx context.Context, e os.DirEntry) time.Time {
	if session, err := s.GetSession(ctx, e.Name()); err == nil && !session.CreatedAt.IsZero() {
		return session.CreatedAt
	}
	info, err := e.Info()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
