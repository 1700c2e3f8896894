// Package storage is the local-disk layout engine. Content lives under
// {root}/storage/{owner}/{folder...}/{discriminator}_{filename} with a hidden
// JSON sidecar next to each content file, and in-flight chunks live under
// {root}/.parts/{sessionId}.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
)

const (
	// StoragePrefix is the first segment of every key
	StoragePrefix = entities.KeyPrefix
	// PartsDir holds upload sessions under the root
	PartsDir = ".parts"

	sidecarSuffix = ".meta"
	stagingInfix  = ".tmp-"
)

// Config configures a Store
type Config struct {
	Root       string
	QuotaBytes int64
}

// Store implements repository.FileRepository on the local filesystem
type Store struct {
	root       string
	quotaBytes int64
	locks      *ownerLocks
}

var _ repository.FileRepository = (*Store)(nil)

// NewStore creates the storage and parts directories and returns a Store
func NewStore(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("storage root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	for _, dir := range []string{filepath.Join(root, StoragePrefix), filepath.Join(root, PartsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Store{root: root, quotaBytes: cfg.QuotaBytes, locks: newOwnerLocks()}, nil
}

// Root returns the absolute upload root
func (s *Store) Root() string {
	return s.root
}

// DeriveKey builds storage/{owner}[/{folder...}]/{8 hex}_{filename}. Callers
// check the owner with ValidateOwner first, CheckQuota does so.
func (s *Store) DeriveKey(ownerID, folder, filename string) string {
	segments := []string{StoragePrefix, SanitizeFolderPart(ownerID)}
	segments = append(segments, SanitizeFolder(folder)...)
	segments = append(segments, discriminator()+"_"+SanitizeFilename(filename))
	return strings.Join(segments, "/")
}

func discriminator() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ValidateKey checks that key names a content file inside the storage tree
func ValidateKey(key string) error {
	if key == "" {
		return entities.NewValidationError("key", "key is required")
	}
	if strings.ContainsAny(key, "\\\x00") || strings.HasPrefix(key, "/") {
		return entities.NewValidationError("key", "invalid key")
	}
	segments := strings.Split(key, "/")
	if len(segments) < 3 || segments[0] != StoragePrefix {
		return entities.NewValidationError("key", "key must be of the form storage/{owner}/.../{name}")
	}
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return entities.NewValidationError("key", "invalid key")
		}
	}
	if strings.HasPrefix(segments[len(segments)-1], ".") {
		return entities.NewValidationError("key", "invalid key")
	}
	return nil
}

func (s *Store) pathFor(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Join(s.root, StoragePrefix)+string(filepath.Separator)) {
		return "", entities.NewValidationError("key", "invalid key")
	}
	return p, nil
}

func sidecarPath(contentPath string) string {
	dir, name := filepath.Split(contentPath)
	return filepath.Join(dir, "."+name+sidecarSuffix)
}

// Create stages content for key in the destination directory
func (s *Store) Create(ctx context.Context, key string) (repository.StagedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	final, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	dir, name := filepath.Split(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+stagingInfix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	return &stagedFile{file: tmp, final: final}, nil
}

type stagedFile struct {
	file      *os.File
	final     string
	committed bool
	closed    bool
}

func (f *stagedFile) Write(p []byte) (int, error) {
	return f.file.Write(p)
}

func (f *stagedFile) close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}

func (f *stagedFile) Commit() error {
	if f.committed {
		return nil
	}
	if err := f.file.Sync(); err != nil {
		f.Discard()
		return fmt.Errorf("failed to sync staged file: %w", err)
	}
	if err := f.close(); err != nil {
		f.Discard()
		return fmt.Errorf("failed to close staged file: %w", err)
	}
	if _, err := os.Lstat(f.final); err == nil {
		f.Discard()
		return fmt.Errorf("key already exists")
	}
	if err := os.Rename(f.file.Name(), f.final); err != nil {
		f.Discard()
		return fmt.Errorf("failed to commit staged file: %w", err)
	}
	f.committed = true
	return nil
}

func (f *stagedFile) Discard() error {
	if f.committed {
		return nil
	}
	f.close()
	if err := os.Remove(f.file.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteRecord writes the sidecar for a committed file
func (s *Store) WriteRecord(ctx context.Context, file *entities.StoredFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := s.pathFor(file.Key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	return writeFileAtomic(sidecarPath(content), data)
}

func writeFileAtomic(target string, data []byte) error {
	dir, name := filepath.Split(target)
	tmp, err := os.CreateTemp(dir, name+stagingInfix+"*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func readSidecar(contentPath string) (*entities.StoredFile, bool) {
	data, err := os.ReadFile(sidecarPath(contentPath))
	if err != nil {
		return nil, false
	}
	var record entities.StoredFile
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false
	}
	return &record, true
}

// describe merges disk state with the sidecar. Size and key always come from
// disk; the rest from the sidecar when present.
func describe(key, contentPath string, info fs.FileInfo) *entities.StoredFile {
	file := &entities.StoredFile{
		Key:       key,
		OwnerID:   entities.OwnerFromKey(key),
		Folder:    entities.FolderFromKey(key),
		Size:      info.Size(),
		MimeType:  entities.DefaultMimeType,
		CreatedAt: info.ModTime().UTC(),
	}
	record, ok := readSidecar(contentPath)
	if !ok {
		return file
	}
	if record.OwnerID != "" {
		file.OwnerID = record.OwnerID
	}
	if record.MimeType != "" {
		file.MimeType = record.MimeType
	}
	if !record.CreatedAt.IsZero() {
		file.CreatedAt = record.CreatedAt
	}
	file.SHA256 = record.SHA256
	file.OriginalFilename = record.OriginalFilename
	file.Meta = record.Meta
	return file
}

// Stat returns the file at key or ErrNotFound
func (s *Store) Stat(ctx context.Context, key string) (*entities.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, entities.NewError(entities.KindNotFound, "file not found")
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, entities.NewError(entities.KindNotFound, "file not found")
	}
	return describe(key, p, info), nil
}

// Open returns a reader over the content at key
func (s *Store) Open(ctx context.Context, key string) (io.ReadSeekCloser, *entities.StoredFile, error) {
	file, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	p, _ := s.pathFor(key)
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, entities.NewError(entities.KindNotFound, "file not found")
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, file, nil
}

// ListFiles walks the owner tree, optionally scoped to a folder, newest first
func (s *Store) ListFiles(ctx context.Context, ownerID, folder string) ([]*entities.StoredFile, error) {
	if err := ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	segments := append([]string{StoragePrefix, SanitizeFolderPart(ownerID)}, SanitizeFolder(folder)...)
	base := filepath.Join(s.root, filepath.Join(segments...))

	files := make([]*entities.StoredFile, 0)
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == base {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() && p != base {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		files = append(files, describe(filepath.ToSlash(rel), p, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].Key < files[j].Key
		}
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

// DeleteFile removes content and sidecar. It reports false when no content
// existed, which makes a second delete of the same key a not-found.
func (s *Store) DeleteFile(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	deleted := true
	if err := os.Remove(p); err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to delete file: %w", err)
		}
		deleted = false
	}
	if err := os.Remove(sidecarPath(p)); err != nil && !os.IsNotExist(err) {
		return deleted, fmt.Errorf("failed to delete sidecar: %w", err)
	}
	return deleted, nil
}
