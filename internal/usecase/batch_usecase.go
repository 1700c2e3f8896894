package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
	"github.com/zots0127/filevault/pkg/archive"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/metrics"
)

const (
	// DefaultBatchTokenTTL is how long a minted batch token resolves
	DefaultBatchTokenTTL = time.Hour
	// MaxBatchKeys bounds the number of keys in one batch
	MaxBatchKeys = 1000
)

// BatchConfig configures the batch download use case
type BatchConfig struct {
	TokenTTL time.Duration
	SpoolDir string
}

// BatchUseCase mints batch tokens and streams their keys as one ZIP archive
type BatchUseCase struct {
	files    repository.FileRepository
	tokens   repository.TokenStore
	metrics  *metrics.MetricsCollector
	log      logger.Logger
	ttl      time.Duration
	spoolDir string
	now      func() time.Time
}

// NewBatchUseCase creates a new batch use case
func NewBatchUseCase(files repository.FileRepository, tokens repository.TokenStore, mc *metrics.MetricsCollector, log logger.Logger, cfg BatchConfig) *BatchUseCase {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultBatchTokenTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BatchUseCase{
		files:    files,
		tokens:   tokens,
		metrics:  mc,
		log:      log,
		ttl:      cfg.TokenTTL,
		spoolDir: cfg.SpoolDir,
		now:      time.Now,
	}
}

// BatchDownload is a resolved token ready to stream
type BatchDownload struct {
	Token         string
	Filename      string
	EstimatedSize int64
	Entries       []archive.Entry
}

// Mint validates that every key exists and is readable by the principal,
// then stores a token for them. One bad key fails the whole batch.
func (b *BatchUseCase) Mint(ctx context.Context, p entities.Principal, keys []string) (*entities.BatchToken, error) {
	if !p.Authenticated() {
		return nil, entities.NewError(entities.KindUnauthorized, "authentication required")
	}
	keys = dedupe(keys)
	if len(keys) == 0 {
		return nil, entities.NewValidationError("keys", "at least one key is required")
	}
	if len(keys) > MaxBatchKeys {
		return nil, entities.NewValidationError("keys", "at most %d keys per batch", MaxBatchKeys)
	}

	for _, key := range keys {
		file, err := b.files.Stat(ctx, key)
		if err != nil {
			if errors.Is(err, entities.ErrNotFound) {
				return nil, entities.NewError(entities.KindNotFound, "file not found: %s", key)
			}
			return nil, err
		}
		if err := p.Authorize(file.OwnerID); err != nil {
			return nil, entities.NewError(entities.KindOf(err), "access denied: %s", key)
		}
	}

	now := b.now()
	b.purge(ctx, now)

	token := &entities.BatchToken{
		Token:     uuid.NewString(),
		Keys:      keys,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(b.ttl).UTC(),
	}
	if err := b.tokens.Put(ctx, token); err != nil {
		return nil, err
	}

	b.metrics.RecordBatchToken()
	b.log.Info("batch token minted", "principal", p.LogID(), "keys", len(keys), "expires_at", token.ExpiresAt)
	return token, nil
}

// Resolve returns the keys behind token, or not_found once it has expired
func (b *BatchUseCase) Resolve(ctx context.Context, token string) (*entities.BatchToken, error) {
	b.purge(ctx, b.now())
	return b.tokens.Get(ctx, token)
}

func (b *BatchUseCase) purge(ctx context.Context, now time.Time) {
	n, err := b.tokens.PurgeExpired(ctx, now)
	if err != nil {
		b.log.Warn("failed to purge expired batch tokens", "error", err)
		return
	}
	if n > 0 {
		b.log.Debug("purged expired batch tokens", "count", n)
	}
}

// Prepare resolves token and describes the archive it will produce. Keys
// deleted since minting are skipped.
func (b *BatchUseCase) Prepare(ctx context.Context, token string) (*BatchDownload, error) {
	t, err := b.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	entries := make([]archive.Entry, 0, len(t.Keys))
	for _, key := range t.Keys {
		file, err := b.files.Stat(ctx, key)
		if err != nil {
			if errors.Is(err, entities.ErrNotFound) {
				b.log.Warn("batch key no longer exists", "token", token, "key", key)
				continue
			}
			return nil, err
		}
		entries = append(entries, b.entry(ctx, file))
	}
	if len(entries) == 0 {
		return nil, entities.NewError(entities.KindNotFound, "no files remain for this token")
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return &BatchDownload{
		Token:         token,
		Filename:      archive.Filename(names, b.now()),
		EstimatedSize: archive.EstimateSize(entries),
		Entries:       entries,
	}, nil
}

func (b *BatchUseCase) entry(ctx context.Context, file *entities.StoredFile) archive.Entry {
	key := file.Key
	return archive.Entry{
		Name:     file.DisplayName(),
		Size:     file.Size,
		Modified: file.CreatedAt,
		Open: func() (io.ReadCloser, error) {
			rc, _, err := b.files.Open(ctx, key)
			return rc, err
		},
	}
}

// Stream writes the archive for dl to w
func (b *BatchUseCase) Stream(ctx context.Context, dl *BatchDownload, w io.Writer) (int64, error) {
	spool := b.spoolDir
	if spool == "" {
		spool = os.TempDir()
	}
	n, err := archive.Stream(ctx, w, spool, dl.Entries)
	if err != nil {
		b.metrics.RecordBatchArchive("error")
		b.log.Error("batch archive failed", "token", dl.Token, "error", err)
		return n, err
	}
	b.metrics.RecordBatchArchive("ok")
	b.log.Info("batch archive streamed", "token", dl.Token, "entries", len(dl.Entries), "bytes", n)
	return n, nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
