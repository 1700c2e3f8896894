package usecase

import (
	"context"
	"io"
	"time"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/metrics"
	"github.com/zots0127/filevault/pkg/signer"
)

// FileUseCase handles reads, listings, deletes and signed access to stored files
type FileUseCase struct {
	files   repository.FileRepository
	signer  *signer.Signer
	metrics *metrics.MetricsCollector
	log     logger.Logger
}

// NewFileUseCase creates a new file use case
func NewFileUseCase(files repository.FileRepository, s *signer.Signer, mc *metrics.MetricsCollector, log logger.Logger) *FileUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &FileUseCase{
		files:   files,
		signer:  s,
		metrics: mc,
		log:     log,
	}
}

// List returns the effective owner's files, newest first
func (f *FileUseCase) List(ctx context.Context, p entities.Principal, requestedOwner, folder string) (*entities.FileListing, error) {
	owner, err := p.EffectiveOwner(requestedOwner)
	if err != nil {
		return nil, err
	}

	files, err := f.files.ListFiles(ctx, owner, folder)
	if err != nil {
		return nil, err
	}

	listing := &entities.FileListing{Files: files, TotalCount: len(files)}
	for _, file := range files {
		listing.TotalSize += file.Size
	}
	return listing, nil
}

// owned stats key and checks the principal may touch it
func (f *FileUseCase) owned(ctx context.Context, p entities.Principal, key string) (*entities.StoredFile, error) {
	if !p.Authenticated() {
		return nil, entities.NewError(entities.KindUnauthorized, "authentication required")
	}
	file, err := f.files.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := p.Authorize(file.OwnerID); err != nil {
		return nil, err
	}
	return file, nil
}

// Metadata returns the stored record for key
func (f *FileUseCase) Metadata(ctx context.Context, p entities.Principal, key string) (*entities.StoredFile, error) {
	return f.owned(ctx, p, key)
}

// Delete removes key. A key that no longer exists is a not_found.
func (f *FileUseCase) Delete(ctx context.Context, p entities.Principal, key string) error {
	file, err := f.owned(ctx, p, key)
	if err != nil {
		return err
	}

	deleted, err := f.files.DeleteFile(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		return entities.NewError(entities.KindNotFound, "file not found")
	}

	f.metrics.RecordFileDelete()
	f.log.Info("file deleted", "key", key, "user_id", file.OwnerID, "principal", p.LogID())
	return nil
}

// SignURL issues a time-limited link for a file the principal may read
func (f *FileUseCase) SignURL(ctx context.Context, p entities.Principal, key string, ttl time.Duration, disposition signer.Disposition) (*signer.Signed, error) {
	if _, err := f.owned(ctx, p, key); err != nil {
		return nil, err
	}

	signed, err := f.signer.Sign(key, ttl, disposition)
	if err != nil {
		return nil, entities.NewValidationError("ttl", "%v", err)
	}
	f.metrics.RecordSignedURL()
	f.log.Debug("signed url issued", "key", key, "principal", p.LogID(), "expires_at", signed.ExpiresAt)
	return signed, nil
}

// OpenOwned opens key for the direct, owner-scoped download route
func (f *FileUseCase) OpenOwned(ctx context.Context, p entities.Principal, key string) (io.ReadSeekCloser, *entities.StoredFile, error) {
	if _, err := f.owned(ctx, p, key); err != nil {
		return nil, nil, err
	}
	return f.files.Open(ctx, key)
}

// OpenSigned verifies a signed URL and opens the key it names. No principal
// is involved: the signature is the authorization.
func (f *FileUseCase) OpenSigned(ctx context.Context, encodedKey string, exp int64, sig string) (io.ReadSeekCloser, *entities.StoredFile, error) {
	key, err := signer.DecodeKey(encodedKey)
	if err != nil {
		return nil, nil, entities.NewValidationError("encodedKey", "invalid encoded key")
	}
	if !f.signer.Verify(key, exp, sig) {
		f.metrics.RecordSignatureRejected()
		return nil, nil, entities.NewError(entities.KindSignatureInvalid, "invalid or expired signature")
	}
	return f.files.Open(ctx, key)
}
