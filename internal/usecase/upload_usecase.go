package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/metrics"
)

const (
	// DefaultChunkSizeHint is the part size assumed for the chunked-mode hint
	DefaultChunkSizeHint = 1024 * 1024
	// DefaultUploadFilename is used when completion metadata names no file
	DefaultUploadFilename = "uploaded_file"
)

// UploadUseCase drives the init -> part -> complete protocol
type UploadUseCase struct {
	files     repository.FileRepository
	sessions  repository.SessionRepository
	metrics   *metrics.MetricsCollector
	log       logger.Logger
	chunkSize int64
	now       func() time.Time
}

// NewUploadUseCase creates a new upload use case. A chunkSize of zero uses
// DefaultChunkSizeHint.
func NewUploadUseCase(files repository.FileRepository, sessions repository.SessionRepository, mc *metrics.MetricsCollector, log logger.Logger, chunkSize int64) *UploadUseCase {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSizeHint
	}
	if log == nil {
		log = logger.Nop()
	}
	return &UploadUseCase{
		files:     files,
		sessions:  sessions,
		metrics:   mc,
		log:       log,
		chunkSize: chunkSize,
		now:       time.Now,
	}
}

// Init validates the declared files, runs the advisory quota pre-flight and
// allocates a session.
func (u *UploadUseCase) Init(ctx context.Context, p entities.Principal, req entities.InitRequest) (*entities.InitResult, error) {
	owner, err := p.EffectiveOwner(req.OwnerID)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = entities.UploadModeSingle
	}
	if !mode.Valid() {
		return nil, entities.NewValidationError("mode", "mode must be one of single, chunked, batch")
	}
	if len(req.Files) == 0 {
		return nil, entities.NewValidationError("files", "at least one file must be declared")
	}
	for _, f := range req.Files {
		if err := entities.ValidateFilename("name", f.Name); err != nil {
			return nil, err
		}
		if f.Size < 0 {
			return nil, entities.NewValidationError("size", "declared size of %s is negative", f.Name)
		}
	}

	session := &entities.UploadSession{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Mode:      mode,
		Files:     req.Files,
		Folder:    req.Folder,
		Meta:      req.Meta,
		State:     entities.SessionStateInit,
		CreatedAt: u.now().UTC(),
	}

	release := u.files.LockOwner(owner)
	_, err = u.files.CheckQuota(ctx, owner, session.DeclaredSize())
	release()
	if err != nil {
		return nil, err
	}

	if err := u.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	u.metrics.RecordSessionInit(string(mode))
	u.log.Info("upload session initialized",
		"upload_id", session.ID,
		"user_id", owner,
		"mode", mode,
		"files", len(req.Files),
		"declared_bytes", session.DeclaredSize(),
	)

	result := &entities.InitResult{UploadID: session.ID}
	if mode == entities.UploadModeChunked {
		largest := session.MaxDeclaredSize()
		result.Parts = (largest + u.chunkSize - 1) / u.chunkSize
	}
	return result, nil
}

// Part stores one numbered fragment for a session the caller owns
func (u *UploadUseCase) Part(ctx context.Context, p entities.Principal, uploadID string, partNumber int, r io.Reader) (int64, error) {
	session, err := u.sessions.GetSession(ctx, uploadID)
	if err != nil {
		return 0, err
	}
	if err := p.Authorize(session.OwnerID); err != nil {
		return 0, err
	}
	if session.State.Terminal() || session.State == entities.SessionStateCompleting {
		return 0, entities.NewError(entities.KindSessionNotFound, "upload session %s is no longer accepting parts", uploadID)
	}

	n, err := u.sessions.WritePart(ctx, uploadID, partNumber, r)
	if err != nil {
		return 0, err
	}
	if session.State == entities.SessionStateInit {
		if err := u.sessions.SetState(ctx, uploadID, entities.SessionStateReceiving); err != nil {
			u.log.Warn("failed to record session state", "upload_id", uploadID, "error", err)
		}
	}
	u.metrics.RecordPart()
	u.log.Debug("upload part stored", "upload_id", uploadID, "part_number", partNumber, "bytes", n)
	return n, nil
}

// Complete assembles the parts under a fresh key, verifies the digest,
// re-validates quota against the real size and writes the sidecar. The
// session is removed whatever the outcome.
func (u *UploadUseCase) Complete(ctx context.Context, p entities.Principal, req entities.CompleteRequest) (*entities.StoredFile, error) {
	session, err := u.claim(ctx, p, req.UploadID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := u.sessions.DeleteSession(context.WithoutCancel(ctx), req.UploadID); err != nil {
			u.log.Warn("failed to remove upload session", "upload_id", req.UploadID, "error", err)
		}
	}()

	file, err := u.assemble(ctx, session, req)
	if err != nil {
		u.metrics.RecordUploadFailure(string(entities.KindOf(err)))
		u.log.Warn("upload completion failed",
			"upload_id", req.UploadID,
			"user_id", session.OwnerID,
			"kind", entities.KindOf(err),
			"error", err,
		)
		return nil, err
	}

	u.metrics.RecordFileUpload(file.Size)
	u.log.Info("upload completed",
		"upload_id", req.UploadID,
		"user_id", file.OwnerID,
		"key", file.Key,
		"size", file.Size,
		"mime", file.MimeType,
	)
	return file, nil
}

// claim moves a session to COMPLETING. The check and the transition run
// under the owner lock so only one Complete can win a session.
func (u *UploadUseCase) claim(ctx context.Context, p entities.Principal, uploadID string) (*entities.UploadSession, error) {
	session, err := u.sessions.GetSession(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if err := p.Authorize(session.OwnerID); err != nil {
		return nil, err
	}

	release := u.files.LockOwner(session.OwnerID)
	defer release()

	session, err = u.sessions.GetSession(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if session.State == entities.SessionStateCompleting || session.State.Terminal() {
		return nil, entities.NewError(entities.KindSessionNotFound, "upload session %s is already completing", uploadID)
	}
	if err := u.sessions.SetState(ctx, uploadID, entities.SessionStateCompleting); err != nil {
		return nil, err
	}
	session.State = entities.SessionStateCompleting
	return session, nil
}

func (u *UploadUseCase) assemble(ctx context.Context, session *entities.UploadSession, req entities.CompleteRequest) (*entities.StoredFile, error) {
	meta := mergeMeta(session.Meta, req.Meta)
	filename := metaString(meta, "filename")
	if filename == "" {
		filename = DefaultUploadFilename
	}
	if err := entities.ValidateFilename("filename", filename); err != nil {
		return nil, err
	}
	folder, ok := meta["folder"].(string)
	if !ok {
		folder = session.Folder
	}

	owner := session.OwnerID
	key := u.files.DeriveKey(owner, folder, filename)

	staged, err := u.files.Create(ctx, key)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			staged.Discard()
		}
	}()

	hasher := sha256.New()
	size, err := u.sessions.CopyParts(ctx, session.ID, io.MultiWriter(staged, hasher))
	if err != nil {
		return nil, err
	}
	digest := hex.EncodeToString(hasher.Sum(nil))

	if req.SHA256 != "" && !strings.EqualFold(strings.TrimSpace(req.SHA256), digest) {
		return nil, entities.NewError(entities.KindIntegrityMismatch, "SHA256 mismatch: expected %s, got %s", req.SHA256, digest)
	}

	release := u.files.LockOwner(owner)
	defer release()

	if _, err := u.files.CheckQuota(ctx, owner, size); err != nil {
		return nil, err
	}
	if err := staged.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upload: %w", err)
	}
	committed = true

	file := &entities.StoredFile{
		Key:              key,
		OwnerID:          owner,
		Folder:           entities.FolderFromKey(key),
		Size:             size,
		MimeType:         resolveMime(meta, session, filename),
		SHA256:           digest,
		OriginalFilename: filename,
		CreatedAt:        u.now().UTC(),
		Meta:             meta,
	}
	if err := u.files.WriteRecord(ctx, file); err != nil {
		if _, derr := u.files.DeleteFile(context.WithoutCancel(ctx), key); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, fmt.Errorf("failed to write file record: %w", err)
	}
	return file, nil
}

// Sweep removes sessions abandoned for longer than olderThan
func (u *UploadUseCase) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := u.sessions.SweepSessions(ctx, olderThan)
	if n > 0 {
		u.metrics.RecordSessionsSwept(n)
		u.log.Info("swept abandoned upload sessions", "count", n, "older_than", olderThan.String())
	}
	return n, err
}

// resolveMime prefers an explicit mime in metadata, then the mime declared
// at init for the same filename, then the extension.
func resolveMime(meta map[string]interface{}, session *entities.UploadSession, filename string) string {
	if m := metaString(meta, "mime"); m != "" {
		return m
	}
	if declared, ok := session.DeclaredFor(filename); ok && declared.Mime != "" {
		return declared.Mime
	}
	return GuessMime(filename)
}

// GuessMime maps a filename extension to a media type without parameters
func GuessMime(filename string) string {
	t := mime.TypeByExtension(strings.ToLower(path.Ext(filename)))
	if t == "" {
		return entities.DefaultMimeType
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

func mergeMeta(base, override map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func metaString(meta map[string]interface{}, key string) string {
	s, _ := meta[key].(string)
	return strings.TrimSpace(s)
}
