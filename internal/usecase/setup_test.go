package usecase_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/infrastructure/storage"
	"github.com/zots0127/filevault/internal/infrastructure/tokenstore"
	"github.com/zots0127/filevault/internal/usecase"
	"github.com/zots0127/filevault/pkg/metrics"
	"github.com/zots0127/filevault/pkg/signer"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	store    *storage.Store
	sessions *storage.SessionStore
	tokens   *tokenstore.MemoryStore
	signer   *signer.Signer
	clock    *clock
	metrics  *metrics.MetricsCollector

	upload *usecase.UploadUseCase
	files  *usecase.FileUseCase
	batch  *usecase.BatchUseCase
}

func newFixture(t *testing.T, quota int64) *fixture {
	t.Helper()
	root := t.TempDir()

	store, err := storage.NewStore(storage.Config{Root: root, QuotaBytes: quota})
	require.NoError(t, err)
	sessions, err := storage.NewSessionStore(root)
	require.NoError(t, err)

	c := &clock{t: time.Now()}
	s := signer.New(signer.Config{Secret: "test-secret", PublicBaseURL: "http://localhost:8080"}).WithClock(c.Now)
	mc := metrics.NewMetricsCollector()
	tokens := tokenstore.NewMemoryStore()

	return &fixture{
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		signer:   s,
		clock:    c,
		metrics:  mc,
		upload:   usecase.NewUploadUseCase(store, sessions, mc, nil, 4),
		files:    usecase.NewFileUseCase(store, s, mc, nil),
		batch:    usecase.NewBatchUseCase(store, tokens, mc, nil, usecase.BatchConfig{SpoolDir: t.TempDir()}),
	}
}

// uploadFile runs init, one part per chunk, then complete
func (f *fixture) uploadFile(t *testing.T, p entities.Principal, owner, folder, name string, chunks ...[]byte) *entities.StoredFile {
	t.Helper()
	ctx := context.Background()

	var size int64
	for _, c := range chunks {
		size += int64(len(c))
	}
	init, err := f.upload.Init(ctx, p, entities.InitRequest{
		Mode:    entities.UploadModeChunked,
		Files:   []entities.DeclaredFile{{Name: name, Size: size}},
		Folder:  folder,
		OwnerID: owner,
	})
	require.NoError(t, err)

	for i, c := range chunks {
		_, err := f.upload.Part(ctx, p, init.UploadID, i+1, bytes.NewReader(c))
		require.NoError(t, err)
	}

	file, err := f.upload.Complete(ctx, p, entities.CompleteRequest{
		UploadID: init.UploadID,
		Meta:     map[string]interface{}{"filename": name},
	})
	require.NoError(t, err)
	return file
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
