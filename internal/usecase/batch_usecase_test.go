package usecase_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/usecase"
	"github.com/zots0127/filevault/internal/usecase/mocks"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string]string, len(zr.File))
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[zf.Name] = string(body)
	}
	return out
}

func TestBatchUseCase_MintAndStream(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	user := entities.UserPrincipal("u1")

	a1 := f.uploadFile(t, user, "", "x", "a.txt", []byte("first"))
	a2 := f.uploadFile(t, user, "", "y", "a.txt", []byte("second"))
	b := f.uploadFile(t, user, "", "", "b.txt", []byte("bee"))

	token, err := f.batch.Mint(ctx, user, []string{a1.Key, a2.Key, b.Key, a1.Key})
	require.NoError(t, err)
	assert.Len(t, token.Keys, 3, "duplicate keys collapse")
	assert.WithinDuration(t, token.CreatedAt.Add(usecase.DefaultBatchTokenTTL), token.ExpiresAt, time.Second)

	dl, err := f.batch.Prepare(ctx, token.Token)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dl.Filename, "batch_download_"))
	assert.True(t, strings.HasSuffix(dl.Filename, ".zip"))
	assert.EqualValues(t, 5+6+3+3*1024, dl.EstimatedSize)

	var buf bytes.Buffer
	n, err := f.batch.Stream(ctx, dl, &buf)
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)

	entries := readZip(t, buf.Bytes())
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.txt", "a_1.txt", "b.txt"}, names)
	assert.Equal(t, "first", entries["a.txt"])
	assert.Equal(t, "second", entries["a_1.txt"])
	assert.Equal(t, "bee", entries["b.txt"])

	// tokens are reusable until they expire
	_, err = f.batch.Prepare(ctx, token.Token)
	assert.NoError(t, err)
}

func TestBatchUseCase_SingleFileName(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	user := entities.UserPrincipal("u1")
	file := f.uploadFile(t, user, "", "", "report.pdf", []byte("pdf"))

	token, err := f.batch.Mint(ctx, user, []string{file.Key})
	require.NoError(t, err)
	dl, err := f.batch.Prepare(ctx, token.Token)
	require.NoError(t, err)
	assert.Regexp(t, `^report_\d{8}_\d{6}\.zip$`, dl.Filename)
}

func TestBatchUseCase_MintRejects(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	owner := entities.UserPrincipal("u1")
	file := f.uploadFile(t, owner, "", "", "a.txt", []byte("a"))

	tests := []struct {
		name      string
		principal entities.Principal
		keys      []string
		wantErr   *entities.Error
		contains  string
	}{
		{"anonymous", entities.Principal{}, []string{file.Key}, entities.ErrUnauthorized, ""},
		{"no keys", owner, nil, entities.ErrValidation, ""},
		{"blank keys", owner, []string{"", ""}, entities.ErrValidation, ""},
		{"missing key", owner, []string{file.Key, "storage/u1/deadbeef_gone.txt"}, entities.ErrNotFound, "storage/u1/deadbeef_gone.txt"},
		{"foreign key", entities.UserPrincipal("u2"), []string{file.Key}, entities.ErrAccessDenied, file.Key},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.batch.Mint(ctx, tt.principal, tt.keys)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}

	tooMany := make([]string, usecase.MaxBatchKeys+1)
	for i := range tooMany {
		tooMany[i] = file.Key + strings.Repeat("x", i)
	}
	_, err := f.batch.Mint(ctx, owner, tooMany)
	assert.True(t, errors.Is(err, entities.ErrValidation))

	assert.Zero(t, f.tokens.Len(), "rejected batches store nothing")
}

func TestBatchUseCase_ExpiredAndDeleted(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	user := entities.UserPrincipal("u1")
	keep := f.uploadFile(t, user, "", "", "keep.txt", []byte("k"))
	drop := f.uploadFile(t, user, "", "", "drop.txt", []byte("d"))

	require.NoError(t, f.tokens.Put(ctx, &entities.BatchToken{
		Token:     "stale",
		Keys:      []string{keep.Key},
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	_, err := f.batch.Prepare(ctx, "stale")
	assert.True(t, errors.Is(err, entities.ErrNotFound))
	assert.Zero(t, f.tokens.Len(), "expired tokens are purged on access")

	_, err = f.batch.Prepare(ctx, "never-minted")
	assert.True(t, errors.Is(err, entities.ErrNotFound))

	token, err := f.batch.Mint(ctx, user, []string{keep.Key, drop.Key})
	require.NoError(t, err)
	require.NoError(t, f.files.Delete(ctx, user, drop.Key))

	dl, err := f.batch.Prepare(ctx, token.Token)
	require.NoError(t, err)
	require.Len(t, dl.Entries, 1)
	assert.Equal(t, "keep.txt", dl.Entries[0].Name)

	require.NoError(t, f.files.Delete(ctx, user, keep.Key))
	_, err = f.batch.Prepare(ctx, token.Token)
	assert.True(t, errors.Is(err, entities.ErrNotFound))
}

func TestBatchUseCase_PurgeFailureIsNotFatal(t *testing.T) {
	files := new(mocks.MockFileRepository)
	tokens := new(mocks.MockTokenStore)
	ctx := context.Background()
	key := "storage/u1/abcd1234_a.txt"

	files.On("Stat", ctx, key).Return(&entities.StoredFile{Key: key, OwnerID: "u1"}, nil)
	tokens.On("PurgeExpired", ctx, mock.AnythingOfType("time.Time")).Return(0, errors.New("backend down"))
	tokens.On("Put", ctx, mock.MatchedBy(func(tok *entities.BatchToken) bool {
		return len(tok.Keys) == 1 && tok.Keys[0] == key && tok.ExpiresAt.Sub(tok.CreatedAt) == 10*time.Minute
	})).Return(nil)

	uc := usecase.NewBatchUseCase(files, tokens, nil, nil, usecase.BatchConfig{TokenTTL: 10 * time.Minute})
	token, err := uc.Mint(ctx, entities.UserPrincipal("u1"), []string{key})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)

	files.AssertExpectations(t)
	tokens.AssertExpectations(t)
}
