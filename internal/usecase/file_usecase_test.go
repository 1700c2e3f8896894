package usecase_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/pkg/signer"
)

func splitSigned(t *testing.T, raw string) (string, int64, string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	exp, err := strconv.ParseInt(u.Query().Get("exp"), 10, 64)
	require.NoError(t, err)
	return strings.TrimPrefix(u.Path, signer.GetPath), exp, u.Query().Get("sig")
}

func TestFileUseCase_SignedURL(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	user := entities.UserPrincipal("u1")
	file := f.uploadFile(t, user, "", "docs", "report.pdf", []byte("%PDF-1.4 body"))

	signed, err := f.files.SignURL(ctx, user, file.Key, time.Minute, signer.DispositionAttachment)
	require.NoError(t, err)
	assert.EqualValues(t, 60, signed.ExpiresIn)
	assert.Contains(t, signed.URL, "disposition=attachment")

	encoded, exp, sig := splitSigned(t, signed.URL)

	rc, stat, err := f.files.OpenSigned(ctx, encoded, exp, sig)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "%PDF-1.4 body", string(data))
	assert.Equal(t, file.Key, stat.Key)

	tampered := "0" + sig[1:]
	if tampered == sig {
		tampered = "1" + sig[1:]
	}
	_, _, err = f.files.OpenSigned(ctx, encoded, exp, tampered)
	assert.True(t, errors.Is(err, entities.ErrSignatureInvalid))

	_, _, err = f.files.OpenSigned(ctx, encoded, exp+60, sig)
	assert.True(t, errors.Is(err, entities.ErrSignatureInvalid), "extending exp invalidates the signature")

	_, _, err = f.files.OpenSigned(ctx, "!!", exp, sig)
	assert.True(t, errors.Is(err, entities.ErrValidation))

	f.clock.t = f.clock.t.Add(2 * time.Minute)
	_, _, err = f.files.OpenSigned(ctx, encoded, exp, sig)
	assert.True(t, errors.Is(err, entities.ErrSignatureInvalid), "expired")
}

func TestFileUseCase_SignURLRules(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	owner := entities.UserPrincipal("u1")
	file := f.uploadFile(t, owner, "", "", "a.txt", []byte("a"))

	_, err := f.files.SignURL(ctx, entities.UserPrincipal("u2"), file.Key, 0, signer.DispositionInline)
	assert.True(t, errors.Is(err, entities.ErrAccessDenied))

	_, err = f.files.SignURL(ctx, entities.Principal{}, file.Key, 0, signer.DispositionInline)
	assert.True(t, errors.Is(err, entities.ErrUnauthorized))

	_, err = f.files.SignURL(ctx, owner, file.Key, 30*24*time.Hour, signer.DispositionInline)
	var domainErr *entities.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "ttl", domainErr.Field)

	signed, err := f.files.SignURL(ctx, entities.ServicePrincipal(), file.Key, 0, signer.DispositionInline)
	require.NoError(t, err)
	assert.EqualValues(t, 3600, signed.ExpiresIn)
	assert.NotContains(t, signed.URL, "disposition=")

	_, err = f.files.SignURL(ctx, owner, "storage/u1/deadbeef_missing.txt", 0, signer.DispositionInline)
	assert.True(t, errors.Is(err, entities.ErrNotFound))
}

func TestFileUseCase_Delete(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	owner := entities.UserPrincipal("u1")
	file := f.uploadFile(t, owner, "", "", "a.txt", []byte("abc"))

	err := f.files.Delete(ctx, entities.UserPrincipal("u2"), file.Key)
	assert.True(t, errors.Is(err, entities.ErrAccessDenied))

	require.NoError(t, f.files.Delete(ctx, owner, file.Key))

	err = f.files.Delete(ctx, owner, file.Key)
	assert.True(t, errors.Is(err, entities.ErrNotFound), "second delete is not_found")

	err = f.files.Delete(ctx, owner, "storage/../../etc/passwd")
	assert.True(t, errors.Is(err, entities.ErrValidation))
}

func TestFileUseCase_ListAndMetadata(t *testing.T) {
	f := newFixture(t, 1<<20)
	ctx := context.Background()
	u1 := entities.UserPrincipal("u1")
	first := f.uploadFile(t, u1, "", "docs", "a.txt", []byte("aa"))
	f.uploadFile(t, u1, "", "", "b.txt", []byte("bbb"))
	f.uploadFile(t, entities.ServicePrincipal(), "u2", "", "c.txt", []byte("c"))

	listing, err := f.files.List(ctx, u1, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, 2, listing.TotalCount, "users only ever see their own files")
	assert.EqualValues(t, 5, listing.TotalSize)

	listing, err = f.files.List(ctx, u1, "", "docs")
	require.NoError(t, err)
	require.Equal(t, 1, listing.TotalCount)
	assert.Equal(t, first.Key, listing.Files[0].Key)

	listing, err = f.files.List(ctx, entities.ServicePrincipal(), "u2", "")
	require.NoError(t, err)
	assert.Equal(t, 1, listing.TotalCount)

	_, err = f.files.List(ctx, entities.ServicePrincipal(), "", "")
	assert.True(t, errors.Is(err, entities.ErrValidation))

	meta, err := f.files.Metadata(ctx, u1, first.Key)
	require.NoError(t, err)
	assert.Equal(t, digest([]byte("aa")), meta.SHA256)
	assert.Equal(t, "a.txt", meta.DisplayName())

	_, err = f.files.Metadata(ctx, entities.UserPrincipal("u2"), first.Key)
	assert.True(t, errors.Is(err, entities.ErrAccessDenied))

	rc, _, err := f.files.OpenOwned(ctx, u1, first.Key)
	require.NoError(t, err)
	rc.Close()

	_, _, err = f.files.OpenOwned(ctx, entities.Principal{}, first.Key)
	assert.True(t, errors.Is(err, entities.ErrUnauthorized))
}
