package signer

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestSigner(clock *fakeClock) *Signer {
	return New(Config{
		Secret:        "test-secret",
		PublicBaseURL: "https://files.example.com/",
		DefaultTTL:    time.Hour,
	}).WithClock(clock.Now)
}

func parseSigned(t *testing.T, raw string) (string, int64, string, url.Values) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u.Path, GetPath))

	key, err := DecodeKey(strings.TrimPrefix(u.Path, GetPath))
	require.NoError(t, err)
	exp, err := strconv.ParseInt(u.Query().Get("exp"), 10, 64)
	require.NoError(t, err)
	return key, exp, u.Query().Get("sig"), u.Query()
}

func TestSigner_SignAndVerify(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	s := newTestSigner(clock)

	key := "storage/u1/docs/1a2b3c4d_report.pdf"
	signed, err := s.Sign(key, time.Second, DispositionInline)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(signed.URL, "https://files.example.com/v1/files/get/"))
	assert.EqualValues(t, 1, signed.ExpiresIn)

	gotKey, exp, sig, q := parseSigned(t, signed.URL)
	assert.Equal(t, key, gotKey)
	assert.Equal(t, int64(1700000001), exp)
	assert.Empty(t, q.Get("disposition"))

	assert.True(t, s.Verify(gotKey, exp, sig))

	clock.t = clock.t.Add(2 * time.Second)
	assert.False(t, s.Verify(gotKey, exp, sig), "expired signature must fail")
}

func TestSigner_TamperedSignature(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	s := newTestSigner(clock)

	signed, err := s.Sign("storage/u1/abcd1234_a.txt", time.Minute, DispositionAttachment)
	require.NoError(t, err)
	key, exp, sig, q := parseSigned(t, signed.URL)
	assert.Equal(t, "attachment", q.Get("disposition"))

	for i := range sig {
		b := []byte(sig)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		assert.False(t, s.Verify(key, exp, string(b)), "tampered at %d", i)
	}

	assert.False(t, s.Verify(key+"x", exp, sig))
	assert.False(t, s.Verify(key, exp+1, sig))
}

func TestSigner_SecretRotation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	a := newTestSigner(clock)
	b := New(Config{Secret: "rotated"}).WithClock(clock.Now)

	signed, err := a.Sign("storage/u1/k_f", time.Minute, DispositionInline)
	require.NoError(t, err)
	assert.False(t, b.Verify("storage/u1/k_f", signed.ExpiresAt, signed.Signature))
}

func TestSigner_TTLBounds(t *testing.T) {
	s := New(Config{Secret: "x", MaxTTL: time.Hour})

	signed, err := s.Sign("k", 0, DispositionInline)
	require.NoError(t, err)
	assert.EqualValues(t, 3600, signed.ExpiresIn)

	_, err = s.Sign("k", 2*time.Hour, DispositionInline)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	_, err = s.Sign("k", -time.Second, DispositionInline)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestEncodeDecodeKey(t *testing.T) {
	key := "storage/user-1/a b/ü_name?.txt"
	enc := EncodeKey(key)
	assert.NotContains(t, enc, "=")
	assert.NotContains(t, enc, "/")

	dec, err := DecodeKey(enc)
	require.NoError(t, err)
	assert.Equal(t, key, dec)

	dec, err = DecodeKey("c3RvcmFnZS91MS9h")
	require.NoError(t, err)
	assert.Equal(t, "storage/u1/a", dec)

	dec, err = DecodeKey("c3RvcmFnZS91MQ==")
	require.NoError(t, err)
	assert.Equal(t, "storage/u1", dec)

	_, err = DecodeKey("!!!")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDefaultKey(t *testing.T) {
	assert.True(t, New(Config{}).UsesDefaultKey())
	assert.False(t, New(Config{Secret: "s"}).UsesDefaultKey())

	d, ok := ParseDisposition("ATTACHMENT")
	assert.True(t, ok)
	assert.Equal(t, DispositionAttachment, d)
	_, ok = ParseDisposition("download")
	assert.False(t, ok)
}
