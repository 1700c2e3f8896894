// Package signer issues and verifies time-limited HMAC-signed download URLs.
//
// A signed URL carries the base64url encoded key, an expiry as a unix
// timestamp and hex(HMAC-SHA256(secret, "{key}|{exp}")). No state is kept
// per URL, so URLs cannot be revoked before expiry; rotating the secret
// invalidates all of them at once.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultSigningKey is the placeholder secret. Using it is allowed but logged.
const DefaultSigningKey = "default-signing-key-change-in-production"

// GetPath is the route prefix that serves signed downloads
const GetPath = "/v1/files/get/"

var (
	ErrInvalidTTL = errors.New("ttl out of range")
	ErrInvalidKey = errors.New("invalid encoded key")
)

// Disposition selects how the browser should treat the download
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// ParseDisposition maps a query value onto a Disposition; empty means inline
func ParseDisposition(s string) (Disposition, bool) {
	switch strings.ToLower(s) {
	case "", string(DispositionInline):
		return DispositionInline, true
	case string(DispositionAttachment):
		return DispositionAttachment, true
	}
	return "", false
}

// Config holds the signer settings
type Config struct {
	Secret        string
	PublicBaseURL string
	DefaultTTL    time.Duration
	MaxTTL        time.Duration
}

// Signer signs and verifies URLs with one shared secret
type Signer struct {
	secret     []byte
	baseURL    string
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
}

// New creates a signer. Empty secrets fall back to DefaultSigningKey.
func New(cfg Config) *Signer {
	secret := cfg.Secret
	if secret == "" {
		secret = DefaultSigningKey
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 7 * 24 * time.Hour
	}
	return &Signer{
		secret:     []byte(secret),
		baseURL:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		defaultTTL: cfg.DefaultTTL,
		maxTTL:     cfg.MaxTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source; used by tests
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// UsesDefaultKey reports whether the placeholder secret is in effect
func (s *Signer) UsesDefaultKey() bool {
	return string(s.secret) == DefaultSigningKey
}

// DefaultTTL is the TTL applied when the caller does not choose one
func (s *Signer) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Signed is the result of signing a key
type Signed struct {
	URL       string
	ExpiresAt int64
	ExpiresIn int64
	Signature string
}

// Sign produces a URL granting read access to key for ttl. A zero ttl uses
// the default.
func (s *Signer) Sign(key string, ttl time.Duration, disposition Disposition) (*Signed, error) {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if ttl < time.Second || ttl > s.maxTTL {
		return nil, fmt.Errorf("%w: must be between 1s and %s", ErrInvalidTTL, s.maxTTL)
	}

	exp := s.now().Add(ttl).Unix()
	sig := s.signature(key, exp)

	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	if disposition == DispositionAttachment {
		q.Set("disposition", string(disposition))
	}

	return &Signed{
		URL:       s.baseURL + GetPath + EncodeKey(key) + "?" + q.Encode(),
		ExpiresAt: exp,
		ExpiresIn: int64(ttl / time.Second),
		Signature: sig,
	}, nil
}

// Verify checks expiry and signature. The comparison is constant time.
func (s *Signer) Verify(key string, exp int64, signature string) bool {
	if s.now().Unix() > exp {
		return false
	}
	expected := s.signature(key, exp)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (s *Signer) signature(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key + "|" + strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeKey renders key as unpadded base64url for use in a path segment
func EncodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeKey reverses EncodeKey. Padded input is accepted.
func DecodeKey(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil || len(raw) == 0 {
		return "", ErrInvalidKey
	}
	return string(raw), nil
}
