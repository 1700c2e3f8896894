package entities

import "time"

// BatchToken maps an opaque token to an ordered set of keys for ZIP bundling
type BatchToken struct {
	Token     string    `json:"token"`
	Keys      []string  `json:"keys"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now
func (t *BatchToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TTL is the remaining lifetime at now, never negative
func (t *BatchToken) TTL(now time.Time) time.Duration {
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
