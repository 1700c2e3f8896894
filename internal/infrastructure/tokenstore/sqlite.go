package tokenstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS batch_tokens (
	token      TEXT PRIMARY KEY,
	keys       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_tokens_expires_at ON batch_tokens(expires_at);
`

// SQLiteStore persists tokens in a single table so they survive restarts
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.TokenStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies the schema
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}

	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to token database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, token *entities.BatchToken) error {
	if token == nil || token.Token == "" {
		return entities.NewValidationError("token", "token is required")
	}
	keys, err := json.Marshal(token.Keys)
	if err != nil {
		return fmt.Errorf("failed to encode token keys: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_tokens (token, keys, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET keys = excluded.keys, created_at = excluded.created_at, expires_at = excluded.expires_at
	`, token.Token, string(keys), token.CreatedAt.UnixNano(), token.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, token string) (*entities.BatchToken, error) {
	var (
		keys               string
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT keys, created_at, expires_at FROM batch_tokens WHERE token = ?`, token,
	).Scan(&keys, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	out := &entities.BatchToken{
		Token:     token,
		CreatedAt: time.Unix(0, created).UTC(),
		ExpiresAt: time.Unix(0, expiresAt).UTC(),
	}
	if err := json.Unmarshal([]byte(keys), &out.Keys); err != nil {
		return nil, fmt.Errorf("failed to decode token keys: %w", err)
	}
	if out.Expired(s.now()) {
		return nil, notFound()
	}
	return out, nil
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batch_tokens WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
