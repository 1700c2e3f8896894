package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/domain/repository"
)

// DefaultRedisPrefix namespaces token keys in a shared redis
const DefaultRedisPrefix = "filevault:batch:"

// RedisStore keeps tokens as JSON values whose redis TTL matches the token
// expiry, so redis itself does the purging.
type RedisStore struct {
	client redis.Cmdable
	closer func() error
	prefix string
	now    func() time.Time
}

var _ repository.TokenStore = (*RedisStore)(nil)

// RedisConfig configures NewRedisStore
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	store := NewRedisStoreWithClient(client, cfg.Prefix)
	store.closer = client.Close
	return store, nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}

func (r *RedisStore) Put(ctx context.Context, token *entities.BatchToken) error {
	if token == nil || token.Token == "" {
		return entities.NewValidationError("token", "token is required")
	}
	ttl := token.TTL(r.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := r.client.Set(ctx, r.key(token.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, token string) (*entities.BatchToken, error) {
	val, err := r.client.Get(ctx, r.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound()
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	var out entities.BatchToken
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	if out.Expired(r.now()) {
		return nil, notFound()
	}
	return &out, nil
}

// PurgeExpired is a no-op: keys carry their own TTL
func (r *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
