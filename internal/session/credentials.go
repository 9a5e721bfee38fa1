package session

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"main/internal/schema"
	"main/pkg/exception"
)

const cacheTokenKey = "engine:session:token"

// Store persists the durable session record. The table holds at most one
// row; saving a new record replaces the prior one.
type Store struct {
	db *gorm.DB
}

// NewStore creates a durable session store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save replaces the current session record.
func (s *Store) Save(ctx context.Context, record schema.SessionRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&schema.SessionRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
}

// Current returns the stored record when it has not expired at now.
func (s *Store) Current(ctx context.Context, now time.Time) (schema.SessionRecord, error) {
	var record schema.SessionRecord
	err := s.db.WithContext(ctx).Order("created_at DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return schema.SessionRecord{}, exception.ErrNoStoredSession
	}
	if err != nil {
		return schema.SessionRecord{}, err
	}
	if record.Expired(now) {
		return schema.SessionRecord{}, exception.ErrNoStoredSession
	}
	return record, nil
}

// Clear removes any stored record.
func (s *Store) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&schema.SessionRecord{}).Error
}

// TokenCache keeps the active token in the fast cache with a TTL aligned
// to the session's wall-clock expiry.
type TokenCache struct {
	rdb *redis.Client
}

// NewTokenCache creates a cache-backed token holder.
func NewTokenCache(rdb *redis.Client) *TokenCache {
	return &TokenCache{rdb: rdb}
}

// Put stores the token for the remaining session lifetime. A non-positive
// TTL clears the entry instead of storing an already-expired token.
func (c *TokenCache) Put(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Delete(ctx)
	}
	return c.rdb.Set(ctx, cacheTokenKey, token, ttl).Err()
}

// Get returns the cached token, or empty when the entry is absent.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	v, err := c.rdb.Get(ctx, cacheTokenKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Delete drops the cached token.
func (c *TokenCache) Delete(ctx context.Context) error {
	return c.rdb.Del(ctx, cacheTokenKey).Err()
}
