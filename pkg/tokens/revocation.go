package tokens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RevocationIndex marks tokens revoked by jti and answers membership
// queries. The check sits on the hot request route: implementations must be
// a single fast indexed lookup with no retry or backoff.
type RevocationIndex interface {
	// Revoke marks the jti revoked until the token's own expiry; entries
	// may be dropped after ttl since an expired token fails verification
	// anyway.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error

	// IsRevoked reports whether the jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const revocationKeyPrefix = "cids:revoked:"

// RedisRevocationIndex stores revoked jtis as expiring Redis keys, shared
// across service instances.
type RedisRevocationIndex struct {
	client *redis.Client
}

// NewRedisRevocationIndex creates a Redis-backed revocation index.
func NewRedisRevocationIndex(client *redis.Client) *RedisRevocationIndex {
	return &RedisRevocationIndex{client: client}
}

// Revoke implements RevocationIndex.
func (r *RedisRevocationIndex) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := r.client.Set(ctx, revocationKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("recording revocation: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationIndex.
func (r *RedisRevocationIndex) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revocationKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryRevocationIndex is a process-local revocation index for tests and
// single-instance deployments.
type MemoryRevocationIndex struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

// NewMemoryRevocationIndex creates an in-memory revocation index.
func NewMemoryRevocationIndex() *MemoryRevocationIndex {
	return &MemoryRevocationIndex{revoked: make(map[string]time.Time)}
}

// Revoke implements RevocationIndex.
func (m *MemoryRevocationIndex) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = time.Now().Add(ttl)
	return nil
}

// IsRevoked implements RevocationIndex.
func (m *MemoryRevocationIndex) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.RLock()
	expiry, ok := m.revoked[jti]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		m.mu.Lock()
		delete(m.revoked, jti)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}
