package cache

import (
	"context"
	"sync"
	"time"
)

// TokenStore keeps the gateway bearer token between calls. It is an
// optimization only: a miss just means another login.
type TokenStore interface {
	Get(ctx context.Context) (string, bool)
	Set(ctx context.Context, token string, ttl time.Duration)
	Invalidate(ctx context.Context)
}

const tokenKey = "monnify"

// RedisTokenStore shares the token across replicas.
type RedisTokenStore struct {
	cache *Cache
}

func NewRedisTokenStore(c *Cache) *RedisTokenStore {
	return &RedisTokenStore{cache: c}
}

func (s *RedisTokenStore) Get(ctx context.Context) (string, bool) {
	v, err := s.cache.Get(ctx, NamespaceGatewayToken, tokenKey)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (s *RedisTokenStore) Set(ctx context.Context, token string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_ = s.cache.Set(ctx, NamespaceGatewayToken, tokenKey, token, ttl)
}

func (s *RedisTokenStore) Invalidate(ctx context.Context) {
	_ = s.cache.Delete(ctx, NamespaceGatewayToken, tokenKey)
}

// MemoryTokenStore is the in-process fallback when redis is disabled.
type MemoryTokenStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{now: time.Now}
}

func (s *MemoryTokenStore) Get(_ context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" || !s.now().Before(s.expiresAt) {
		return "", false
	}
	return s.token, true
}

func (s *MemoryTokenStore) Set(_ context.Context, token string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.expiresAt = s.now().Add(ttl)
}

func (s *MemoryTokenStore) Invalidate(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.expiresAt = time.Time{}
}
