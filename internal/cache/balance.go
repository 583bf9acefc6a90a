package cache

import (
	"context"
	"encoding/json"
	"time"

	"funding-service/internal/domain"
)

// RedisBalanceCache caches wallets for the read path. The ledger never reads
// from it. Credits overwrite the entry with the committed wallet; reads only
// fill a missing entry, so a slow reader cannot replace a newer balance.
type RedisBalanceCache struct {
	cache *Cache
	ttl   time.Duration
}

func NewRedisBalanceCache(c *Cache, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{cache: c, ttl: ttl}
}

func (b *RedisBalanceCache) Get(ctx context.Context, owner string) (*domain.Wallet, bool) {
	v, err := b.cache.Get(ctx, NamespaceBalance, owner)
	if err != nil {
		return nil, false
	}
	var w domain.Wallet
	if err := json.Unmarshal([]byte(v), &w); err != nil || w.Owner != owner {
		return nil, false
	}
	return &w, true
}

func (b *RedisBalanceCache) Set(ctx context.Context, w *domain.Wallet) {
	raw, err := json.Marshal(w)
	if err != nil {
		return
	}
	_ = b.cache.Set(ctx, NamespaceBalance, w.Owner, string(raw), b.ttl)
}

func (b *RedisBalanceCache) SetIfAbsent(ctx context.Context, w *domain.Wallet) {
	raw, err := json.Marshal(w)
	if err != nil {
		return
	}
	_, _ = b.cache.SetNX(ctx, NamespaceBalance, w.Owner, string(raw), b.ttl)
}

type NopBalanceCache struct{}

func (NopBalanceCache) Get(context.Context, string) (*domain.Wallet, bool) { return nil, false }
func (NopBalanceCache) Set(context.Context, *domain.Wallet)                {}
func (NopBalanceCache) SetIfAbsent(context.Context, *domain.Wallet)        {}
