package data

import (
	"context"
	"time"

	"citylayers/internal/biz"
	"citylayers/internal/conf"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
)

// NewAddressCache 逆地理编码结果缓存，过期时间与会话一致。
func NewAddressCache(p *conf.Pipeline) biz.AddressCache {
	ttl := p.SessionTTL.AsDuration()
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	store := go_cache.NewGoCache(gocache.New(ttl, 30*time.Minute))
	return &addressCache{cache: cache.New[string](store)}
}

type addressCache struct {
	cache *cache.Cache[string]
}

func (c *addressCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.cache.Get(ctx, key)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (c *addressCache) Set(ctx context.Context, key, address string) {
	_ = c.cache.Set(ctx, key, address)
}
