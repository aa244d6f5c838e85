package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
)

var (
	thumbCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bt_thumbnail_cache_hits_total",
		Help: "Попадания в кэш миниатюр",
	})
	thumbCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bt_thumbnail_cache_misses_total",
		Help: "Промахи кэша миниатюр",
	})
)

// ThumbnailCache — LRU-кэш содержимого миниатюр с TTL.
// Ключ кэша — ключ артефакта: артефакты не перезаписываются,
// поэтому устаревшее содержимое в кэше невозможно.
type ThumbnailCache struct {
	store filestore.Store
	cache *expirable.LRU[string, []byte]
}

// NewThumbnailCache создаёт кэш на maxSize миниатюр.
func NewThumbnailCache(store filestore.Store, maxSize int, ttl time.Duration) *ThumbnailCache {
	return &ThumbnailCache{
		store: store,
		cache: expirable.NewLRU[string, []byte](maxSize, nil, ttl),
	}
}

// Get возвращает содержимое миниатюры, читая хранилище при промахе.
func (c *ThumbnailCache) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := c.cache.Get(key); ok {
		thumbCacheHitsTotal.Inc()
		return data, nil
	}
	thumbCacheMissesTotal.Inc()

	data, err := filestore.ReadAll(ctx, c.store, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, data)
	return data, nil
}

// Forget убирает миниатюру удалённой записи из кэша.
// Для nil-кэша ничего не делает.
func (c *ThumbnailCache) Forget(key string) {
	if c == nil || key == "" {
		return
	}
	c.cache.Remove(key)
}
