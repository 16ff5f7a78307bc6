package api

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/attison/penance/internal/metrics"
	"github.com/attison/penance/internal/storage"
)

const dateCacheSize = 512

// dateCache memoizes parsed date-key path parameters. Widget and UI
// clients poll the same handful of recent dates on every refresh.
type dateCache struct {
	cache *lru.Cache[string, time.Time]
}

func newDateCache() *dateCache {
	cache, err := lru.New[string, time.Time](dateCacheSize)
	if err != nil {
		// Only fails for a non-positive size.
		panic(err)
	}
	return &dateCache{cache: cache}
}

// Parse validates key as a calendar date, serving repeats from the cache.
func (c *dateCache) Parse(key string) (time.Time, error) {
	if t, ok := c.cache.Get(key); ok {
		metrics.DateCacheHits.Inc()
		return t, nil
	}
	metrics.DateCacheMisses.Inc()

	t, err := storage.ParseDateKey(key)
	if err != nil {
		return time.Time{}, err
	}
	c.cache.Add(key, t)
	return t, nil
}
