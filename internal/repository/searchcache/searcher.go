// Package searchcache remembers searcher answers per image URL so repeated
// "find source" requests for one picture do not hit rate-limited backends.
package searchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/saucebot/internal/db"
	"github.com/kailas-cloud/saucebot/internal/domain/source"
)

const cacheKeyPrefix = "search_cache:"

// store is the consumer interface for the search cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// searcher is the decorated backend.
type searcher interface {
	Name() string
	Search(ctx context.Context, imageURL string) (*source.Image, error)
}

// entry is the cached answer. Found=false records a definite "no source".
type entry struct {
	Found    bool              `json:"found"`
	URL      string            `json:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CachedSearcher caches found and not-found answers of a searcher in a
// key-value store. Failures are never cached.
type CachedSearcher struct {
	inner      searcher
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with labels "searcher" and "result" ("hit"/"miss"), passed explicitly.
func New(
	inner searcher,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedSearcher {
	return &CachedSearcher{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Name returns the wrapped searcher's name.
func (c *CachedSearcher) Name() string { return c.inner.Name() }

// Search returns a cached answer or calls the inner searcher.
func (c *CachedSearcher) Search(ctx context.Context, imageURL string) (*source.Image, error) {
	key := c.cacheKey(imageURL)

	if e, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		if !e.Found {
			return nil, nil
		}
		img := source.New(e.URL, c.inner.Name(), e.Metadata)
		return &img, nil
	}

	c.incCache("miss")

	img, err := c.inner.Search(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.inner.Name(), err)
	}

	e := entry{}
	if img != nil {
		e = entry{Found: true, URL: img.URL(), Metadata: img.Metadata()}
	}
	c.putToCache(ctx, key, e)
	return img, nil
}

func (c *CachedSearcher) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(c.inner.Name(), result).Inc()
	}
}

func (c *CachedSearcher) cacheKey(imageURL string) string {
	h := sha256.Sum256([]byte(imageURL))
	return cacheKeyPrefix + c.inner.Name() + ":" + hex.EncodeToString(h[:])
}

func (c *CachedSearcher) getFromCache(ctx context.Context, key string) (entry, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached search result", zap.String("key", key), zap.Error(err))
		}
		return entry{}, false
	}
	if len(data) == 0 {
		return entry{}, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("Failed to parse cached search result", zap.String("key", key), zap.Error(err))
		return entry{}, false
	}
	if e.Found && e.URL == "" {
		return entry{}, false
	}
	return e, true
}

func (c *CachedSearcher) putToCache(ctx context.Context, key string, e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn("Failed to encode search result", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache search result", zap.String("key", key), zap.Error(err))
	}
}
