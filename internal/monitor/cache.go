package monitor

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/nodepulse/internal/cachestore"
	"github.com/xtxerr/nodepulse/internal/logging"
)

var log = logging.Component("monitor")

// Observer receives cache outcomes. A nil Observer is allowed.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Cache resolves monitor configs cache-aside: the Cache Store first, then
// the Config Store, writing hits back without expiry. Provisioning changes
// must call Invalidate.
//
// Cache is safe for concurrent use. Concurrent misses for the same key share
// one Config Store lookup.
type Cache struct {
	cache    cachestore.Store
	finder   Finder
	observer Observer
	group    singleflight.Group
}

// NewCache creates a Cache.
func NewCache(cache cachestore.Store, finder Finder, observer Observer) *Cache {
	return &Cache{cache: cache, finder: finder, observer: observer}
}

// Get returns the config for (hostname, identity). A host without a config
// yields nil, nil. Store failures are returned as errors and are never
// reported as an absent config.
func (c *Cache) Get(ctx context.Context, hostname, identity string) (*Config, error) {
	key := Key(hostname, identity)

	b, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		cfg, decErr := decode(b)
		if decErr == nil {
			c.hit()
			return cfg, nil
		}
		log.Warn("discarding corrupt cached config", "key", key, "error", decErr)
	case !cachestore.IsMiss(err):
		return nil, err
	}
	c.miss()

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.load(ctx, key, hostname, identity)
	})
	if err != nil {
		return nil, err
	}
	cfg, _ := v.(*Config)
	if cfg == nil {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (c *Cache) load(ctx context.Context, key, hostname, identity string) (*Config, error) {
	cfg, err := c.finder.FindMonitor(ctx, hostname, identity)
	if err != nil || cfg == nil {
		return nil, err
	}

	b, err := encode(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, b, 0); err != nil {
		// The authoritative answer is still valid; the next call retries the
		// write-back.
		logging.WithContext(ctx).Warn("config write-back failed", "key", key, "error", err)
	}
	return cfg, nil
}

// Invalidate drops the cached config for (hostname, identity).
func (c *Cache) Invalidate(ctx context.Context, hostname, identity string) error {
	return c.cache.Delete(ctx, Key(hostname, identity))
}

func (c *Cache) hit() {
	if c.observer != nil {
		c.observer.CacheHit()
	}
}

func (c *Cache) miss() {
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}
