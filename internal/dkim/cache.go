package dkim

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/logging"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxTTL       = time.Hour
	defaultFetchTimeout = 10 * time.Second
)

type cacheEntry struct {
	rec     *KeyRecord
	staleAt time.Time
}

// Cache keeps fetched key records. Reads are lock-free; fetches for the same
// key are coalesced so that concurrent misses produce one source call.
// A record is fresh until min(its ExpiresAt, FetchedAt+maxTTL).
type Cache struct {
	source       KeySource
	maxTTL       time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	log          logging.Logger

	entries sync.Map // key name -> *cacheEntry
	group   singleflight.Group
}

func NewCache(source KeySource, maxTTL time.Duration, log logging.Logger) *Cache {
	if maxTTL <= 0 {
		maxTTL = DefaultMaxTTL
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Cache{
		source:       source,
		maxTTL:       maxTTL,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		log:          log.With("module", "dkim.cache"),
	}
}

// Get returns a fresh record, fetching it when absent or stale.
func (c *Cache) Get(ctx context.Context, domain, selector string) (*KeyRecord, error) {
	name := KeyName(domain, selector)
	if rec, ok := c.fresh(name); ok {
		c.log.Debug(ctx, "key cache hit", "key", name)
		return rec, nil
	}
	return c.load(ctx, name, domain, selector)
}

// Refresh drops any cached record and fetches the key again.
func (c *Cache) Refresh(ctx context.Context, domain, selector string) (*KeyRecord, error) {
	c.Invalidate(domain, selector)
	return c.load(ctx, KeyName(domain, selector), domain, selector)
}

func (c *Cache) Invalidate(domain, selector string) {
	c.entries.Delete(KeyName(domain, selector))
}

func (c *Cache) fresh(name string) (*KeyRecord, bool) {
	v, ok := c.entries.Load(name)
	if !ok {
		return nil, false
	}
	e := v.(*cacheEntry)
	if !c.now().Before(e.staleAt) {
		return nil, false
	}
	return e.rec, true
}

func (c *Cache) load(ctx context.Context, name, domain, selector string) (*KeyRecord, error) {
	ch := c.group.DoChan(name, func() (any, error) {
		// a flight that finished just before this one may already have
		// stored the record
		if rec, ok := c.fresh(name); ok {
			return rec, nil
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		rec, err := c.source.FetchKey(fctx, domain, selector)
		if err != nil {
			c.log.Warn(ctx, "key fetch failed", "key", name, "error", err)
			return nil, err
		}

		now := c.now()
		rec = rec.clone()
		rec.FetchedAt = now

		staleAt := now.Add(c.maxTTL)
		if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(staleAt) {
			staleAt = rec.ExpiresAt
		}
		c.entries.Store(name, &cacheEntry{rec: rec, staleAt: staleAt})

		c.log.Debug(ctx, "key fetched", "key", name, "revoked", rec.Revoked, "stale_at", staleAt)
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeyRecord), nil
	}
}
