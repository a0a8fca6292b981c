// Package listing caches per-group post summaries in a durable JSON file and
// an in-memory LRU, so listings and point lookups avoid storage scans.
package listing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Config toggles the cache tiers. With both tiers disabled every read is a
// miss.
type Config struct {
	Dir            string
	FileEnabled    bool
	MemoryEnabled  bool
	MemorySize     int
	LockStaleAfter time.Duration
}

// Option customizes a Cache.
type Option func(*Cache)

// WithLockTable replaces the in-process lock table.
func WithLockTable(t LockTable) Option {
	return func(c *Cache) { c.locks = t }
}

// WithRegisterer registers the cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) { c.registerer = reg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is the listing cache. It is safe for concurrent use; the returned
// summary slices are shared and must not be modified.
type Cache struct {
	cfg        Config
	groups     domain.GroupRepository
	builder    *builder
	durable    *durableStore
	volatile   *volatileStore
	locks      LockTable
	hydrate    singleflight.Group
	registerer prometheus.Registerer
	metrics    *metrics
	now        func() time.Time
}

func NewCache(cfg Config, storage domain.Storage, groups domain.GroupRepository, opts ...Option) (*Cache, error) {
	if cfg.LockStaleAfter <= 0 {
		cfg.LockStaleAfter = DefaultLockStaleAfter
	}
	if cfg.FileEnabled && cfg.Dir == "" {
		return nil, errors.New("listing cache: file tier enabled without a directory")
	}

	c := &Cache{
		cfg:     cfg,
		groups:  groups,
		builder: &builder{storage: storage},
		durable: &durableStore{dir: cfg.Dir},
		locks:   NewMemoryLockTable(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics = newMetrics(c.registerer)

	if cfg.MemoryEnabled {
		v, err := newVolatileStore(cfg.MemorySize)
		if err != nil {
			return nil, fmt.Errorf("listing cache: %w", err)
		}
		c.volatile = v
	}
	return c, nil
}

// Read returns the cached summaries of group, newest first. It returns
// domain.ErrCacheMiss when no enabled tier holds the group.
func (c *Cache) Read(ctx context.Context, group string) ([]domain.PostSummary, error) {
	if c.volatile != nil {
		if e, ok := c.volatile.get(group); ok {
			if !c.fileChanged(group, e) {
				c.metrics.hits.WithLabelValues(tierMemory).Inc()
				return e.posts, nil
			}
			c.volatile.remove(group)
		}
	}

	if c.cfg.FileEnabled {
		posts, err := c.hydrateFromFile(group)
		if err == nil {
			c.metrics.hits.WithLabelValues(tierFile).Inc()
			return posts, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("group", group).Msg("Failed to read listing cache file")
		}
	}

	c.metrics.misses.Inc()
	return nil, domain.ErrCacheMiss
}

// fileChanged reports whether another writer replaced or removed the durable
// file after e was loaded.
func (c *Cache) fileChanged(group string, e *entry) bool {
	if !c.cfg.FileEnabled {
		return false
	}
	modTime := c.durable.modTime(group)
	if modTime.IsZero() {
		return !e.fileModTime.IsZero()
	}
	return modTime.After(e.fileModTime)
}

// hydrateFromFile parses the durable file once per group no matter how many
// readers miss the volatile tier at the same time.
func (c *Cache) hydrateFromFile(group string) ([]domain.PostSummary, error) {
	v, err, _ := c.hydrate.Do(group, func() (any, error) {
		modTime := c.durable.modTime(group)
		f, err := c.durable.read(group)
		if err != nil {
			return nil, err
		}
		if c.volatile != nil {
			c.volatile.put(group, &entry{
				posts:           f.Posts,
				loadedAt:        c.now(),
				fileGeneratedAt: f.GeneratedAt,
				fileModTime:     modTime,
			})
		}
		return f.Posts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.PostSummary), nil
}

// Regenerate rescans group from storage and replaces both tiers. Concurrent
// calls are allowed but may race; use RegenerateIfNotInProgress for mutual
// exclusion.
func (c *Cache) Regenerate(ctx context.Context, group string) error {
	err := c.regenerate(ctx, group)
	if err != nil {
		c.metrics.regenerations.WithLabelValues(outcomeError).Inc()
		return err
	}
	c.metrics.regenerations.WithLabelValues(outcomeSuccess).Inc()
	return nil
}

func (c *Cache) regenerate(ctx context.Context, group string) error {
	g, err := c.groups.GetGroup(ctx, group)
	if err != nil {
		return err
	}

	posts, err := c.builder.build(ctx, g)
	if err != nil {
		return err
	}

	generatedAt := c.now().UTC()
	var modTime time.Time
	if c.cfg.FileEnabled {
		f := &cacheFile{GeneratedAt: generatedAt, PostCount: len(posts), Posts: posts}
		if err := c.durable.write(group, f); err != nil {
			if c.volatile != nil {
				c.volatile.remove(group)
			}
			return fmt.Errorf("failed to write listing cache for %s: %w", group, err)
		}
		modTime = c.durable.modTime(group)
	}

	if c.volatile != nil {
		c.volatile.put(group, &entry{
			posts:           posts,
			loadedAt:        c.now(),
			fileGeneratedAt: generatedAt,
			fileModTime:     modTime,
		})
	}

	log.Info().Str("group", group).Int("posts", len(posts)).Msg("Regenerated listing cache")
	return nil
}

// RegenerateIfNotInProgress regenerates group unless another caller holds a
// fresh regeneration lock, in which case it returns
// domain.ErrAlreadyInProgress. A lock older than Config.LockStaleAfter is
// taken over. The lock is always released before returning.
func (c *Cache) RegenerateIfNotInProgress(ctx context.Context, group string) error {
	lock, ok, err := acquire(ctx, c.locks, group, c.now(), c.cfg.LockStaleAfter)
	if err != nil {
		return fmt.Errorf("failed to acquire regeneration lock for %s: %w", group, err)
	}
	if !ok {
		c.metrics.regenerations.WithLabelValues(outcomeInProgress).Inc()
		return domain.ErrAlreadyInProgress
	}
	defer func() {
		// Release even when ctx is already cancelled.
		if _, err := c.locks.CompareAndDelete(context.WithoutCancel(ctx), group, lock); err != nil {
			log.Error().Err(err).Str("group", group).Msg("Failed to release regeneration lock")
		}
	}()

	return c.Regenerate(ctx, group)
}

// Invalidate drops group from both tiers. Missing entries are not an error.
func (c *Cache) Invalidate(ctx context.Context, group string) error {
	if c.volatile != nil {
		c.volatile.remove(group)
	}
	if c.cfg.FileEnabled {
		return c.durable.remove(group)
	}
	return nil
}

// Scan builds group's summaries straight from storage without touching
// either tier. It backs listings while the cache is cold.
func (c *Cache) Scan(ctx context.Context, group string) ([]domain.PostSummary, error) {
	g, err := c.groups.GetGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	return c.builder.build(ctx, g)
}
