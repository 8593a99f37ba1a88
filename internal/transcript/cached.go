package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nikhilbhutani/talk2text/internal/cache"
	"github.com/nikhilbhutani/talk2text/internal/metrics"
	"github.com/nikhilbhutani/talk2text/internal/models"
)

// Cached keeps each owner's history in Redis in front of another Repository.
//
// Lists are stored under the owner's current generation. Insert bumps the generation after the
// write commits, so a list read before the commit can only ever be stored under a retired key.
// When the bump fails the owner is marked stale and reads go to the inner store until a later
// bump succeeds. Cache errors are logged, never returned.
type Cached struct {
	inner Repository
	cache *cache.Cache
	ttl   time.Duration

	mu    sync.Mutex
	stale map[string]struct{}
}

func NewCached(inner Repository, c *cache.Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, cache: c, ttl: ttl, stale: make(map[string]struct{})}
}

func generationKey(ownerID string) string {
	return "history:gen:" + ownerID
}

func listKey(ownerID string, gen int64) string {
	return fmt.Sprintf("history:list:%d:%s", gen, ownerID)
}

func (c *Cached) Insert(ctx context.Context, ownerID, fileName, text string) (*models.Transcript, error) {
	t, err := c.inner.Insert(ctx, ownerID, fileName, text)
	if err != nil {
		return nil, err
	}
	c.bump(ctx, ownerID)
	return t, nil
}

func (c *Cached) ListByOwner(ctx context.Context, ownerID string) ([]models.Transcript, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}

	if c.isStale(ownerID) && !c.bump(ctx, ownerID) {
		metrics.ObserveCacheLookup("bypass")
		return c.inner.ListByOwner(ctx, ownerID)
	}

	gen, err := c.cache.Counter(ctx, generationKey(ownerID))
	if err != nil {
		metrics.ObserveCacheLookup("error")
		slog.Warn("history cache generation read failed", "owner_id", ownerID, "error", err)
		return c.inner.ListByOwner(ctx, ownerID)
	}
	key := listKey(ownerID, gen)

	var cached []models.Transcript
	err = c.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		metrics.ObserveCacheLookup("hit")
		if cached == nil {
			cached = []models.Transcript{}
		}
		return cached, nil
	case errors.Is(err, cache.ErrMiss):
		metrics.ObserveCacheLookup("miss")
	default:
		metrics.ObserveCacheLookup("error")
		slog.Warn("history cache read failed", "owner_id", ownerID, "error", err)
	}

	list, err := c.inner.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, list, c.ttl); err != nil {
		slog.Warn("history cache write failed", "owner_id", ownerID, "error", err)
	}
	return list, nil
}

// bump retires every list cached for ownerID. It reports whether the new generation was stored.
func (c *Cached) bump(ctx context.Context, ownerID string) bool {
	_, err := c.cache.Incr(ctx, generationKey(ownerID))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stale[ownerID] = struct{}{}
		slog.Warn("history cache invalidation failed", "owner_id", ownerID, "error", err)
		return false
	}
	delete(c.stale, ownerID)
	return true
}

func (c *Cached) isStale(ownerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.stale[ownerID]
	return ok
}
