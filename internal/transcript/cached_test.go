package transcript

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/talk2text/internal/cache"
	"github.com/nikhilbhutani/talk2text/internal/models"
)

func newCachedOver(t *testing.T, inner Repository) (*Cached, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCached(inner, cache.NewCache(client, "talk2text:"), time.Minute), mr
}

func setupCached(t *testing.T) (*Cached, *SQLite, *miniredis.Miniredis) {
	inner := openTestSQLite(t)
	c, mr := newCachedOver(t, inner)
	return c, inner, mr
}

// gatedRepo holds the first ListByOwner call after the inner read until release is closed.
type gatedRepo struct {
	Repository
	once    sync.Once
	listed  chan struct{}
	release chan struct{}
}

func (g *gatedRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Transcript, error) {
	list, err := g.Repository.ListByOwner(ctx, ownerID)
	g.once.Do(func() {
		close(g.listed)
		<-g.release
	})
	return list, err
}

func TestCached_ListPopulatesCache(t *testing.T) {
	c, inner, mr := setupCached(t)
	ctx := context.Background()

	_, err := inner.Insert(ctx, "u1", "a.mp3", "hello")
	require.NoError(t, err)

	list, err := c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, mr.Exists("talk2text:history:list:0:u1"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("talk2text:history:list:0:u1"))
}

func TestCached_InsertRetiresCachedList(t *testing.T) {
	c, _, mr := setupCached(t)
	ctx := context.Background()

	empty, err := c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	rec, err := c.Insert(ctx, "u1", "a.mp3", "hello")
	require.NoError(t, err)
	gen, err := mr.Get("talk2text:history:gen:u1")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	list, err := c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.True(t, rec.CreatedAt.Equal(list[0].CreatedAt))
	assert.True(t, mr.Exists("talk2text:history:list:1:u1"))
}

func TestCached_SlowReaderCannotRestoreOldList(t *testing.T) {
	gated := &gatedRepo{
		Repository: openTestSQLite(t),
		listed:     make(chan struct{}),
		release:    make(chan struct{}),
	}
	c, _ := newCachedOver(t, gated)
	ctx := context.Background()

	done := make(chan []models.Transcript, 1)
	go func() {
		list, err := c.ListByOwner(ctx, "u1")
		assert.NoError(t, err)
		done <- list
	}()

	<-gated.listed
	rec, err := c.Insert(ctx, "u1", "a.mp3", "hello")
	require.NoError(t, err)
	close(gated.release)
	assert.Empty(t, <-done)

	list, err := c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
}

func TestCached_FailedInvalidationBypassesCache(t *testing.T) {
	c, _, mr := setupCached(t)
	ctx := context.Background()

	_, err := c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.True(t, mr.Exists("talk2text:history:list:0:u1"))

	mr.SetError("READONLY You can't write against a read only replica.")
	rec, err := c.Insert(ctx, "u1", "a.mp3", "hello")
	require.NoError(t, err)

	// Redis still failing: the store answers directly.
	list, err := c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	mr.SetError("")
	list, err = c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	gen, err := mr.Get("talk2text:history:gen:u1")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
	assert.False(t, c.isStale("u1"))
}

func TestCached_CacheIsPerOwner(t *testing.T) {
	c, _, _ := setupCached(t)
	ctx := context.Background()

	_, err := c.Insert(ctx, "u1", "a.mp3", "mine")
	require.NoError(t, err)
	_, err = c.ListByOwner(ctx, "u1")
	require.NoError(t, err)

	list, err := c.ListByOwner(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	c, inner, mr := setupCached(t)
	ctx := context.Background()
	mr.Close()

	rec, err := c.Insert(ctx, "u1", "a.mp3", "still saved")
	require.NoError(t, err)

	list, err := c.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	direct, err := inner.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, direct, 1)
}

func TestCached_InvalidOwner(t *testing.T) {
	c, _, _ := setupCached(t)
	_, err := c.ListByOwner(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidOwner)
}
