package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiliankoe/threader/pkg/models"
)

func sampleSession(id string, gen uint64) *Session {
	return &Session{
		ID:         id,
		Generation: gen,
		SourceURL:  "https://example.social/@alice/1",
		Thread: &models.Thread{
			Platform: models.PlatformMastodon,
			Instance: "example.social",
			Posts:    []models.Post{{ID: "1", ContentHTML: "<p>hi</p>"}},
		},
		HasMore:   true,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	s := sampleSession("s1", 1)
	require.NoError(t, store.Create(ctx, s))
	require.ErrorIs(t, store.Create(ctx, s), ErrExists)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Generation)
	require.Len(t, got.Thread.Posts, 1)
	assert.Equal(t, "<p>hi</p>", got.Thread.Posts[0].ContentHTML)
	assert.True(t, got.CreatedAt.Equal(s.CreatedAt))

	next := got.Clone()
	next.Generation = 2
	next.Thread.Posts = append(next.Thread.Posts, models.Post{ID: "2"})
	require.NoError(t, store.CompareAndSwap(ctx, next, 1))

	stale := got.Clone()
	stale.Generation = 2
	require.ErrorIs(t, store.CompareAndSwap(ctx, stale, 1), ErrSuperseded)

	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Generation)
	assert.Len(t, got.Thread.Posts, 2)

	require.ErrorIs(t, store.CompareAndSwap(ctx, sampleSession("nope", 2), 1), ErrNotFound)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "s1"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	s := sampleSession("s1", 1)
	require.NoError(t, store.Create(ctx, s))

	s.Thread.Posts[0].ContentHTML = "mutated"
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	got.Thread.Posts[0].ContentHTML = "mutated again"

	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", again.Thread.Posts[0].ContentHTML)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Create(ctx, sampleSession("s1", 1)))
	now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Create(ctx, sampleSession("old", 1)))
	now = now.Add(30 * time.Second)
	require.NoError(t, store.Create(ctx, sampleSession("new", 1)))

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
	_, err := store.Get(ctx, "new")
	require.NoError(t, err)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStore(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	exerciseStore(t, store)
	assert.False(t, mr.Exists("threader:session:s1"))
}

func TestRedisStoreKeyAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Minute)

	require.NoError(t, store.Create(ctx, sampleSession("abc", 1)))
	require.True(t, mr.Exists("threader:session:abc"))
	assert.Equal(t, time.Minute, mr.TTL("threader:session:abc"))

	mr.FastForward(30 * time.Second)
	next := sampleSession("abc", 2)
	require.NoError(t, store.CompareAndSwap(ctx, next, 1))
	assert.Equal(t, time.Minute, mr.TTL("threader:session:abc"), "swap refreshes the ttl")

	mr.FastForward(61 * time.Second)
	_, err := store.Get(ctx, "abc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRejectsCorruptValue(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	require.NoError(t, mr.Set("threader:session:bad", "{not json"))

	_, err := store.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
