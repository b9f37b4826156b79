package wanters

import (
	"cardbuff/services/catalog"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	err = cache.Set(42, 5, catalog.CardRecord{CardID: 42, Rank: "B", Name: "Some Card"})
	if err != nil {
		t.Fatal(err)
	}

	count, ok := cache.Get(42)
	require.True(t, ok)
	require.Equal(t, 5, count)

	_, ok = cache.Get(99)
	require.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	cache.now = func() time.Time { return now }

	err = cache.Set(42, 5, catalog.CardRecord{CardID: 42})
	if err != nil {
		t.Fatal(err)
	}

	cache.now = func() time.Time { return now.Add(EntryLifetime + time.Minute) }

	_, ok := cache.Get(42)
	require.False(t, ok)
	require.Equal(t, 0, cache.Len())

	// the eviction must survive a reload
	reloaded, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, ok = reloaded.Get(42)
	require.False(t, ok)
}

func TestCacheEvictsEvenWhenPersistFails(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	cache.now = func() time.Time { return now }

	err = cache.Set(42, 5, catalog.CardRecord{CardID: 42})
	if err != nil {
		t.Fatal(err)
	}

	// a directory squatting on the cache path makes persistence fail
	require.NoError(t, os.Remove(cache.path))
	require.NoError(t, os.Mkdir(cache.path, 0o755))

	cache.now = func() time.Time { return now.Add(EntryLifetime + time.Minute) }

	_, ok := cache.Get(42)
	require.False(t, ok)
	require.Equal(t, 0, cache.Len())
}

func TestCachePersistence(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	err = cache.Set(42, 5, catalog.CardRecord{CardID: 42})
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	count, ok := reloaded.Get(42)
	require.True(t, ok)
	require.Equal(t, 5, count)
}

func TestCacheSweep(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	cache.now = func() time.Time { return now }
	cache.Set(1, 1, catalog.CardRecord{CardID: 1})

	cache.now = func() time.Time { return now.Add(EntryLifetime + time.Minute) }
	cache.Set(2, 2, catalog.CardRecord{CardID: 2})

	err = cache.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 1, cache.Len())

	_, ok := cache.Get(2)
	require.True(t, ok)
}

type stubRemote struct {
	count int
	err   error
	calls int
}

func (s *stubRemote) WantersCount(ctx context.Context, cardID int64) (int, error) {
	s.calls++
	return s.count, s.err
}

func TestSourcePrefersCache(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	remote := &stubRemote{count: 7}
	source := Source{Cache: cache, Remote: remote}

	card := catalog.CardRecord{CardID: 42, Rank: "B"}

	count, err := source.Lookup(context.Background(), card)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 7, count)
	require.Equal(t, 1, remote.calls)

	// second lookup is served from the cache
	count, err = source.Lookup(context.Background(), card)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 7, count)
	require.Equal(t, 1, remote.calls)
}

func TestSourceRemoteError(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	remote := &stubRemote{err: errors.New("boom")}
	source := Source{Cache: cache, Remote: remote}

	_, err = source.Lookup(context.Background(), catalog.CardRecord{CardID: 42})
	require.Error(t, err)
}
