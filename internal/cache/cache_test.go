package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"product-catalog-client/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestEntityCache_GetBeforeAndAfterTTL(t *testing.T) {
	clock := domain.NewManualClock(epoch)
	c := New[string, int](clock)

	c.Set("products", 42, 5*time.Minute)

	clock.Advance(5*time.Minute - time.Millisecond)
	v, ok := c.Get("products")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	clock.Advance(time.Millisecond)
	_, ok = c.Get("products")
	assert.False(t, ok, "entry must be absent once now - storedAt reaches ttl")
	assert.Equal(t, 0, c.Len(), "expired entry should be evicted on access")
}

func TestEntityCache_SetOverwrites(t *testing.T) {
	clock := domain.NewManualClock(epoch)
	c := New[int64, string](clock)

	c.Set(1, "old", time.Minute)
	clock.Advance(50 * time.Second)
	c.Set(1, "new", time.Minute)
	clock.Advance(50 * time.Second)

	v, ok := c.Get(1)
	require.True(t, ok, "overwrite should restart the ttl")
	assert.Equal(t, "new", v)
}

func TestEntityCache_Invalidate(t *testing.T) {
	c := New[string, int](domain.NewManualClock(epoch))
	c.Set("a", 1, time.Hour)
	c.Set("b", 2, time.Hour)
	c.Set("product_3", 3, time.Hour)

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.InvalidateFunc(func(k string) bool { return k == "product_3" })
	_, ok = c.Get("product_3")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())

	// Invalidating a missing key is a no-op.
	c.Invalidate("missing")
}

func TestEntityCache_Stats(t *testing.T) {
	clock := domain.NewManualClock(epoch)
	c := New[string, int](clock)

	assert.Equal(t, Stats{}, c.Stats())

	c.Set("old", 1, time.Minute)
	clock.Advance(2 * time.Minute)
	c.Set("new", 2, time.Minute)
	clock.Advance(10 * time.Second)

	s := c.Stats()
	assert.Equal(t, 2, s.Entries)
	assert.Equal(t, 1, s.Valid)
	assert.Equal(t, 130*time.Second, s.Oldest)
	assert.Equal(t, 10*time.Second, s.Newest)

	at, ok := c.StoredAt("new")
	require.True(t, ok)
	assert.Equal(t, epoch.Add(2*time.Minute), at)
	_, ok = c.StoredAt("old")
	assert.False(t, ok)
}

func TestFuture_AllWaitersSeeSameResult(t *testing.T) {
	f := NewFuture[[]int]()

	const waiters = 8
	results := make([][]int, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.Wait(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	f.Resolve([]int{1, 2, 3}, nil)
	f.Resolve([]int{9}, errors.New("ignored"))
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, []int{1, 2, 3}, r)
	}

	late, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, late)
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	f.Resolve(7, nil)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
