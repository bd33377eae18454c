package pricesheet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheActiveKeyedPerVendor(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	sheet := PriceSheet{ID: uuid.New(), SheetName: "cached", IsActive: true}

	var calls int
	load := func(context.Context) (PriceSheet, error) {
		calls++
		return sheet, nil
	}

	got, err := cache.Active(ctx, "V1", load)
	require.NoError(t, err)
	assert.Equal(t, sheet.ID, got.ID)
	_, err = cache.Active(ctx, "V1", load)
	require.NoError(t, err)
	_, err = cache.Active(ctx, "", load)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.True(t, mr.Exists("pricesheet:active:V1:1"))
	assert.True(t, mr.Exists("pricesheet:active:_all:1"))
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	var calls int
	load := func(context.Context) (PriceSheet, error) {
		calls++
		return PriceSheet{}, shared.NotFound("No active price sheet found")
	}
	for i := 0; i < 2; i++ {
		_, err := cache.Active(ctx, "V1", load)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	}
	assert.Equal(t, 2, calls)
}

func TestCacheBumpChangesVersion(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	bumps, err := cache.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)

	select {
	case got := <-bumps:
		assert.Equal(t, int64(2), got)
	case <-time.After(2 * time.Second):
		t.Fatal("no bump notification received")
	}
}

func TestCacheSharesConcurrentLoads(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (PriceSheet, error) {
		calls.Add(1)
		<-release
		return PriceSheet{SheetName: "slow"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Active(ctx, "V9", load)
			assert.NoError(t, err)
			assert.Equal(t, "slow", got.SheetName)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestCacheLoadSurvivesLeaderCancellation(t *testing.T) {
	cache, mr := newTestCache(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var (
		calls atomic.Int32
		once  sync.Once
	)
	load := func(ctx context.Context) (PriceSheet, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return PriceSheet{}, err
		}
		return PriceSheet{SheetName: "shared"}, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cache.Active(leaderCtx, "V1", load)
		leaderErr <- err
	}()
	<-started

	type result struct {
		sheet PriceSheet
		err   error
	}
	waiter := make(chan result, 1)
	go func() {
		sheet, err := cache.Active(context.Background(), "V1", load)
		waiter <- result{sheet, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	close(release)

	got := <-waiter
	require.NoError(t, got.err)
	assert.Equal(t, "shared", got.sheet.SheetName)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, mr.Exists("pricesheet:active:V1:1"))
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	got, err := cache.Active(ctx, "V1", func(context.Context) (PriceSheet, error) {
		return PriceSheet{SheetName: "direct"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", got.SheetName)
	assert.NoError(t, cache.Bump(ctx))
	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, ver)
}
