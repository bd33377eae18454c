package pricesheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "pricesheet:version"
	bumpChannel     = "pricesheet.bump"
	anyVendor       = "_all"
)

// Cache holds the active sheet per vendor in Redis. Keys embed a global
// version, so a single Bump invalidates every entry.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) activeKey(ctx context.Context, vendorID string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	if vendorID == "" {
		vendorID = anyVendor
	}
	return fmt.Sprintf("pricesheet:active:%s:%d", vendorID, ver), nil
}

// Active returns the cached active sheet for vendorID, calling load on a
// miss. Concurrent misses for the same key share one load. Load errors,
// including not-found, are never cached.
func (c *Cache) Active(ctx context.Context, vendorID string, load func(context.Context) (PriceSheet, error)) (PriceSheet, error) {
	if !c.enabled() {
		return load(ctx)
	}
	key, err := c.activeKey(ctx, vendorID)
	if err != nil {
		return load(ctx)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var sheet PriceSheet
		if err := json.Unmarshal(payload, &sheet); err == nil {
			return sheet, nil
		}
	}

	// The load is shared with other callers, so it must outlive the
	// caller that happened to start it.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		sheet, err := load(loadCtx)
		if err != nil {
			return PriceSheet{}, err
		}
		if raw, err := json.Marshal(sheet); err == nil {
			_ = c.client.Set(loadCtx, key, raw, c.ttl).Err()
		}
		return sheet, nil
	})
	select {
	case <-ctx.Done():
		return PriceSheet{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return PriceSheet{}, res.Err
		}
		return res.Val.(PriceSheet), nil
	}
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// Subscribe delivers every version bump on the returned channel until ctx is done.
func (c *Cache) Subscribe(ctx context.Context) (<-chan int64, error) {
	if !c.enabled() {
		return nil, nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	out := make(chan int64, 1)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				select {
				case out <- ver:
				default:
				}
			}
		}
	}()
	return out, nil
}
