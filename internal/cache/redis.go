package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/pkg/logger"
	"github.com/fjod/go_orders/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogCache is a read-through Redis cache in front of the catalog store.
//
// Every Invalidate bumps a generation counter before deleting keys, and
// population is a WATCH/MULTI write that is dropped when the generation has
// moved. A load that raced an invalidation therefore never lands in Redis,
// and once Invalidate returns the next read goes to the store.
type CatalogCache struct {
	client      *redis.Client
	store       Store
	ttl         TTLConfig
	sfg         singleflight.Group // collapses concurrent misses per key and generation
	loadTimeout time.Duration
	log         *slog.Logger
	metrics     *metrics.Metrics

	hits          atomic.Int64
	misses        atomic.Int64
	loadErrors    atomic.Int64
	redisErrors   atomic.Int64
	invalidations atomic.Int64
}

type Option func(*CatalogCache)

func WithTTL(ttl TTLConfig) Option {
	return func(c *CatalogCache) { c.ttl = ttl }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *CatalogCache) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *CatalogCache) { c.metrics = m }
}

// WithLoadTimeout bounds a shared store load. The load is detached from the
// caller that started it so one caller giving up does not fail the others.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *CatalogCache) { c.loadTimeout = d }
}

func NewCatalogCache(client *redis.Client, store Store, opts ...Option) *CatalogCache {
	c := &CatalogCache{
		client:      client,
		store:       store,
		ttl:         DefaultTTL(),
		log:         logger.Nop(),
		loadTimeout: defaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CatalogCache) GetCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	ttl := c.ttl.Categories
	if activeOnly {
		ttl = c.ttl.ActiveCategories
	}
	return readThrough(ctx, c, categoriesKey(activeOnly), ttl, func(ctx context.Context) ([]domain.Category, error) {
		return c.store.ListCategories(ctx, activeOnly)
	})
}

func (c *CatalogCache) GetProducts(ctx context.Context, categoryID int64, activeOnly bool) ([]domain.Product, error) {
	ttl := c.ttl.Products
	if activeOnly {
		ttl = c.ttl.ActiveProducts
	}
	return readThrough(ctx, c, productsKey(categoryID, activeOnly), ttl, func(ctx context.Context) ([]domain.Product, error) {
		return c.store.ListProducts(ctx, categoryID, activeOnly)
	})
}

func (c *CatalogCache) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return readThrough(ctx, c, productKey(id), c.ttl.Product, func(ctx context.Context) (*domain.Product, error) {
		return c.store.GetProduct(ctx, id)
	})
}

const defaultLoadTimeout = 5 * time.Second

func readThrough[T any](ctx context.Context, c *CatalogCache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T

	gen, data, err := c.lookup(ctx, key)
	if err != nil {
		c.redisErrors.Add(1)
		c.metrics.CacheLookup("error")
		c.log.WarnContext(ctx, "catalog cache unavailable, reading store", "key", key, "error", err)
		return load(ctx)
	}

	if data != nil {
		var v T
		errUnmarshal := json.Unmarshal(data, &v)
		if errUnmarshal == nil {
			c.hits.Add(1)
			c.metrics.CacheLookup("hit")
			return v, nil
		}
		c.log.WarnContext(ctx, "corrupt catalog cache entry", "key", key, "error", errUnmarshal)
	}

	c.misses.Add(1)
	c.metrics.CacheLookup("miss")

	ch := c.sfg.DoChan(key+"@"+gen, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		loaded, errLoad := load(lctx)
		if errLoad != nil {
			c.loadErrors.Add(1)
			return nil, errLoad
		}
		c.fill(lctx, key, gen, loaded, ttl)
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// lookup reads the generation and the value in one round trip.
func (c *CatalogCache) lookup(ctx context.Context, key string) (string, []byte, error) {
	vals, err := c.client.MGet(ctx, genKey, key).Result()
	if err != nil {
		return "", nil, fmt.Errorf("redis mget failed: %w", err)
	}

	gen := "0"
	if s, ok := vals[0].(string); ok {
		gen = s
	}
	if s, ok := vals[1].(string); ok {
		return gen, []byte(s), nil
	}
	return gen, nil, nil
}

var errGenerationMoved = errors.New("catalog generation moved")

func (c *CatalogCache) fill(ctx context.Context, key, gen string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.WarnContext(ctx, "marshal catalog entry failed", "key", key, "error", err)
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, errGet := tx.Get(ctx, genKey).Result()
		if errors.Is(errGet, redis.Nil) {
			cur = "0"
		} else if errGet != nil {
			return errGet
		}
		if cur != gen {
			return errGenerationMoved
		}
		_, errExec := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, withJitter(ttl))
			return nil
		})
		return errExec
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		c.log.DebugContext(ctx, "catalog cache fill dropped after invalidation", "key", key)
	default:
		c.redisErrors.Add(1)
		c.log.WarnContext(ctx, "catalog cache fill failed", "key", key, "error", err)
	}
}

func withJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	spread := int64(ttl / 10)
	if spread <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int64N(spread))
}

// Invalidate drops every entry covered by scope. It never touches the store.
// An error means the entries may still be present.
func (c *CatalogCache) Invalidate(ctx context.Context, scope Scope) error {
	if err := c.client.Incr(ctx, genKey).Err(); err != nil {
		c.redisErrors.Add(1)
		return fmt.Errorf("bump catalog generation: %w", err)
	}

	var (
		keys []string
		err  error
	)
	switch scope.Kind {
	case ScopeKindCategory:
		keys = []string{
			categoriesKey(false), categoriesKey(true),
			productsKey(scope.CategoryID, false), productsKey(scope.CategoryID, true),
			productsKey(0, false), productsKey(0, true),
		}
	case ScopeKindProduct:
		keys = []string{productKey(scope.ProductID), productsKey(0, false), productsKey(0, true)}
		if scope.CategoryID > 0 {
			keys = append(keys, productsKey(scope.CategoryID, false), productsKey(scope.CategoryID, true))
		} else {
			var lists []string
			lists, err = c.scanKeys(ctx, "catalog:category:*")
			keys = append(keys, lists...)
		}
	default:
		keys, err = c.scanKeys(ctx, keyPrefix+"*")
	}
	if err != nil {
		c.redisErrors.Add(1)
		return fmt.Errorf("scan catalog keys: %w", err)
	}

	if err := c.deleteKeys(ctx, keys); err != nil {
		c.redisErrors.Add(1)
		return err
	}

	c.invalidations.Add(1)
	c.metrics.CacheInvalidated(string(scope.Kind))
	c.log.DebugContext(ctx, "catalog cache invalidated", "scope", scope.String(), "keys", len(keys))
	return nil
}

func (c *CatalogCache) deleteKeys(ctx context.Context, keys []string) error {
	const batch = 500
	for start := 0; start < len(keys); start += batch {
		end := min(start+batch, len(keys))
		if err := c.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("redis delete failed: %w", err)
		}
	}
	return nil
}

// scanKeys lists keys matching pattern without blocking Redis. The
// generation key is never returned.
func (c *CatalogCache) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		page, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range page {
			if k != genKey {
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (c *CatalogCache) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		LoadErrors:    c.loadErrors.Load(),
		RedisErrors:   c.redisErrors.Load(),
		Invalidations: c.invalidations.Load(),
	}

	keys, err := c.scanKeys(ctx, keyPrefix+"*")
	if err != nil {
		return s, fmt.Errorf("scan catalog keys: %w", err)
	}
	s.Keys = int64(len(keys))

	gen, err := c.client.Get(ctx, genKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return s, fmt.Errorf("redis get failed: %w", err)
	}
	if gen != "" {
		s.Generation, _ = strconv.ParseInt(gen, 10, 64)
	}
	return s, nil
}
