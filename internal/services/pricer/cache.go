package pricer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const redisPricesKey = "cexbalance:prices"

// CacheBackend stores one price table with an expiry.
type CacheBackend interface {
	// Get returns false when nothing fresh is stored.
	Get(ctx context.Context) (domain.PriceTable, bool, error)
	Set(ctx context.Context, table domain.PriceTable, ttl time.Duration) error
	Delete(ctx context.Context) error
}

// CachedOracle serves market tables from a backend until they expire.
// Fallback tables are never stored.
type CachedOracle struct {
	next    Pricer
	backend CacheBackend
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedOracle wraps next. A ttl of zero disables caching.
func NewCachedOracle(next Pricer, backend CacheBackend, ttl time.Duration, logger *zap.Logger) *CachedOracle {
	return &CachedOracle{next: next, backend: backend, ttl: ttl, logger: logger}
}

func (c *CachedOracle) FetchPrices(ctx context.Context) domain.PriceTable {
	if c.ttl <= 0 {
		return c.next.FetchPrices(ctx)
	}

	table, ok, err := c.backend.Get(ctx)
	if err != nil {
		c.logger.Warn("price cache read failed", zap.Error(err))
	}
	if ok {
		table.Source = domain.PriceSourceCache
		table.PinStableCoins()
		return table
	}

	table = c.next.FetchPrices(ctx)
	if table.Source != domain.PriceSourceMarket {
		return table
	}

	if err := c.backend.Set(ctx, table, c.ttl); err != nil {
		c.logger.Warn("price cache write failed", zap.Error(err))
	}

	return table
}

// Invalidate drops the cached table so the next fetch goes to the market.
func (c *CachedOracle) Invalidate(ctx context.Context) error {
	return c.backend.Delete(ctx)
}

// MemoryCache keeps the table in process memory.
type MemoryCache struct {
	mu      sync.Mutex
	table   domain.PriceTable
	expires time.Time
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context) (domain.PriceTable, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.table.Prices == nil || !m.now().Before(m.expires) {
		return domain.PriceTable{}, false, nil
	}
	return domain.NewPriceTable(m.table.Prices, m.table.Source, m.table.FetchedAt), true, nil
}

func (m *MemoryCache) Set(_ context.Context, table domain.PriceTable, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table = domain.NewPriceTable(table.Prices, table.Source, table.FetchedAt)
	m.expires = m.now().Add(ttl)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table = domain.PriceTable{}
	m.expires = time.Time{}
	return nil
}

// RedisCache shares the table between processes through a redis key with TTL.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache connects to redis and checks the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return &RedisCache{client: client, key: redisPricesKey}, nil
}

func (r *RedisCache) Get(ctx context.Context) (domain.PriceTable, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PriceTable{}, false, nil
		}
		return domain.PriceTable{}, false, err
	}

	var table domain.PriceTable
	if err := json.Unmarshal(data, &table); err != nil {
		return domain.PriceTable{}, false, errors.Wrap(err, "decode cached prices")
	}
	if table.Prices == nil {
		return domain.PriceTable{}, false, nil
	}

	return table, true, nil
}

func (r *RedisCache) Set(ctx context.Context, table domain.PriceTable, ttl time.Duration) error {
	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
