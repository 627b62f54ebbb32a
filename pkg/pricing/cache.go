package pricing

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// costDecimals fixes the rounding precision of estimated costs.
const costDecimals = 6

// FetchFunc retrieves live pricing from a remote source.
type FetchFunc func(ctx context.Context) (Table, error)

// Cache owns the active pricing table. Remote pricing is fetched lazily at
// most once per refresh interval; results are merged over the static table so
// a partial or failed fetch never loses the shipped fallback entries.
type Cache struct {
	mu       sync.Mutex
	table    Table
	fetch    FetchFunc
	now      func() time.Time
	interval time.Duration
	fetched  bool
	lastTry  time.Time
	logger   zerolog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithFetch sets the remote fetch function. Nil disables refresh.
func WithFetch(fetch FetchFunc) CacheOption {
	return func(c *Cache) { c.fetch = fetch }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithRefreshInterval sets how long a fetch result (or failure) is trusted
// before another attempt is allowed. Zero means once per process lifetime.
func WithRefreshInterval(interval time.Duration) CacheOption {
	return func(c *Cache) { c.interval = interval }
}

// WithLogger sets the cache logger.
func WithLogger(logger zerolog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// NewCache creates a pricing cache seeded with the static table.
func NewCache(opts ...CacheOption) *Cache {
	cache := &Cache{
		table:  StaticTable(),
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Table returns the active pricing table, refreshing it first if due.
// A failed fetch still marks the attempt so one slow endpoint cannot add
// latency to every cost estimate.
func (c *Cache) Table(ctx context.Context) Table {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshLocked(ctx)

	table := make(Table, len(c.table))
	for model, price := range c.table {
		table[model] = price
	}
	return table
}

func (c *Cache) refreshLocked(ctx context.Context) {
	if c.fetch == nil {
		return
	}
	if c.fetched {
		if c.interval <= 0 || c.now().Sub(c.lastTry) < c.interval {
			return
		}
	}

	c.fetched = true
	c.lastTry = c.now()

	live, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to sync live pricing, using static table")
		return
	}
	if len(live) == 0 {
		c.logger.Warn().Msg("Live pricing fetch returned no entries")
		return
	}

	merged := StaticTable()
	for model, price := range live {
		merged[model] = price
	}
	c.table = merged

	c.logger.Info().Int("models", len(live)).Msg("Pricing table refreshed")
}

// EstimateCost computes the USD cost of one model call from token counts.
// Unknown models cost zero. Cached prompt tokens are billed at the cached
// rate and subtracted from the regular input count.
func (c *Cache) EstimateCost(ctx context.Context, model string, promptTokens, completionTokens, cachedTokens, cacheWriteTokens int) float64 {
	price, ok := c.Table(ctx).Lookup(model)
	if !ok {
		return 0
	}

	regularInput := promptTokens - cachedTokens
	if regularInput < 0 {
		regularInput = 0
	}

	cost := float64(regularInput)*price.Input/1_000_000 +
		float64(cachedTokens)*price.CachedInput/1_000_000 +
		float64(completionTokens)*price.Output/1_000_000

	return roundTo(cost, costDecimals)
}

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
