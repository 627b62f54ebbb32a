package pricing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableLookup(t *testing.T) {
	table := Table{
		"openai/":        {Input: 1, CachedInput: 0.1, Output: 2},
		"openai/gpt-5.2": {Input: 1.75, CachedInput: 0.175, Output: 14},
	}

	t.Run("exact match wins", func(t *testing.T) {
		price, ok := table.Lookup("openai/gpt-5.2")
		require.True(t, ok)
		assert.Equal(t, 1.75, price.Input)
	})

	t.Run("longest prefix wins", func(t *testing.T) {
		price, ok := table.Lookup("openai/gpt-5.2-codex")
		require.True(t, ok)
		assert.Equal(t, 1.75, price.Input)
	})

	t.Run("shorter prefix still matches", func(t *testing.T) {
		price, ok := table.Lookup("openai/o4-mini")
		require.True(t, ok)
		assert.Equal(t, 1.0, price.Input)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := table.Lookup("mistral/large")
		assert.False(t, ok)
	})

	t.Run("empty model", func(t *testing.T) {
		_, ok := table.Lookup("")
		assert.False(t, ok)
	})
}

func TestEstimateCost(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	t.Run("known model", func(t *testing.T) {
		// claude-sonnet-4.6: 3.0 in, 0.30 cached, 15.0 out per million.
		cost := cache.EstimateCost(ctx, "anthropic/claude-sonnet-4.6", 1_000_000, 100_000, 0, 0)
		assert.InDelta(t, 3.0+1.5, cost, 1e-9)
	})

	t.Run("cached tokens billed at cached rate", func(t *testing.T) {
		cost := cache.EstimateCost(ctx, "anthropic/claude-sonnet-4.6", 1_000_000, 0, 500_000, 0)
		assert.InDelta(t, 0.5*3.0+0.5*0.30, cost, 1e-9)
	})

	t.Run("cached tokens exceeding prompt clamp to zero regular input", func(t *testing.T) {
		cost := cache.EstimateCost(ctx, "anthropic/claude-sonnet-4.6", 100, 0, 200, 0)
		assert.InDelta(t, 200*0.30/1_000_000, cost, 1e-9)
	})

	t.Run("unknown model costs zero", func(t *testing.T) {
		assert.Zero(t, cache.EstimateCost(ctx, "nobody/mystery-model", 1000, 1000, 0, 0))
	})

	t.Run("rounded to six decimals", func(t *testing.T) {
		cost := cache.EstimateCost(ctx, "x-ai/grok-3-mini", 7, 3, 0, 0)
		assert.Equal(t, cost, roundTo(cost, 6))
	})
}

func TestCacheRefresh(t *testing.T) {
	t.Run("fetch merged over static table", func(t *testing.T) {
		fetches := 0
		cache := NewCache(WithFetch(func(ctx context.Context) (Table, error) {
			fetches++
			return Table{"custom/model": {Input: 9, CachedInput: 0.9, Output: 18}}, nil
		}))

		table := cache.Table(context.Background())
		_, ok := table.Lookup("custom/model")
		assert.True(t, ok)
		// Static entries survive the merge.
		_, ok = table.Lookup("anthropic/claude-opus-4.6")
		assert.True(t, ok)

		cache.Table(context.Background())
		assert.Equal(t, 1, fetches, "fetch runs at most once per process")
	})

	t.Run("fetch failure marks fetched and keeps static table", func(t *testing.T) {
		fetches := 0
		cache := NewCache(WithFetch(func(ctx context.Context) (Table, error) {
			fetches++
			return nil, fmt.Errorf("network down")
		}))

		table := cache.Table(context.Background())
		_, ok := table.Lookup("anthropic/claude-sonnet-4.6")
		assert.True(t, ok)

		cache.Table(context.Background())
		assert.Equal(t, 1, fetches, "failed fetch must not re-attempt within the same window")
	})

	t.Run("time-based expiry allows re-fetch", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		fetches := 0

		cache := NewCache(
			WithFetch(func(ctx context.Context) (Table, error) {
				fetches++
				return nil, fmt.Errorf("still down")
			}),
			WithClock(func() time.Time { return now }),
			WithRefreshInterval(time.Hour),
		)

		cache.Table(context.Background())
		cache.Table(context.Background())
		assert.Equal(t, 1, fetches)

		now = now.Add(2 * time.Hour)
		cache.Table(context.Background())
		assert.Equal(t, 2, fetches)
	})
}
