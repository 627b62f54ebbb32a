package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const openRouterModelsURL = "https://openrouter.ai/api/v1/models"

// minLiveEntries guards against a degenerate listing wiping out useful data.
const minLiveEntries = 5

type openRouterModel struct {
	ID      string `json:"id"`
	Pricing struct {
		Prompt          string `json:"prompt"`
		Completion      string `json:"completion"`
		InputCacheRead  string `json:"input_cache_read"`
		InputCacheWrite string `json:"input_cache_write"`
	} `json:"pricing"`
}

type openRouterListing struct {
	Data []openRouterModel `json:"data"`
}

// OpenRouterFetch returns a FetchFunc that reads live per-token pricing from
// the OpenRouter model listing and converts it to per-million-token prices.
func OpenRouterFetch(client *http.Client) FetchFunc {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return func(ctx context.Context) (Table, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, openRouterModelsURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("openrouter models listing: status %d", resp.StatusCode)
		}

		var listing openRouterListing
		if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
			return nil, fmt.Errorf("decode openrouter listing: %w", err)
		}

		table := Table{}
		for _, model := range listing.Data {
			price, ok := parseModelPricing(model)
			if !ok {
				continue
			}
			table[model.ID] = price
		}

		if len(table) < minLiveEntries {
			return nil, fmt.Errorf("openrouter listing too small: %d usable entries", len(table))
		}
		return table, nil
	}
}

func parseModelPricing(model openRouterModel) (Price, bool) {
	input, err := strconv.ParseFloat(model.Pricing.Prompt, 64)
	if err != nil {
		return Price{}, false
	}
	output, err := strconv.ParseFloat(model.Pricing.Completion, 64)
	if err != nil {
		return Price{}, false
	}

	// Cache-read pricing is optional in the listing.
	cached := input
	if model.Pricing.InputCacheRead != "" {
		if parsed, err := strconv.ParseFloat(model.Pricing.InputCacheRead, 64); err == nil {
			cached = parsed
		}
	}

	// Listing prices are per token; the table stores per million.
	return Price{
		Input:       input * 1_000_000,
		CachedInput: cached * 1_000_000,
		Output:      output * 1_000_000,
	}, true
}
