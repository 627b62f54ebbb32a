// Package usage converts raw token counts into cost and keeps the per-task
// budget ledger consulted by the round orchestrator.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/harun/ouro/internal/observability"
	"github.com/harun/ouro/pkg/events"
	"github.com/harun/ouro/pkg/pricing"
	"github.com/rs/zerolog"
)

// unknownModel is substituted when a usage record arrives without a model id,
// so the event stream never carries an empty model field.
const unknownModel = "unknown"

// Record captures one model call's token and cost breakdown.
type Record struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CachedTokens     int     `json:"cached_tokens"`
	CacheWriteTokens int     `json:"cache_write_tokens"`
	ElapsedSeconds   float64 `json:"elapsed_sec"`
	CostUSD          float64 `json:"cost_usd"`
	// Measured marks cost reported by the provider rather than estimated
	// from the pricing table.
	Measured bool   `json:"measured"`
	Category string `json:"category,omitempty"`
}

// BudgetState is a snapshot of a task's spend against its ceiling.
type BudgetState struct {
	SpentUSD     float64
	RemainingUSD float64
	CeilingUSD   float64
}

// Ledger accumulates usage for a single task. The orchestrator is the only
// writer; snapshots are safe to read from anywhere.
type Ledger struct {
	mu               sync.Mutex
	taskID           string
	ceilingUSD       float64
	spentUSD         float64
	promptTokens     int
	completionTokens int
	cachedTokens     int
	calls            int
}

// NewLedger creates an empty ledger for a task with the given budget ceiling.
func NewLedger(taskID string, ceilingUSD float64) *Ledger {
	return &Ledger{taskID: taskID, ceilingUSD: ceilingUSD}
}

// TaskID returns the owning task identifier.
func (l *Ledger) TaskID() string { return l.taskID }

// Budget returns the current spend snapshot.
func (l *Ledger) Budget() BudgetState {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.ceilingUSD - l.spentUSD
	if remaining < 0 {
		remaining = 0
	}
	return BudgetState{
		SpentUSD:     l.spentUSD,
		RemainingUSD: remaining,
		CeilingUSD:   l.ceilingUSD,
	}
}

// Totals returns accumulated token counts and call count.
func (l *Ledger) Totals() (prompt, completion, cached, calls int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.promptTokens, l.completionTokens, l.cachedTokens, l.calls
}

func (l *Ledger) add(record Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.spentUSD += record.CostUSD
	l.promptTokens += record.PromptTokens
	l.completionTokens += record.CompletionTokens
	l.cachedTokens += record.CachedTokens
	l.calls++
}

// Accountant estimates cost for usage records, emits llm_usage events, and
// feeds the per-task ledger.
type Accountant struct {
	pricing *pricing.Cache
	sink    *events.Sink
	logger  zerolog.Logger
}

// NewAccountant creates an accountant backed by the given pricing cache and
// event sink.
func NewAccountant(cache *pricing.Cache, sink *events.Sink, logger zerolog.Logger) *Accountant {
	if cache == nil {
		cache = pricing.NewCache()
	}
	if sink == nil {
		sink = events.NewDiscardSink()
	}
	return &Accountant{pricing: cache, sink: sink, logger: logger}
}

// EstimateCost exposes the pricing lookup for callers that only need a number.
func (a *Accountant) EstimateCost(ctx context.Context, model string, promptTokens, completionTokens, cachedTokens, cacheWriteTokens int) float64 {
	return a.pricing.EstimateCost(ctx, model, promptTokens, completionTokens, cachedTokens, cacheWriteTokens)
}

// Record finalizes one usage record: fills in estimated cost when the
// provider did not report one, emits the usage event, and accumulates the
// ledger. Returns the finalized record.
func (a *Accountant) Record(ctx context.Context, ledger *Ledger, record Record) Record {
	if record.Model == "" {
		record.Model = unknownModel
	}
	if !record.Measured {
		record.CostUSD = a.pricing.EstimateCost(ctx, record.Model,
			record.PromptTokens, record.CompletionTokens, record.CachedTokens, record.CacheWriteTokens)
	}
	if record.Category == "" {
		record.Category = "task"
	}

	taskID := ""
	if ledger != nil {
		ledger.add(record)
		taskID = ledger.taskID
	}

	a.sink.Emit(events.Event{
		Type:      events.TypeLLMUsage,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Category:  record.Category,
		Fields: map[string]interface{}{
			"model":              record.Model,
			"prompt_tokens":      record.PromptTokens,
			"completion_tokens":  record.CompletionTokens,
			"cached_tokens":      record.CachedTokens,
			"cache_write_tokens": record.CacheWriteTokens,
			"elapsed_sec":        record.ElapsedSeconds,
			"cost_usd":           record.CostUSD,
			"measured":           record.Measured,
		},
	})

	observability.AddLLMCost(record.Model, record.CostUSD)

	a.logger.Debug().
		Str("model", record.Model).
		Int("prompt_tokens", record.PromptTokens).
		Int("completion_tokens", record.CompletionTokens).
		Float64("cost_usd", record.CostUSD).
		Msg("Usage recorded")

	return record
}
