package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/ouro/internal/observability"
	"github.com/harun/ouro/pkg/events"
	"github.com/harun/ouro/pkg/history"
	"github.com/harun/ouro/pkg/llm"
	"github.com/harun/ouro/pkg/toolexecutor"
	"github.com/harun/ouro/pkg/usage"
	"github.com/rs/zerolog"
)

// Terminal failure conditions.
var (
	ErrRoundLimitExceeded = errors.New("round limit exceeded without a final answer")
	ErrToolErrorLimit     = errors.New("tool error limit reached")
)

const (
	defaultMaxRounds        = 200
	defaultMaxOutputTokens  = 8192
	defaultToolErrorLimit   = 20
	defaultForceFraction    = 0.5
	defaultWarnFraction     = 0.3
	defaultAdvisoryCadence  = 10
	defaultSelfCheckCadence = 50
)

const budgetExhaustedMessage = "Task stopped: the budget was exhausted before a final answer could be produced."

// Config holds runner configuration. Numeric thresholds fall back to the
// defaults above when zero.
type Config struct {
	Client     *llm.Client
	Engine     *toolexecutor.Engine
	Builder    *ContextBuilder
	Accountant *usage.Accountant
	Sink       *events.Sink
	History    *history.Store
	Logger     zerolog.Logger

	Model           string
	MaxRounds       int
	MaxOutputTokens int
	ToolErrorLimit  int

	// ForceFraction and WarnFraction compare accumulated spend against the
	// remaining budget after each round.
	ForceFraction    float64
	WarnFraction     float64
	AdvisoryCadence  int
	SelfCheckCadence int
}

// Runner drives the round state machine. A runner instance serves a single
// task: the engine's sticky lane is shut down when Run returns.
type Runner struct {
	cfg    Config
	logger zerolog.Logger
}

// NewRunner validates configuration and creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("tool engine is required")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("context builder is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Accountant == nil {
		cfg.Accountant = usage.NewAccountant(nil, nil, cfg.Logger)
	}
	if cfg.Sink == nil {
		cfg.Sink = events.NewDiscardSink()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	if cfg.ToolErrorLimit <= 0 {
		cfg.ToolErrorLimit = defaultToolErrorLimit
	}
	if cfg.ForceFraction <= 0 {
		cfg.ForceFraction = defaultForceFraction
	}
	if cfg.WarnFraction <= 0 {
		cfg.WarnFraction = defaultWarnFraction
	}
	if cfg.AdvisoryCadence <= 0 {
		cfg.AdvisoryCadence = defaultAdvisoryCadence
	}
	if cfg.SelfCheckCadence <= 0 {
		cfg.SelfCheckCadence = defaultSelfCheckCadence
	}

	return &Runner{cfg: cfg, logger: cfg.Logger.With().Str("component", "runner").Logger()}, nil
}

// Run executes a task to termination. The returned error is non-nil only for
// fatal outcomes; budget exhaustion is a controlled termination, not an error.
func (r *Runner) Run(ctx context.Context, task Task) (Result, error) {
	logger := r.logger.With().Str("task_id", task.ID).Str("type", string(task.Type)).Logger()
	ledger := usage.NewLedger(task.ID, task.BudgetUSD)

	defer r.cfg.Engine.Close()

	var transcript []llm.Message
	toolErrors := 0
	forcing := false
	var lastCap CapReport

	r.appendHistory(ctx, task.ID, 0, "user", task.Content)

	for round := 1; ; round++ {
		if round > r.cfg.MaxRounds {
			observability.RecordRound("round_limit")
			logger.Error().Int("rounds", r.cfg.MaxRounds).Msg("Round limit exceeded")
			return Result{
				TaskID:    task.ID,
				Status:    StatusRoundLimit,
				Rounds:    round - 1,
				Budget:    ledger.Budget(),
				CapReport: lastCap,
			}, fmt.Errorf("%w after %d rounds", ErrRoundLimitExceeded, r.cfg.MaxRounds)
		}

		if note := r.selfCheckNote(round, ledger, lastCap); note != "" {
			transcript = append(transcript, llm.Message{Role: llm.RoleSystem, Content: note})
		}

		messages, capReport := r.cfg.Builder.Build(task, r.cfg.Model, transcript, ledger.Budget())
		lastCap = capReport

		start := time.Now()
		callResult, err := r.cfg.Client.Call(ctx, llm.Request{
			Model:     r.cfg.Model,
			Messages:  messages,
			Tools:     r.cfg.Engine.Registry().Schemas(),
			MaxTokens: r.cfg.MaxOutputTokens,
			Effort:    task.Effort,
		})
		if err != nil {
			if forcing {
				// The forced last call failed too; fall back to the
				// generic budget message instead of surfacing the error.
				observability.RecordRound("budget_exhausted")
				return Result{
					TaskID:    task.ID,
					Status:    StatusBudgetExhausted,
					FinalText: budgetExhaustedMessage,
					Rounds:    round,
					Budget:    ledger.Budget(),
					CapReport: capReport,
				}, nil
			}
			observability.RecordRound("fatal_error")
			logger.Error().Err(err).Int("round", round).Msg("Model call failed fatally")
			return Result{
				TaskID:    task.ID,
				Status:    StatusFatalError,
				Rounds:    round,
				Budget:    ledger.Budget(),
				CapReport: capReport,
			}, fmt.Errorf("model call failed on round %d: %w", round, err)
		}

		r.cfg.Accountant.Record(ctx, ledger, usage.Record{
			Model:            callResult.Model,
			PromptTokens:     callResult.Response.Usage.PromptTokens,
			CompletionTokens: callResult.Response.Usage.CompletionTokens,
			CachedTokens:     callResult.Response.Usage.CachedTokens,
			CacheWriteTokens: callResult.Response.Usage.CacheWriteTokens,
			ElapsedSeconds:   time.Since(start).Seconds(),
			Category:         string(task.Type),
		})
		r.emitRoundEvent(task.ID, round, callResult, capReport, ledger)

		assistant := llm.Message{
			Role:      llm.RoleAssistant,
			Content:   callResult.Response.Content,
			ToolCalls: callResult.Response.ToolCalls,
		}
		transcript = append(transcript, assistant)
		r.appendHistory(ctx, task.ID, round, "assistant", callResult.Response.Content)

		if forcing {
			// Terminate after the forced call regardless of whether it
			// asked for more tools.
			observability.RecordRound("budget_exhausted")
			finalText := callResult.Response.Content
			if finalText == "" {
				finalText = budgetExhaustedMessage
			}
			return Result{
				TaskID:    task.ID,
				Status:    StatusBudgetExhausted,
				FinalText: finalText,
				Rounds:    round,
				Budget:    ledger.Budget(),
				CapReport: capReport,
			}, nil
		}

		if len(callResult.Response.ToolCalls) == 0 {
			observability.RecordRound("success")
			logger.Info().Int("round", round).Msg("Task completed")
			return Result{
				TaskID:    task.ID,
				Status:    StatusSuccess,
				FinalText: callResult.Response.Content,
				Rounds:    round,
				Budget:    ledger.Budget(),
				CapReport: capReport,
			}, nil
		}

		results := r.cfg.Engine.Dispatch(ctx, callResult.Response.ToolCalls)
		for _, res := range results {
			transcript = append(transcript, llm.Message{
				Role:       llm.RoleTool,
				Content:    res.Content,
				ToolCallID: res.CallID,
			})
			if res.IsError {
				toolErrors++
			}
		}
		observability.RecordRound("tools")

		if toolErrors >= r.cfg.ToolErrorLimit {
			observability.RecordRound("fatal_error")
			logger.Error().Int("tool_errors", toolErrors).Msg("Too many tool failures, aborting task")
			return Result{
				TaskID:    task.ID,
				Status:    StatusFatalError,
				Rounds:    round,
				Budget:    ledger.Budget(),
				CapReport: capReport,
			}, fmt.Errorf("%w: %d failures", ErrToolErrorLimit, toolErrors)
		}

		if note, force := r.budgetNote(round, ledger); note != "" {
			transcript = append(transcript, llm.Message{Role: llm.RoleSystem, Content: note})
			if force {
				forcing = true
				logger.Warn().
					Float64("spent_usd", ledger.Budget().SpentUSD).
					Float64("remaining_usd", ledger.Budget().RemainingUSD).
					Msg("Budget nearly exhausted, forcing final answer")
			}
		}
	}
}

// budgetNote evaluates the post-round budget check. It returns an advisory
// or forcing system message, and whether it is the forcing one.
func (r *Runner) budgetNote(round int, ledger *usage.Ledger) (string, bool) {
	budget := ledger.Budget()
	if budget.CeilingUSD <= 0 {
		return "", false
	}
	observability.SetBudgetSpentRatio(spentRatio(budget))

	if budget.SpentUSD > r.cfg.ForceFraction*budget.RemainingUSD {
		return fmt.Sprintf(
			"BUDGET CRITICAL: $%.4f spent, only $%.4f remains. Produce your final answer NOW. This is the last model call for this task.",
			budget.SpentUSD, budget.RemainingUSD), true
	}

	if budget.SpentUSD > r.cfg.WarnFraction*budget.RemainingUSD && round%r.cfg.AdvisoryCadence == 0 {
		return fmt.Sprintf(
			"Budget advisory: $%.4f spent of $%.2f. Consider wrapping up soon.",
			budget.SpentUSD, budget.CeilingUSD), false
	}

	return "", false
}

// selfCheckNote returns the periodic reflective message, empty outside the
// cadence. Round 1 is always skipped.
func (r *Runner) selfCheckNote(round int, ledger *usage.Ledger, lastCap CapReport) string {
	if round == 1 || round%r.cfg.SelfCheckCadence != 0 {
		return ""
	}
	budget := ledger.Budget()
	return fmt.Sprintf(
		"Self-check (round %d): context at %d tokens of a %d cap, $%.4f spent so far. Review whether you are still making progress toward the task goal.",
		round, lastCap.ActualTokens, lastCap.RequestedCap, budget.SpentUSD)
}

func (r *Runner) emitRoundEvent(taskID string, round int, callResult *llm.CallResult, capReport CapReport, ledger *usage.Ledger) {
	budget := ledger.Budget()
	r.cfg.Sink.Emit(events.Event{
		Type:   events.TypeRound,
		TaskID: taskID,
		Fields: map[string]interface{}{
			"round":         round,
			"model":         callResult.Model,
			"tool_calls":    len(callResult.Response.ToolCalls),
			"requested_cap": capReport.RequestedCap,
			"actual_tokens": capReport.ActualTokens,
			"dropped":       capReport.Dropped,
			"spent_usd":     budget.SpentUSD,
			"remaining_usd": budget.RemainingUSD,
		},
	})
}

func (r *Runner) appendHistory(ctx context.Context, taskID string, round int, role, content string) {
	if r.cfg.History == nil || content == "" {
		return
	}
	if err := r.cfg.History.Append(ctx, taskID, round, role, content); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to persist history turn")
	}
}

func spentRatio(budget usage.BudgetState) float64 {
	if budget.CeilingUSD <= 0 {
		return 0
	}
	return budget.SpentUSD / budget.CeilingUSD
}
