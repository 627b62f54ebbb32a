package agent

import (
	"github.com/harun/ouro/pkg/llm"
	"github.com/harun/ouro/pkg/usage"
)

// TaskType distinguishes externally requested work from self-directed work.
type TaskType string

const (
	TaskUser      TaskType = "user"
	TaskEvolution TaskType = "evolution"
)

// Task is the unit of work handed to the runner. Immutable for the duration
// of the run except for its accumulated usage ledger.
type Task struct {
	ID        string
	Type      TaskType
	Content   string
	ImageB64  string
	MediaType string
	Effort    string
	BudgetUSD float64
}

// Status is the terminal outcome of a task run.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusBudgetExhausted Status = "budget_exhausted"
	StatusRoundLimit      Status = "round_limit"
	StatusFatalError      Status = "fatal_error"
)

// Result is what a completed (or terminated) task run returns.
type Result struct {
	TaskID    string
	Status    Status
	FinalText string
	Rounds    int
	Budget    usage.BudgetState
	CapReport CapReport
}

// CapReport describes one round's context capping outcome.
type CapReport struct {
	RequestedCap int
	ActualTokens int
	Dropped      int
}

// EstimateTokens approximates token count from character length. Good
// enough for soft-cap trimming; the provider reports exact counts after
// the fact.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EstimateMessageTokens sums the estimate across a message list, including
// block content.
func EstimateMessageTokens(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += estimateMessage(msg)
	}
	return total
}

func estimateMessage(msg llm.Message) int {
	total := EstimateTokens(msg.Content)
	for _, block := range msg.Blocks {
		total += EstimateTokens(block.Text)
		// Images count against the cap too; base64 length is a rough proxy.
		total += EstimateTokens(block.ImageB64)
	}
	for _, call := range msg.ToolCalls {
		total += EstimateTokens(call.Name) + EstimateTokens(call.Arguments)
	}
	return total
}
