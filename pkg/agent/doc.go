// Package agent drives the round loop: build a token-bounded context, call
// the model through the fallback-aware client, dispatch requested tools, and
// check the budget after every round.
//
// Invariants:
// - One task owns one ledger and one message history for its whole run.
// - The system message survives context capping unconditionally.
// - Tool results are appended in request order, never completion order.
// - Usage is recorded after each model call, before the next round begins.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{...})
//	result, _ := runner.Run(ctx, agent.Task{
//		ID:        "task-1",
//		Type:      agent.TaskUser,
//		Content:   "summarize the repo",
//		BudgetUSD: 5,
//	})
//	_ = result
package agent
