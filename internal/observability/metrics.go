package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	llmCallTotal    *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmCostTotal    *prometheus.CounterVec
	llmFallbackHops *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec
	toolTimeoutsTotal     *prometheus.CounterVec
	stickyLaneResets      prometheus.Counter

	roundsTotal      *prometheus.CounterVec
	contextTokens    prometheus.Histogram
	contextCapDrops  prometheus.Counter
	budgetSpentRatio prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_call_total",
					Help: "Total model calls by model and status.",
				},
				[]string{"model", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "llm_call_duration_seconds",
					Help:    "Model call latency by model.",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
				},
				[]string{"model"},
			),
			llmCostTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_cost_usd_total",
					Help: "Accumulated estimated USD cost by model.",
				},
				[]string{"model"},
			),
			llmFallbackHops: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_fallback_hops_total",
					Help: "Fallback chain advances by origin model.",
				},
				[]string{"from_model"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution latency by tool.",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Tool handler failures by tool.",
				},
				[]string{"tool"},
			),
			toolTimeoutsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_timeouts_total",
					Help: "Tool executions exceeding their timeout, by tool.",
				},
				[]string{"tool"},
			),
			stickyLaneResets: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sticky_lane_resets_total",
					Help: "Hard resets of the stateful tool lane.",
				},
			),
			roundsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_rounds_total",
					Help: "Completed orchestrator rounds by outcome.",
				},
				[]string{"outcome"},
			),
			contextTokens: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "context_tokens",
					Help:    "Estimated token size of built contexts.",
					Buckets: prometheus.ExponentialBuckets(512, 2, 10),
				},
			),
			contextCapDrops: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "context_cap_dropped_messages_total",
					Help: "Messages dropped by context capping.",
				},
			),
			budgetSpentRatio: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "budget_spent_ratio",
					Help: "Spent fraction of the active task budget.",
				},
			),
		}

		prometheus.MustRegister(
			m.llmCallTotal, m.llmCallDuration, m.llmCostTotal, m.llmFallbackHops,
			m.toolExecutionTotal, m.toolExecutionDuration, m.toolErrorsTotal,
			m.toolTimeoutsTotal, m.stickyLaneResets,
			m.roundsTotal, m.contextTokens, m.contextCapDrops, m.budgetSpentRatio,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration. Safe to call from every
// constructor; registration happens once.
func EnsureRegistered() {
	getMetrics()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordLLMCall records one model call attempt.
func RecordLLMCall(model string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m := getMetrics()
	m.llmCallTotal.WithLabelValues(model, status).Inc()
	m.llmCallDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// AddLLMCost adds estimated cost for a model call.
func AddLLMCost(model string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	getMetrics().llmCostTotal.WithLabelValues(model).Add(costUSD)
}

// RecordFallbackHop records an advance along the fallback chain.
func RecordFallbackHop(fromModel string) {
	getMetrics().llmFallbackHops.WithLabelValues(fromModel).Inc()
}

// RecordToolExecution records one tool call with its terminal status
// ("success", "error", "timeout").
func RecordToolExecution(tool, status string, duration time.Duration) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	switch status {
	case "error":
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	case "timeout":
		m.toolTimeoutsTotal.WithLabelValues(tool).Inc()
	}
}

// RecordStickyLaneReset counts a hard reset of the stateful lane.
func RecordStickyLaneReset() {
	getMetrics().stickyLaneResets.Inc()
}

// RecordRound records one completed round with its outcome
// ("tools", "final", "terminated").
func RecordRound(outcome string) {
	getMetrics().roundsTotal.WithLabelValues(outcome).Inc()
}

// RecordContextBuild records the capped context size and drop count.
func RecordContextBuild(estimatedTokens, droppedMessages int) {
	m := getMetrics()
	m.contextTokens.Observe(float64(estimatedTokens))
	if droppedMessages > 0 {
		m.contextCapDrops.Add(float64(droppedMessages))
	}
}

// SetBudgetSpentRatio publishes the active task's spent budget fraction.
func SetBudgetSpentRatio(ratio float64) {
	getMetrics().budgetSpentRatio.Set(ratio)
}
