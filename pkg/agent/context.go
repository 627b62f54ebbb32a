package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/harun/ouro/internal/observability"
	"github.com/harun/ouro/pkg/llm"
	"github.com/harun/ouro/pkg/memory"
	"github.com/harun/ouro/pkg/usage"
	"github.com/rs/zerolog"
)

const (
	defaultSoftCap = 8192
	lowSoftCap     = 4096

	defaultBibleMaxChars   = 24000
	defaultSectionMaxChars = 8000

	emptyTaskPlaceholder = "(no task content provided)"
)

// lowThroughputPrefixes are provider prefixes that get the smaller soft cap.
var lowThroughputPrefixes = []string{"groq/", "google/"}

// BuilderConfig tunes context assembly. Zero values take the defaults above.
type BuilderConfig struct {
	BasePrompt      string
	BibleMaxChars   int
	SectionMaxChars int
	SoftCapDefault  int
	SoftCapLow      int
	LowPrefixes     []string

	// RepoHead reports the repository revision for the dynamic layer.
	// Optional.
	RepoHead func() string
	Now      func() time.Time
}

// ContextBuilder assembles the per-round message list from the memory store
// and the task, then trims it to the model's soft token cap.
type ContextBuilder struct {
	store  *memory.Store
	cfg    BuilderConfig
	logger zerolog.Logger
}

// NewContextBuilder creates a builder over the given memory store.
func NewContextBuilder(store *memory.Store, cfg BuilderConfig, logger zerolog.Logger) *ContextBuilder {
	if cfg.BibleMaxChars <= 0 {
		cfg.BibleMaxChars = defaultBibleMaxChars
	}
	if cfg.SectionMaxChars <= 0 {
		cfg.SectionMaxChars = defaultSectionMaxChars
	}
	if cfg.SoftCapDefault <= 0 {
		cfg.SoftCapDefault = defaultSoftCap
	}
	if cfg.SoftCapLow <= 0 {
		cfg.SoftCapLow = lowSoftCap
	}
	if len(cfg.LowPrefixes) == 0 {
		cfg.LowPrefixes = lowThroughputPrefixes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ContextBuilder{store: store, cfg: cfg, logger: logger}
}

// SoftCap resolves the token cap for a model and task type. Low-throughput
// providers get the small cap; evolution tasks always take the stricter of
// the two.
func (b *ContextBuilder) SoftCap(model string, taskType TaskType) int {
	limit := b.cfg.SoftCapDefault
	for _, prefix := range b.cfg.LowPrefixes {
		if strings.HasPrefix(model, prefix) {
			limit = b.cfg.SoftCapLow
			break
		}
	}
	if taskType == TaskEvolution && b.cfg.SoftCapLow < limit {
		limit = b.cfg.SoftCapLow
	}
	return limit
}

// Build produces the round's message list: system message (three cache-tagged
// layers), the task's user turn, the accumulated transcript, capped to the
// model's soft limit.
func (b *ContextBuilder) Build(task Task, model string, transcript []llm.Message, budget usage.BudgetState) ([]llm.Message, CapReport) {
	system := llm.Message{
		Role: llm.RoleSystem,
		Blocks: []llm.ContentBlock{
			{Type: llm.BlockText, Text: b.staticLayer(), CacheHint: llm.CacheStatic},
			{Type: llm.BlockText, Text: b.semiStableLayer(), CacheHint: llm.CacheSemiStable},
			{Type: llm.BlockText, Text: b.dynamicLayer(budget), CacheHint: llm.CacheDynamic},
		},
	}

	messages := []llm.Message{system, b.userTurn(task)}
	messages = append(messages, transcript...)

	capTokens := b.SoftCap(model, task.Type)
	capped, report := applyCap(messages, capTokens)

	observability.RecordContextBuild(report.ActualTokens, report.Dropped)
	if report.Dropped > 0 {
		b.logger.Info().
			Int("cap", report.RequestedCap).
			Int("tokens", report.ActualTokens).
			Int("dropped", report.Dropped).
			Msg("Context trimmed to soft cap")
	}
	return capped, report
}

func (b *ContextBuilder) staticLayer() string {
	var sb strings.Builder
	if b.cfg.BasePrompt != "" {
		sb.WriteString(b.cfg.BasePrompt)
		sb.WriteString("\n\n")
	}
	sb.WriteString("# Reference\n")
	sb.WriteString(clip(b.store.Bible(), b.cfg.BibleMaxChars))
	return sb.String()
}

func (b *ContextBuilder) semiStableLayer() string {
	var sb strings.Builder
	sb.WriteString("# Scratchpad\n")
	sb.WriteString(clip(b.store.Scratchpad(), b.cfg.SectionMaxChars))
	sb.WriteString("\n\n# Identity\n")
	sb.WriteString(clip(b.store.Identity(), b.cfg.SectionMaxChars))
	sb.WriteString("\n\n# Knowledge index\n")
	sb.WriteString(clip(b.store.KnowledgeSummaries(), b.cfg.SectionMaxChars))
	return sb.String()
}

func (b *ContextBuilder) dynamicLayer(budget usage.BudgetState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Runtime\ntime: %s\n", b.cfg.Now().UTC().Format(time.RFC3339))
	if b.cfg.RepoHead != nil {
		if head := b.cfg.RepoHead(); head != "" {
			fmt.Fprintf(&sb, "repo head: %s\n", head)
		}
	}
	fmt.Fprintf(&sb, "budget: $%.4f spent of $%.2f, $%.4f remaining\n",
		budget.SpentUSD, budget.CeilingUSD, budget.RemainingUSD)

	sb.WriteString("\n# State\n")
	sb.WriteString(b.store.StateSnapshot())

	// Omitted entirely when there is nothing to report.
	if findings := b.store.HealthFindings(); len(findings) > 0 {
		sb.WriteString("\n\n# Health warnings\n")
		for _, finding := range findings {
			sb.WriteString("- " + finding + "\n")
		}
	}
	return sb.String()
}

func (b *ContextBuilder) userTurn(task Task) llm.Message {
	if task.ImageB64 != "" {
		caption := task.Content
		if caption == "" {
			caption = "(see attached image)"
		}
		mediaType := task.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		return llm.Message{
			Role: llm.RoleUser,
			Blocks: []llm.ContentBlock{
				{Type: llm.BlockText, Text: caption},
				{Type: llm.BlockImage, ImageB64: task.ImageB64, MediaType: mediaType},
			},
		}
	}

	content := task.Content
	if content == "" {
		content = emptyTaskPlaceholder
	}
	return llm.Message{Role: llm.RoleUser, Content: content}
}

// applyCap trims a message list to the token cap. The first message (system)
// is always kept; the rest are re-added newest-first while under the cap, so
// capping drops the oldest turns first.
func applyCap(messages []llm.Message, capTokens int) ([]llm.Message, CapReport) {
	total := EstimateMessageTokens(messages)
	report := CapReport{RequestedCap: capTokens, ActualTokens: total}
	if total <= capTokens || len(messages) == 0 {
		return messages, report
	}

	system := messages[0]
	rest := messages[1:]
	running := estimateMessage(system)

	var keptReversed []llm.Message
	for i := len(rest) - 1; i >= 0; i-- {
		cost := estimateMessage(rest[i])
		if running+cost > capTokens {
			break
		}
		running += cost
		keptReversed = append(keptReversed, rest[i])
	}

	out := make([]llm.Message, 0, len(keptReversed)+1)
	out = append(out, system)
	for i := len(keptReversed) - 1; i >= 0; i-- {
		out = append(out, keptReversed[i])
	}

	report.ActualTokens = running
	report.Dropped = len(rest) - len(keptReversed)
	return out, report
}

func clip(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "\n... (clipped)"
}
