package agent

import (
	"strings"
	"testing"

	"github.com/harun/ouro/pkg/llm"
	"github.com/harun/ouro/pkg/memory"
	"github.com/harun/ouro/pkg/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T, cfg BuilderConfig) *ContextBuilder {
	t.Helper()
	store, err := memory.NewStore(memory.StoreConfig{
		DriveRoot: t.TempDir(),
		RepoRoot:  t.TempDir(),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewContextBuilder(store, cfg, zerolog.Nop())
}

func TestSoftCapResolution(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})

	assert.Equal(t, defaultSoftCap, b.SoftCap("anthropic/claude-opus-4.6", TaskUser))
	assert.Equal(t, lowSoftCap, b.SoftCap("groq/llama-3.3-70b", TaskUser))
	assert.Equal(t, lowSoftCap, b.SoftCap("google/gemini-2.5-pro", TaskUser))
	assert.Equal(t, lowSoftCap, b.SoftCap("anthropic/claude-opus-4.6", TaskEvolution),
		"evolution always takes the stricter cap")
	assert.Equal(t, lowSoftCap, b.SoftCap("google/gemini-2.5-pro", TaskEvolution))
}

func TestBuildSystemMessageLayers(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{BasePrompt: "You are a coding agent."})

	messages, _ := b.Build(Task{ID: "t", Type: TaskUser, Content: "hello"}, "gpt-5.2", nil, usage.BudgetState{CeilingUSD: 5, RemainingUSD: 5})
	require.NotEmpty(t, messages)

	system := messages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	require.Len(t, system.Blocks, 3)
	assert.Equal(t, llm.CacheStatic, system.Blocks[0].CacheHint)
	assert.Equal(t, llm.CacheSemiStable, system.Blocks[1].CacheHint)
	assert.Equal(t, llm.CacheDynamic, system.Blocks[2].CacheHint)
	assert.Contains(t, system.Blocks[0].Text, "You are a coding agent.")
	assert.Contains(t, system.Blocks[2].Text, "budget:")

	assert.Equal(t, llm.RoleUser, messages[1].Role)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestBuildHealthSectionOmittedWhenClean(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})
	messages, _ := b.Build(Task{ID: "t"}, "gpt-5.2", nil, usage.BudgetState{})
	assert.NotContains(t, messages[0].Blocks[2].Text, "Health warnings")
}

func TestBuildUserTurnWithImage(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})
	task := Task{ID: "t", Content: "what is this", ImageB64: "aGVsbG8="}

	messages, _ := b.Build(task, "gpt-5.2", nil, usage.BudgetState{})
	user := messages[1]
	require.Len(t, user.Blocks, 2)
	assert.Equal(t, llm.BlockText, user.Blocks[0].Type)
	assert.Equal(t, "what is this", user.Blocks[0].Text)
	assert.Equal(t, llm.BlockImage, user.Blocks[1].Type)
	assert.Equal(t, "image/png", user.Blocks[1].MediaType)
}

func TestBuildEmptyTaskUsesPlaceholder(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})
	messages, _ := b.Build(Task{ID: "t"}, "gpt-5.2", nil, usage.BudgetState{})
	assert.Equal(t, emptyTaskPlaceholder, messages[1].Content)
}

func TestApplyCapKeepsSystemMessage(t *testing.T) {
	system := llm.Message{Role: llm.RoleSystem, Content: strings.Repeat("s", 400)}
	messages := []llm.Message{system}
	for i := 0; i < 10; i++ {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: strings.Repeat("x", 400)})
	}

	capped, report := applyCap(messages, 80)
	require.NotEmpty(t, capped)
	assert.Equal(t, llm.RoleSystem, capped[0].Role)
	assert.Len(t, capped, 1, "system alone already exceeds the cap")
	assert.Equal(t, 10, report.Dropped)
}

func TestApplyCapRecencyBias(t *testing.T) {
	system := llm.Message{Role: llm.RoleSystem, Content: "sys"}
	messages := []llm.Message{system}
	for i := 0; i < 10; i++ {
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: strings.Repeat(string(rune('a'+i)), 200),
		})
	}

	// Budget for the system message plus roughly four turns.
	capped, report := applyCap(messages, 210)
	require.Greater(t, len(capped), 1)
	assert.Equal(t, llm.RoleSystem, capped[0].Role)

	// The kept turns must be the newest suffix, in original order.
	kept := capped[1:]
	wantSuffix := messages[len(messages)-len(kept):]
	assert.Equal(t, wantSuffix, kept)
	assert.LessOrEqual(t, report.ActualTokens, 210)
	assert.Equal(t, len(messages)-1-len(kept), report.Dropped)
}

func TestApplyCapUnderLimitUnchanged(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
	}
	capped, report := applyCap(messages, 1000)
	assert.Equal(t, messages, capped)
	assert.Zero(t, report.Dropped)
}

func TestEvolutionCapScenario(t *testing.T) {
	b := newTestBuilder(t, BuilderConfig{})
	limit := b.SoftCap("google/gemini-2.5-pro", TaskEvolution)
	require.Equal(t, lowSoftCap, limit)

	// A transcript roughly twice the cap.
	var transcript []llm.Message
	for i := 0; i < 40; i++ {
		transcript = append(transcript, llm.Message{
			Role:    llm.RoleUser,
			Content: strings.Repeat("z", limit/5),
		})
	}

	messages, report := b.Build(Task{ID: "t", Type: TaskEvolution, Content: "evolve"},
		"google/gemini-2.5-pro", transcript, usage.BudgetState{})

	assert.Equal(t, limit, report.RequestedCap)
	assert.LessOrEqual(t, report.ActualTokens, limit)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Greater(t, report.Dropped, 0)

	// Newest transcript turn survives.
	last := messages[len(messages)-1]
	assert.Equal(t, transcript[len(transcript)-1].Content, last.Content)
}
