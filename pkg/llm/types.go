// Package llm routes logical model identifiers to concrete providers and
// drives model calls through an ordered fallback chain.
package llm

// Role names follow the OpenAI chat convention used across providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// CacheHint marks the expected lifetime of a system-message segment so
// providers can tag it for prompt caching.
type CacheHint string

const (
	CacheStatic     CacheHint = "static"
	CacheSemiStable CacheHint = "semi_stable"
	CacheDynamic    CacheHint = "dynamic"
)

// BlockType discriminates typed content blocks.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
)

// ContentBlock is one typed segment of a multimodal message.
type ContentBlock struct {
	Type      BlockType `json:"type"`
	Text      string    `json:"text,omitempty"`
	ImageB64  string    `json:"image_b64,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	CacheHint CacheHint `json:"cache_hint,omitempty"`
}

// Message is one turn in the conversation. Content carries plain text;
// Blocks, when non-empty, carries typed segments instead.
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Blocks     []ContentBlock `json:"blocks,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// Text returns the message's textual content, flattening blocks.
func (m Message) Text() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	text := ""
	for _, block := range m.Blocks {
		if block.Type == BlockText {
			text += block.Text
		}
	}
	return text
}

// ToolCall is a tool invocation requested by the model. Arguments holds the
// raw payload as emitted; parsing and recovery happen at dispatch time.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSchema describes one tool offered to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request is one model call.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float64
	// Effort is the reasoning-effort hint ("low", "medium", "high");
	// providers that cannot express it ignore it.
	Effort string
}

// Usage is the token breakdown reported for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	CachedTokens     int `json:"cached_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
}

// Response is the assistant turn returned by a provider.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}
