package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for the native Anthropic endpoint.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Call makes an API call to Anthropic Claude.
func (p *AnthropicProvider) Call(ctx context.Context, request Request) (*Response, error) {
	anthropicMessages := []anthropic.MessageParam{}
	var system []anthropic.TextBlockParam

	for _, msg := range request.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, systemBlocks(msg)...)

		case RoleTool:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if text := msg.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, argumentsToMap(tc.Arguments), tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})

		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(userBlocks(msg)...))
		}
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(request.MaxTokens),
	}
	if len(system) > 0 {
		reqParams.System = system
	}
	if request.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(request.Temperature)
	}
	// The API requires the thinking budget to stay below max_tokens.
	if budget := thinkingBudget(request.Effort); budget >= 1024 && budget < reqParams.MaxTokens {
		reqParams.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	if len(request.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range request.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
				},
			}
			if required, ok := tool.InputSchema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, p.wrapError(request.Model, err)
	}

	content := ""
	toolCalls := []ToolCall{}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.JSON.Input.Raw(),
			})
		}
	}

	return &Response{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: Usage{
			PromptTokens:     int(response.Usage.InputTokens),
			CompletionTokens: int(response.Usage.OutputTokens),
			CachedTokens:     int(response.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(response.Usage.CacheCreationInputTokens),
		},
	}, nil
}

func (p *AnthropicProvider) wrapError(model string, err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &APIError{
			Provider:   p.Name(),
			Model:      model,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
			Err:        err,
		}
	}
	return err
}

// systemBlocks converts a system message into cache-tagged text blocks.
// Static and semi-stable segments get an ephemeral cache marker; dynamic
// segments stay uncached.
func systemBlocks(msg Message) []anthropic.TextBlockParam {
	if len(msg.Blocks) == 0 {
		return []anthropic.TextBlockParam{{Text: msg.Content}}
	}

	blocks := make([]anthropic.TextBlockParam, 0, len(msg.Blocks))
	for _, block := range msg.Blocks {
		if block.Type != BlockText || block.Text == "" {
			continue
		}
		param := anthropic.TextBlockParam{Text: block.Text}
		if block.CacheHint == CacheStatic || block.CacheHint == CacheSemiStable {
			param.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		blocks = append(blocks, param)
	}
	return blocks
}

// userBlocks converts a user message into content blocks, inlining any
// base64 image.
func userBlocks(msg Message) []anthropic.ContentBlockParamUnion {
	if len(msg.Blocks) == 0 {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
	for _, block := range msg.Blocks {
		switch block.Type {
		case BlockText:
			blocks = append(blocks, anthropic.NewTextBlock(block.Text))
		case BlockImage:
			mediaType := block.MediaType
			if mediaType == "" {
				mediaType = "image/png"
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, block.ImageB64))
		}
	}
	return blocks
}

// thinkingBudget maps the reasoning-effort hint to an extended-thinking
// token budget. Anthropic rejects budgets below 1024; an unknown or empty
// hint leaves thinking disabled.
func thinkingBudget(effort string) int64 {
	switch effort {
	case "low":
		return 1024
	case "medium":
		return 4096
	case "high":
		return 16384
	default:
		return 0
	}
}

// argumentsToMap defensively parses a raw tool-use argument payload for
// re-submission; malformed payloads are wrapped rather than dropped.
func argumentsToMap(raw string) map[string]interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]interface{}{"raw": raw}
	}
	return parsed
}
