package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Provider for OpenAI-compatible chat endpoints.
type OpenAIProvider struct {
	client openai.Client
	name   string
}

// NewOpenAIProvider creates a provider for the native OpenAI endpoint.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		name:   "openai",
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Call makes an API call to an OpenAI-compatible endpoint.
func (p *OpenAIProvider) Call(ctx context.Context, request Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	for _, msg := range request.Messages {
		switch msg.Role {
		case RoleSystem:
			// Chat completions carry no per-segment cache hints; the
			// flattened text preserves segment order.
			messages = append(messages, openai.SystemMessage(msg.Text()))

		case RoleUser:
			messages = append(messages, userMessageParam(msg))

		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := []openai.ChatCompletionMessageToolCall{}
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			assistantMsg := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistantMsg.ToParam())

		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}
	switch request.Effort {
	case "low", "medium", "high":
		params.ReasoningEffort = shared.ReasoningEffort(request.Effort)
	}

	if len(request.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, tool := range request.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(request.Model, err)
	}
	if len(response.Choices) == 0 {
		return nil, &APIError{
			Provider:   p.name,
			Model:      request.Model,
			StatusCode: 502,
			Message:    "no response choices returned",
		}
	}

	choice := response.Choices[0]

	toolCalls := []ToolCall{}
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &Response{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Usage: Usage{
			PromptTokens:     int(response.Usage.PromptTokens),
			CompletionTokens: int(response.Usage.CompletionTokens),
			CachedTokens:     int(response.Usage.PromptTokensDetails.CachedTokens),
		},
	}, nil
}

func (p *OpenAIProvider) wrapError(model string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &APIError{
			Provider:   p.name,
			Model:      model,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
			Err:        err,
		}
	}
	return err
}

func userMessageParam(msg Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.Blocks) == 0 {
		return openai.UserMessage(msg.Content)
	}

	parts := []openai.ChatCompletionContentPartUnionParam{}
	for _, block := range msg.Blocks {
		switch block.Type {
		case BlockText:
			parts = append(parts, openai.TextContentPart(block.Text))
		case BlockImage:
			mediaType := block.MediaType
			if mediaType == "" {
				mediaType = "image/png"
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: fmt.Sprintf("data:%s;base64,%s", mediaType, block.ImageB64),
			}))
		}
	}
	return openai.UserMessage(parts)
}
