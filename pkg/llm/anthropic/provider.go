package anthropic

import (
	"context"
	"fmt"
	"time"

	"analytics-chat-be/pkg/llm"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicProvider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

var _ llm.LLMProvider = &AnthropicProvider{}

// NewAnthropicProvider falls back to ANTHROPIC_API_KEY from the environment when apiKey is empty.
func NewAnthropicProvider(apiKey, model string, maxTokens int, timeout time.Duration) *AnthropicProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

func (p *AnthropicProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	opts := llm.Apply(llm.Options{}, options...)

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
	}
	if opts.Model != "" {
		params.Model = anthropic.Model(opts.Model)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = int64(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	// The Messages API takes system instructions out of band.
	if opts.SystemPrompt != "" {
		params.System = append(params.System, anthropic.TextBlockParam{Type: "text", Text: opts.SystemPrompt})
	}
	for _, msg := range history {
		switch msg.Role {
		case llm.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Type: "text", Text: msg.Content})
		case llm.RoleAssistant, "model":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(params.Messages) == 0 {
		return "", fmt.Errorf("anthropic: at least one user or assistant message is required")
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("no text content in response")
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}
