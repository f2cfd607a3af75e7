package modeladapter

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codespaceDrifter/intvrface"
	"github.com/codespaceDrifter/intvrface/contextstore"
)

// Claude drives a turn through Anthropic's Messages API. It never sees a
// cache handle worth persisting — the hosted API exposes none — so Respond
// and Summarize both always return a nil kv.
type Claude struct {
	client           anthropic.Client
	model            string
	maxTokens        int64
	summaryMaxTokens int64
}

// ClaudeOption configures a Claude provider.
type ClaudeOption func(*Claude)

// WithModel overrides the default model ID.
func WithModel(model string) ClaudeOption {
	return func(c *Claude) { c.model = model }
}

// WithMaxTokens overrides the token ceiling for a turn response.
func WithMaxTokens(n int) ClaudeOption {
	return func(c *Claude) { c.maxTokens = int64(n) }
}

// WithSummaryMaxTokens overrides the token ceiling for a summarization call.
func WithSummaryMaxTokens(n int) ClaudeOption {
	return func(c *Claude) { c.summaryMaxTokens = int64(n) }
}

// NewClaude constructs a Claude provider. apiKey may be empty to fall back
// to the SDK's own ANTHROPIC_API_KEY environment lookup.
func NewClaude(apiKey string, opts ...ClaudeOption) *Claude {
	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	c := &Claude{
		client:           anthropic.NewClient(reqOpts...),
		model:            "claude-sonnet-4-5",
		maxTokens:        4096,
		summaryMaxTokens: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Provider = (*Claude)(nil)

// Respond sends the marshaled turn context under the agent's operating
// system prompt and returns the model's raw text, command tags and all.
func (c *Claude) Respond(ctx context.Context, messages []contextstore.Message, _ []byte) (string, []byte, error) {
	return c.call(ctx, messages, systemPrompt, c.maxTokens)
}

// Summarize sends the same context under the summarization system prompt,
// asking the model to compress its own working memory.
func (c *Claude) Summarize(ctx context.Context, messages []contextstore.Message, _ []byte) (string, []byte, error) {
	return c.call(ctx, messages, summarizationPrompt, c.summaryMaxTokens)
}

func (c *Claude) call(ctx context.Context, messages []contextstore.Message, system string, maxTokens int64) (string, []byte, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  toAnthropicMessages(messages),
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", nil, &intvrface.ErrProvider{Provider: "claude", Message: err.Error()}
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil, nil
}

func toAnthropicMessages(messages []contextstore.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case contextstore.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			case contextstore.BlockImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(block.Source.MediaType, block.Source.Data))
			}
		}

		if msg.Role == contextstore.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}
