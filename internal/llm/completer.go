// Package llm implements the observation, action and choice capabilities on
// top of a live page and a chat-completion model (Claude or OpenAI).
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"surfacemap-mcp-server/internal/config"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

// ErrNoModel is returned by operations that need a model when none is configured.
var ErrNoModel = errors.New("no language model configured")

const defaultMaxTokens = 1024

// Completer sends one system+user exchange and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// NewCompleter builds the completer named by cfg.Provider. Provider "none"
// returns a nil completer: the oracles then answer from page probes only.
// API keys are read through lookup (usually os.LookupEnv).
func NewCompleter(cfg config.OracleConfig, lookup func(string) (string, bool)) (Completer, error) {
	key := func(names ...string) string {
		for _, n := range names {
			if v, ok := lookup(n); ok && v != "" {
				return v
			}
		}
		return ""
	}

	switch strings.ToLower(cfg.Provider) {
	case "none", "off":
		return nil, nil
	case "", "claude", "anthropic":
		apiKey := key("SURFACEMAP_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("SURFACEMAP_ANTHROPIC_KEY or ANTHROPIC_API_KEY environment variable required")
		}
		return NewClaudeCompleter(apiKey, cfg.Model, cfg.GetMaxTokens()), nil
	case "openai", "gpt":
		apiKey := key("SURFACEMAP_OPENAI_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("SURFACEMAP_OPENAI_KEY or OPENAI_API_KEY environment variable required")
		}
		return NewOpenAICompleter(openai.DefaultConfig(apiKey), cfg.Model, cfg.GetMaxTokens()), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai, none)", cfg.Provider)
	}
}

// ClaudeCompleter talks to Anthropic's Messages API.
type ClaudeCompleter struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewClaudeCompleter creates a Claude completer. Extra request options are
// passed to the client (base URL, retries).
func NewClaudeCompleter(apiKey, model string, maxTokens int, opts ...option.RequestOption) *ClaudeCompleter {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ClaudeCompleter{client: &client, model: model, maxTokens: maxTokens}
}

// Complete implements Completer.
func (c *ClaudeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Claude API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", errors.New("empty response from Claude")
}

// OpenAICompleter talks to the OpenAI chat completion API.
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAICompleter creates an OpenAI completer from a client config.
func NewOpenAICompleter(cfg openai.ClientConfig, model string, maxTokens int) *OpenAICompleter {
	if model == "" {
		model = "gpt-4o"
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: model, maxTokens: maxTokens}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
