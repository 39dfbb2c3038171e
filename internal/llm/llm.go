// Package llm abstracts the chat-completion backends an agent can talk to.
//
// A Provider takes a provider-neutral Request (system prompt, conversation,
// tool specs) and returns a Completion carrying the model's text and any
// tool calls it wants executed. Conversions to each vendor's wire types live
// in the per-provider files.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/config"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Provider names accepted by NewProvider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderCLI       = "cli"
	ProviderStatic    = "static"
)

var ErrMissingAPIKey = errors.New("missing API key")

// ToolSpec advertises a callable tool. InputSchema is a JSON Schema object.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a model request to run a tool with raw JSON input.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult answers a ToolCall. IsError marks content as a failure report.
type ToolResult struct {
	CallID  string `json:"callId"`
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
}

// Message is one conversation turn. Assistant turns may carry ToolCalls;
// user turns may carry ToolResults answering the previous assistant turn.
type Message struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// UserText is shorthand for a plain user turn.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type Completion struct {
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	Usage      Usage      `json:"usage"`
	StopReason string     `json:"stopReason,omitempty"`
}

// Message converts the completion into the assistant turn to append to a
// conversation.
func (c *Completion) Message() Message {
	return Message{Role: RoleAssistant, Text: c.Text, ToolCalls: c.ToolCalls}
}

// Provider sends one request to a model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider: %w (set ANTHROPIC_API_KEY)", ErrMissingAPIKey)
		}
		return NewAnthropic(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Timeout: cfg.Timeout}), nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("openai provider: %w (set OPENAI_API_KEY)", ErrMissingAPIKey)
		}
		return NewOpenAI(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}), nil
	case ProviderCLI:
		return NewCLI(cfg.ClaudeCLI, logger), nil
	case ProviderStatic:
		return NewEcho(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// lastUserText returns the text of the most recent user turn.
func lastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser && msgs[i].Text != "" {
			return msgs[i].Text
		}
	}
	return ""
}
