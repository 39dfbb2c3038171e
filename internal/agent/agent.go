// Package agent implements LLM-driven agents that can call tools.
//
// Generate runs a bounded tool-use loop: the conversation and tool specs go
// to the provider, any tool calls in the reply are executed and their
// results fed back, until the model answers without calling a tool.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/llm"
	"github.com/klubi/stratus/internal/tools"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// ErrMaxSteps is returned when the model keeps calling tools past MaxSteps.
var ErrMaxSteps = errors.New("agent: max steps reached without a final answer")

const (
	defaultMaxSteps  = 5
	defaultMaxTokens = 1024
)

type Config struct {
	Name         string
	Instructions string
	Model        string
	Tools        []*tools.Tool
	// MaxSteps bounds model round-trips per Generate call.
	MaxSteps  int
	MaxTokens int
}

type Agent struct {
	Name         string
	Instructions string
	Model        string
	Tools        tools.Set
	MaxSteps     int
	MaxTokens    int

	provider llm.Provider
	logger   *zap.Logger
}

func New(cfg Config, provider llm.Provider, logger *zap.Logger) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		Name:         cfg.Name,
		Instructions: cfg.Instructions,
		Model:        cfg.Model,
		Tools:        tools.NewSet(cfg.Tools...),
		MaxSteps:     cfg.MaxSteps,
		MaxTokens:    cfg.MaxTokens,
		provider:     provider,
		logger:       logger.With(zap.String("agent", cfg.Name)),
	}
}

// ToolInvocation records one tool call made during Generate.
type ToolInvocation struct {
	CallID string          `json:"callId"`
	Tool   string          `json:"tool"`
	Input  json.RawMessage `json:"input"`
	Output any             `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type Response struct {
	Text            string           `json:"text"`
	Steps           int              `json:"steps"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
	Usage           llm.Usage        `json:"usage"`
	// Messages is the full conversation including the final answer.
	Messages []llm.Message `json:"-"`
}

// Generate answers a single user prompt.
func (a *Agent) Generate(ctx context.Context, prompt string) (*Response, error) {
	return a.GenerateMessages(ctx, []llm.Message{llm.UserText(prompt)})
}

// GenerateMessages continues an existing conversation. On ErrMaxSteps the
// partial Response is returned alongside the error.
func (a *Agent) GenerateMessages(ctx context.Context, msgs []llm.Message) (*Response, error) {
	conv := append([]llm.Message(nil), msgs...)
	resp := &Response{}

	for step := 1; step <= a.MaxSteps; step++ {
		completion, err := a.provider.Complete(ctx, llm.Request{
			Model:     a.Model,
			System:    a.Instructions,
			Messages:  conv,
			Tools:     a.Tools.Specs(),
			MaxTokens: a.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s step %d: %w", a.Name, step, err)
		}

		resp.Steps = step
		resp.Usage.InputTokens += completion.Usage.InputTokens
		resp.Usage.OutputTokens += completion.Usage.OutputTokens
		conv = append(conv, completion.Message())

		if len(completion.ToolCalls) == 0 {
			resp.Text = completion.Text
			resp.Messages = conv
			a.logger.Debug("generation finished",
				zap.Int("steps", step),
				zap.Int("tokensIn", resp.Usage.InputTokens),
				zap.Int("tokensOut", resp.Usage.OutputTokens),
			)
			return resp, nil
		}

		results := make([]llm.ToolResult, 0, len(completion.ToolCalls))
		for _, call := range completion.ToolCalls {
			inv, result := a.callTool(ctx, call)
			resp.ToolInvocations = append(resp.ToolInvocations, inv)
			results = append(results, result)
		}
		conv = append(conv, llm.Message{Role: llm.RoleUser, ToolResults: results})
	}

	resp.Messages = conv
	return resp, fmt.Errorf("agent %s: %w (%d)", a.Name, ErrMaxSteps, a.MaxSteps)
}

// callTool executes one call. Failures, including unknown tools, become
// error results for the model rather than Go errors.
func (a *Agent) callTool(ctx context.Context, call llm.ToolCall) (ToolInvocation, llm.ToolResult) {
	inv := ToolInvocation{CallID: call.ID, Tool: call.Name, Input: call.Input}

	fail := func(msg string) (ToolInvocation, llm.ToolResult) {
		inv.Error = msg
		a.logger.Warn("tool call failed", zap.String("tool", call.Name), zap.String("error", msg))
		return inv, llm.ToolResult{CallID: call.ID, Content: msg, IsError: true}
	}

	tool, ok := a.Tools[call.Name]
	if !ok {
		return fail(fmt.Sprintf("tool not found: %s", call.Name))
	}

	out, err := tool.Execute(ctx, call.Input)
	if err != nil {
		return fail(err.Error())
	}
	body, err := json.Marshal(out)
	if err != nil {
		return fail(fmt.Sprintf("encoding %s output: %v", call.Name, err))
	}

	a.logger.Debug("tool call succeeded", zap.String("tool", call.Name), zap.Int("outputLen", len(body)))
	inv.Output = out
	return inv, llm.ToolResult{CallID: call.ID, Content: string(body)}
}

func (a *Agent) Logger() *zap.Logger { return a.logger }

// Info describes the agent; key is its registration name.
func (a *Agent) Info(key string) v1alpha1.AgentInfo {
	return v1alpha1.AgentInfo{
		Key:          key,
		Name:         a.Name,
		Model:        a.Model,
		Instructions: a.Instructions,
		Tools:        a.Tools.IDs(),
	}
}

// APIResponse is the API view of r for the agent registered under key.
func (r *Response) APIResponse(key string) *v1alpha1.GenerateResponse {
	out := &v1alpha1.GenerateResponse{
		Agent:        key,
		Text:         r.Text,
		Steps:        r.Steps,
		InputTokens:  r.Usage.InputTokens,
		OutputTokens: r.Usage.OutputTokens,
	}
	for _, inv := range r.ToolInvocations {
		out.ToolCalls = append(out.ToolCalls, v1alpha1.ToolCallRecord{
			Tool:   inv.Tool,
			Input:  inv.Input,
			Output: inv.Output,
			Error:  inv.Error,
		})
	}
	return out
}
