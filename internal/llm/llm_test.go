package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/config"
)

type fakeTransport struct {
	status int
	body   []byte
	got    []byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.got, _ = io.ReadAll(req.Body)
	_ = req.Body.Close()
	resp := &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewReader(f.body)),
		Header:     make(http.Header),
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

var weatherTool = ToolSpec{
	Name:        "get-weather",
	Description: "Get current weather for a location",
	InputSchema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"location": map[string]any{"type": "string"}},
		"required":   []string{"location"},
	},
}

func TestAnthropicComplete(t *testing.T) {
	fake := &fakeTransport{status: 200, body: []byte(`{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
		"content": [
			{"type": "text", "text": "Checking."},
			{"type": "tool_use", "id": "tu_1", "name": "get-weather", "input": {"location": "London"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 12, "output_tokens": 7}
	}`)}

	p := NewAnthropic(AnthropicConfig{
		APIKey:  "test-key",
		Options: []option.RequestOption{option.WithHTTPClient(&http.Client{Transport: fake})},
	})

	out, err := p.Complete(context.Background(), Request{
		Model:  "claude-test",
		System: "You are a weather assistant.",
		Messages: []Message{
			UserText("weather in London?"),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "tu_0", Name: "get-weather", Input: json.RawMessage(`{"location":"Paris"}`)}}},
			{Role: RoleUser, ToolResults: []ToolResult{{CallID: "tu_0", Content: `{"temperature":20}`}}},
		},
		Tools: []ToolSpec{weatherTool},
	})
	require.NoError(t, err)

	assert.Equal(t, "Checking.", out.Text)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "tu_1", out.ToolCalls[0].ID)
	assert.Equal(t, "get-weather", out.ToolCalls[0].Name)
	assert.JSONEq(t, `{"location":"London"}`, string(out.ToolCalls[0].Input))
	assert.Equal(t, 12, out.Usage.InputTokens)
	assert.Equal(t, "tool_use", out.StopReason)

	var sent struct {
		MaxTokens int `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type      string `json:"type"`
				ToolUseID string `json:"tool_use_id"`
			} `json:"content"`
		} `json:"messages"`
		Tools []struct {
			Name        string `json:"name"`
			InputSchema struct {
				Required []string `json:"required"`
			} `json:"input_schema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(fake.got, &sent))
	assert.Equal(t, defaultMaxTokens, sent.MaxTokens)
	require.Len(t, sent.System, 1)
	assert.Equal(t, "You are a weather assistant.", sent.System[0].Text)
	require.Len(t, sent.Messages, 3)
	assert.Equal(t, "assistant", sent.Messages[1].Role)
	assert.Equal(t, "tool_use", sent.Messages[1].Content[0].Type)
	assert.Equal(t, "tool_result", sent.Messages[2].Content[0].Type)
	assert.Equal(t, "tu_0", sent.Messages[2].Content[0].ToolUseID)
	require.Len(t, sent.Tools, 1)
	assert.Equal(t, []string{"location"}, sent.Tools[0].InputSchema.Required)
}

func TestAnthropicError(t *testing.T) {
	fake := &fakeTransport{status: 400, body: []byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)}
	p := NewAnthropic(AnthropicConfig{
		APIKey:  "test-key",
		Options: []option.RequestOption{option.WithHTTPClient(&http.Client{Transport: fake}), option.WithMaxRetries(0)},
	})

	_, err := p.Complete(context.Background(), Request{Model: "m", Messages: []Message{UserText("hi")}})
	require.Error(t, err)
}

func TestOpenAIComplete(t *testing.T) {
	var sent map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-test",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {"role": "assistant", "content": "", "tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "get-weather", "arguments": "{\"location\":\"London\"}"}}
				]}
			}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := p.Complete(context.Background(), Request{
		Model:  "gpt-test",
		System: "sys",
		Messages: []Message{
			UserText("hi"),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c0", Name: "get-weather", Input: json.RawMessage(`{}`)}}},
			{Role: RoleUser, ToolResults: []ToolResult{{CallID: "c0", Content: "sunny"}}},
		},
		Tools: []ToolSpec{weatherTool},
	})
	require.NoError(t, err)

	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.JSONEq(t, `{"location":"London"}`, string(out.ToolCalls[0].Input))
	assert.Equal(t, 9, out.Usage.InputTokens)
	assert.Equal(t, "tool_calls", out.StopReason)

	msgs := sent["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "tool", msgs[3].(map[string]any)["role"])
	assert.Equal(t, "c0", msgs[3].(map[string]any)["tool_call_id"])
	assert.Len(t, sent["tools"], 1)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	p := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0755))
	return p
}

func TestCLIComplete(t *testing.T) {
	bin := writeScript(t, `echo '{"type":"result","subtype":"success","is_error":false,"result":"Sunny all week.","usage":{"input_tokens":3,"output_tokens":4}}'`)

	p := NewCLI(bin, zap.NewNop())
	out, err := p.Complete(context.Background(), Request{Model: "claude-sonnet", Messages: []Message{UserText("plan")}})
	require.NoError(t, err)
	assert.Equal(t, "Sunny all week.", out.Text)
	assert.Equal(t, 4, out.Usage.OutputTokens)
}

func TestCLIFailure(t *testing.T) {
	bin := writeScript(t, "echo 'not logged in' >&2\nexit 1\n")

	_, err := NewCLI(bin, nil).Complete(context.Background(), Request{Messages: []Message{UserText("x")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestFlattenPrompt(t *testing.T) {
	assert.Equal(t, "solo", flattenPrompt([]Message{UserText("solo")}))
	got := flattenPrompt([]Message{UserText("a"), {Role: RoleAssistant, Text: "b"}, UserText("c")})
	assert.Equal(t, "user: a\n\nassistant: b\n\nuser: c", got)
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "sonnet", resolveModel("claude-sonnet"))
	assert.Equal(t, "claude-sonnet-4-20250514", resolveModel("claude-sonnet-4-20250514"))
}

func TestStatic(t *testing.T) {
	p := NewStatic(Completion{Text: "one"}, Completion{Text: "two"})

	first, err := p.Complete(context.Background(), Request{Messages: []Message{UserText("a")}})
	require.NoError(t, err)
	second, err := p.Complete(context.Background(), Request{})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), Request{})

	assert.Equal(t, "one", first.Text)
	assert.Equal(t, "two", second.Text)
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Len(t, p.Requests(), 3)
}

func TestEcho(t *testing.T) {
	out, err := NewEcho().Complete(context.Background(), Request{Messages: []Message{UserText("London")}})
	require.NoError(t, err)
	assert.Equal(t, "You said: London", out.Text)
}

func TestEchoKeepsNoHistory(t *testing.T) {
	p := NewEcho()
	for i := 0; i < 100; i++ {
		_, err := p.Complete(context.Background(), Request{Messages: []Message{UserText("again")}})
		require.NoError(t, err)
	}
	assert.Empty(t, p.Requests())
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		want    string
		wantErr error
	}{
		{"anthropic", config.LLMConfig{Provider: "anthropic", AnthropicAPIKey: "k"}, ProviderAnthropic, nil},
		{"anthropic no key", config.LLMConfig{Provider: "anthropic"}, "", ErrMissingAPIKey},
		{"openai", config.LLMConfig{Provider: "openai", OpenAIAPIKey: "k"}, ProviderOpenAI, nil},
		{"openai no key", config.LLMConfig{Provider: "openai"}, "", ErrMissingAPIKey},
		{"cli", config.LLMConfig{Provider: "cli"}, ProviderCLI, nil},
		{"static", config.LLMConfig{Provider: "static"}, ProviderStatic, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, zap.NewNop())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}

	_, err := NewProvider(config.LLMConfig{Provider: "bard"}, nil)
	assert.Error(t, err)
}
