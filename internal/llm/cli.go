package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CLI wraps the local Claude CLI in print mode. It uses the user's local
// Claude subscription instead of a raw API key. The CLI cannot return
// structured tool calls, so tool specs are ignored and the conversation is
// flattened into a single prompt.
type CLI struct {
	bin    string
	logger *zap.Logger
}

// NewCLI creates a provider that calls the Claude CLI.
// If bin is empty, it defaults to "claude" (resolved via PATH).
func NewCLI(bin string, logger *zap.Logger) *CLI {
	if bin == "" {
		bin = "claude"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLI{bin: bin, logger: logger}
}

func (c *CLI) Name() string { return ProviderCLI }

// cliResponse maps the JSON output of `claude -p --output-format json`.
type cliResponse struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype"`
	IsError    bool    `json:"is_error"`
	Result     string  `json:"result"`
	DurationMs int     `json:"duration_ms"`
	TotalCost  float64 `json:"total_cost_usd"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *CLI) Complete(ctx context.Context, req Request) (*Completion, error) {
	prompt := flattenPrompt(req.Messages)
	args := []string{
		"-p", prompt,
		"--output-format", "json",
	}
	if model := resolveModel(req.Model); model != "" {
		args = append(args, "--model", model)
	}
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}
	if len(req.Tools) > 0 {
		c.logger.Debug("claude CLI provider ignores tool specs", zap.Int("tools", len(req.Tools)))
	}

	c.logger.Debug("executing claude CLI",
		zap.String("bin", c.bin),
		zap.String("model", req.Model),
		zap.Int("promptLen", len(prompt)),
	)

	cmd := exec.CommandContext(ctx, c.bin, args...)
	// Unset CLAUDECODE to allow nested invocation.
	cmd.Env = filterEnv(os.Environ(), "CLAUDECODE")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = err.Error()
		}
		c.logger.Error("claude CLI failed", zap.Error(err), zap.String("stderr", errMsg))
		return nil, fmt.Errorf("claude CLI error: %s", strings.TrimSpace(errMsg))
	}

	var resp cliResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parsing claude CLI output: %w", err)
	}
	if resp.IsError && resp.Subtype != "error_max_turns" {
		return nil, fmt.Errorf("claude CLI returned error: %s", resp.Result)
	}

	c.logger.Debug("claude CLI call completed",
		zap.Int("tokensIn", resp.Usage.InputTokens),
		zap.Int("tokensOut", resp.Usage.OutputTokens),
		zap.Float64("costUSD", resp.TotalCost),
		zap.Int("durationMs", resp.DurationMs),
	)

	return &Completion{
		Text:       resp.Result,
		StopReason: resp.Subtype,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// flattenPrompt renders a multi-turn conversation as one prompt. A single
// user turn is passed through unchanged.
func flattenPrompt(msgs []Message) string {
	if len(msgs) == 1 && msgs[0].Role == RoleUser {
		return msgs[0].Text
	}
	var b strings.Builder
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n\n", m.Role, m.Text)
	}
	return strings.TrimSpace(b.String())
}

// resolveModel maps short model names to Claude CLI --model values.
func resolveModel(model string) string {
	switch model {
	case "claude-sonnet":
		return "sonnet"
	case "claude-haiku":
		return "haiku"
	case "claude-opus":
		return "opus"
	default:
		return model
	}
}

// filterEnv returns a copy of env with the given key removed.
func filterEnv(env []string, key string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}
