package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/stratus/internal/agent"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func newGenerateCmd() *cobra.Command {
	var (
		agentKey string
		local    bool
	)

	cmd := &cobra.Command{
		Use:     "generate -- <prompt>",
		Aliases: []string{"ask"},
		Short:   "Ask an agent a question",
		Long: `Send a prompt to a registered agent and print its answer.

Everything after "--" is treated as the prompt text.`,
		Example: `  stratus generate -- "What's the weather in London?"
  stratus generate --local -- "Is it windy in Oslo?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")

			var (
				out *v1alpha1.GenerateResponse
				err error
			)
			if local {
				out, err = generateLocal(cmd.Context(), agentKey, prompt)
			} else {
				out, err = apiClient.Generate(cmd.Context(), agentKey, prompt)
			}
			if out == nil {
				return err
			}

			if structured() {
				if encErr := encode(out); encErr != nil {
					return encErr
				}
				return err
			}
			for _, call := range out.ToolCalls {
				if call.Error != "" {
					color.HiBlack("-> %s failed: %s", call.Tool, call.Error)
					continue
				}
				color.HiBlack("-> %s %s", call.Tool, truncate(formatJSON(call.Input), 60))
			}
			fmt.Println(out.Text)
			color.HiBlack("(%d steps, %d input / %d output tokens)", out.Steps, out.InputTokens, out.OutputTokens)
			return err
		},
	}

	cmd.Flags().StringVarP(&agentKey, "agent", "a", agent.WeatherAgentKey, "Agent key")
	cmd.Flags().BoolVar(&local, "local", false, "Run the agent in this process instead of on the server")

	return cmd
}

func generateLocal(ctx context.Context, key, prompt string) (*v1alpha1.GenerateResponse, error) {
	h, flush, err := localHost()
	if err != nil {
		return nil, err
	}
	defer flush()

	a, err := h.Agent(key)
	if err != nil {
		return nil, err
	}
	resp, err := a.Generate(ctx, prompt)
	if err != nil && !errors.Is(err, agent.ErrMaxSteps) {
		return nil, err
	}
	return resp.APIResponse(key), err
}
