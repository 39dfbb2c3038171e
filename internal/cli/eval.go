package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/klubi/stratus/internal/agent"
	"github.com/klubi/stratus/internal/evals"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func newEvalCmd() *cobra.Command {
	var (
		agentKey string
		metric   string
		local    bool
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "eval <input>...",
		Short: "Score an agent's answers with an eval metric",
		Long: `Run each input through an agent and score the answer. On the server the
results are stored and can be listed with 'stratus get evals'.`,
		Example: `  stratus eval London
  stratus eval London Paris Tokyo --local --parallel 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				scores []v1alpha1.EvalResultStatus
				err    error
			)
			if local {
				scores, err = evalLocal(cmd.Context(), agentKey, metric, args, parallel)
			} else {
				scores, err = evalRemote(cmd.Context(), agentKey, metric, args)
			}
			if err != nil {
				return err
			}

			rows := make([]evalRow, len(args))
			for i := range args {
				rows[i] = evalRow{Input: args[i], Score: scores[i].Score}
			}
			return printList(rows, []string{"INPUT", "SCORE"}, func(r evalRow) []string {
				return []string{truncate(r.Input, 40), strconv.FormatFloat(r.Score, 'f', 3, 64)}
			})
		},
	}

	cmd.Flags().StringVarP(&agentKey, "agent", "a", agent.WeatherAgentKey, "Agent key")
	cmd.Flags().StringVarP(&metric, "metric", "m", evals.ToneConsistencyName, "Metric name")
	cmd.Flags().BoolVar(&local, "local", false, "Evaluate in this process instead of on the server")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "With --local, inputs evaluated concurrently")

	return cmd
}

type evalRow struct {
	Input string  `json:"input" yaml:"input"`
	Score float64 `json:"score" yaml:"score"`
}

func evalRemote(ctx context.Context, agentKey, metric string, inputs []string) ([]v1alpha1.EvalResultStatus, error) {
	out := make([]v1alpha1.EvalResultStatus, len(inputs))
	for i, in := range inputs {
		res, err := apiClient.Evaluate(ctx, agentKey, v1alpha1.EvalRequest{Input: in, Metric: metric})
		if err != nil {
			return nil, fmt.Errorf("evaluating %q: %w", in, err)
		}
		out[i] = *res
	}
	return out, nil
}

func evalLocal(ctx context.Context, agentKey, metric string, inputs []string, parallel int) ([]v1alpha1.EvalResultStatus, error) {
	h, flush, err := localHost()
	if err != nil {
		return nil, err
	}
	defer flush()

	a, err := h.Agent(agentKey)
	if err != nil {
		return nil, err
	}
	m, err := evals.NewMetric(metric)
	if err != nil {
		return nil, err
	}
	results, err := evals.EvaluateAll(ctx, a, inputs, m, parallel)
	if err != nil {
		return nil, err
	}
	out := make([]v1alpha1.EvalResultStatus, len(results))
	for i, r := range results {
		out[i] = v1alpha1.EvalResultStatus{Score: r.Score, Info: r.Info}
	}
	return out, nil
}
