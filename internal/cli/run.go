package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func newRunCmd() *cobra.Command {
	var (
		sets    []string
		data    string
		local   bool
		async   bool
		wait    bool
		timeout int
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow",
		Long: `Start a workflow run and print each step's result.

Trigger data comes from --data (a JSON object) and --set key=value pairs,
which win over --data. With --local the workflow runs in this process
instead of on the server. With --async the run is queued for the server's
run controller; add --wait to poll until it finishes.`,
		Example: `  stratus run weatherWorkflow --set city=Tulsa
  stratus run sweAgentWorkflow --set path=internal --set includeHidden=true
  stratus run weatherWorkflow --local --data '{"city":"London"}'
  stratus run weatherWorkflow --set city=Oslo --async --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, err := triggerData(data, sets)
			if err != nil {
				return err
			}
			req := v1alpha1.RunRequest{TriggerData: trigger, TimeoutSeconds: timeout}
			ctx := cmd.Context()

			switch {
			case local:
				return runLocal(ctx, args[0], req)
			case async:
				return runAsync(ctx, args[0], req, wait)
			default:
				res, err := apiClient.RunWorkflow(ctx, args[0], req)
				if err != nil {
					return err
				}
				return printRunResult(ctx, res)
			}
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "Trigger field as key=value (repeatable)")
	cmd.Flags().StringVar(&data, "data", "", "Trigger data as a JSON object")
	cmd.Flags().BoolVar(&local, "local", false, "Run in this process instead of on the server")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the run on the server and return")
	cmd.Flags().BoolVar(&wait, "wait", false, "With --async, poll until the run finishes")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Run timeout in seconds (0 for none)")

	return cmd
}

func runLocal(ctx context.Context, key string, req v1alpha1.RunRequest) error {
	h, flush, err := localHost()
	if err != nil {
		return err
	}
	defer flush()

	wf, err := h.Workflow(key)
	if err != nil {
		return err
	}
	run := wf.CreateRun()
	run.Timeout = time.Duration(req.TimeoutSeconds) * time.Second

	res, runErr := run.Start(ctx, req.TriggerData)
	if res == nil {
		return runErr
	}
	info := wf.Describe()
	printSteps(res.Response(wf.Key()), &info)
	return runErr
}

func runAsync(ctx context.Context, key string, req v1alpha1.RunRequest, wait bool) error {
	rec, err := apiClient.SubmitRun(ctx, key, req)
	if err != nil {
		return err
	}
	fmt.Printf("workflowrun/%s submitted\n", rec.Metadata.Name)
	if !wait {
		return nil
	}

	final, err := apiClient.WaitForRun(ctx, key, rec.Metadata.Name, 2*time.Second)
	if err != nil {
		return err
	}
	return printRunResult(ctx, runResponse(final))
}

// printRunResult prints step results in workflow order, as reported by the
// server, and returns an error when the run failed.
func printRunResult(ctx context.Context, res *v1alpha1.RunResponse) error {
	if structured() {
		if err := encode(res); err != nil {
			return err
		}
		return runError(res)
	}
	info, err := apiClient.GetWorkflow(ctx, res.Workflow)
	if err != nil {
		info = nil
	}
	printSteps(res, info)
	return runError(res)
}

func printSteps(res *v1alpha1.RunResponse, info *v1alpha1.WorkflowInfo) {
	if structured() {
		_ = encode(res)
		return
	}

	for _, id := range stepOrder(res, info) {
		st := res.Results[id]
		fmt.Println()
		color.New(color.Bold).Printf("%s ", id)
		fmt.Println(colorPhase(string(st.Status)))
		fmt.Println(strings.Repeat("-", 60))
		switch {
		case st.Error != "":
			color.Red(st.Error)
		case st.Output != nil:
			fmt.Println(formatOutput(st.Output))
		}
	}

	fmt.Println()
	if res.Status == v1alpha1.RunSucceeded {
		color.New(color.FgGreen, color.Bold).Printf("Run %s succeeded\n", res.RunID)
	} else {
		color.New(color.FgRed, color.Bold).Printf("Run %s %s\n", res.RunID, strings.ToLower(string(res.Status)))
	}
}

func runError(res *v1alpha1.RunResponse) error {
	if res.Status == v1alpha1.RunFailed {
		if res.Error != "" {
			return fmt.Errorf("run %s failed: %s", res.RunID, res.Error)
		}
		return fmt.Errorf("run %s failed", res.RunID)
	}
	return nil
}

// stepOrder lists result IDs in declared step order, falling back to sorted
// IDs for anything the workflow description does not mention.
func stepOrder(res *v1alpha1.RunResponse, info *v1alpha1.WorkflowInfo) []string {
	seen := map[string]bool{}
	var ids []string
	if info != nil {
		for _, s := range info.Steps {
			if _, ok := res.Results[s.ID]; ok {
				ids = append(ids, s.ID)
				seen[s.ID] = true
			}
		}
	}
	for _, id := range sortedStrings(res.Results) {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// formatOutput renders a step output: single-string objects print as text
// (the activity plan), everything else as indented JSON.
func formatOutput(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var single map[string]any
	if json.Unmarshal(raw, &single) == nil && len(single) == 1 {
		for _, val := range single {
			if s, ok := val.(string); ok && strings.Contains(s, "\n") {
				return s
			}
		}
	}
	return string(raw)
}

// triggerData merges a JSON object with key=value pairs. Values are read
// as YAML scalars so that true, 3 and 1.5 keep their types.
func triggerData(data string, sets []string) (map[string]any, error) {
	out := map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &out); err != nil {
			return nil, fmt.Errorf("parsing --data: %w", err)
		}
	}
	for _, kv := range sets {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		var parsed any
		if err := yaml.Unmarshal([]byte(val), &parsed); err != nil || parsed == nil {
			parsed = val
		}
		if _, isMap := parsed.(map[string]any); isMap {
			parsed = val
		}
		if _, isList := parsed.([]any); isList {
			parsed = val
		}
		out[key] = parsed
	}
	return out, nil
}

// runResponse converts a stored run to the shape a synchronous run returns.
func runResponse(rec *v1alpha1.WorkflowRun) *v1alpha1.RunResponse {
	results := rec.Status.Results
	if results == nil {
		results = map[string]v1alpha1.StepState{}
	}
	return &v1alpha1.RunResponse{
		RunID:    rec.Metadata.Name,
		Workflow: rec.Spec.Workflow,
		Status:   rec.Status.Phase,
		Results:  results,
		Error:    rec.Status.Error,
	}
}
