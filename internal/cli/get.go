package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <resource-type> [name]",
		Short: "List or get resources",
		Long: `Display one or many resources.

Resource types: workflows (wf), runs (run), agents (agent), tools (tool), evals (eval)`,
		Example: `  stratus get workflows
  stratus get runs -w weatherWorkflow
  stratus get run 3f0c2a9e -w weatherWorkflow
  stratus get agents
  stratus get tools -o json
  stratus get evals --agent "Weather Agent"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, _ := cmd.Flags().GetString("workflow")
			agentName, _ := cmd.Flags().GetString("agent")
			resourceType := normalizeResourceType(args[0])

			var name string
			if len(args) > 1 {
				name = args[1]
			}

			switch resourceType {
			case "workflows":
				return getWorkflows(cmd, name)
			case "runs":
				return getRuns(cmd, wf, name)
			case "agents":
				return getAgents(cmd, name)
			case "tools":
				return getTools(cmd, name)
			case "evals":
				return getEvals(cmd, agentName)
			default:
				return fmt.Errorf("unknown resource type %q. Valid types: workflows, runs, agents, tools, evals", args[0])
			}
		},
	}

	cmd.Flags().StringP("workflow", "w", "", "Workflow key (scopes runs)")
	cmd.Flags().String("agent", "", "Agent name (scopes evals)")

	return cmd
}

// normalizeResourceType maps various aliases to canonical resource type names.
func normalizeResourceType(t string) string {
	t = strings.ToLower(t)
	switch t {
	case "workflow", "workflows", "wf":
		return "workflows"
	case "run", "runs", "workflowrun", "workflowruns":
		return "runs"
	case "agent", "agents":
		return "agents"
	case "tool", "tools":
		return "tools"
	case "eval", "evals", "evalresult", "evalresults":
		return "evals"
	default:
		return t
	}
}

func getWorkflows(cmd *cobra.Command, name string) error {
	if name != "" {
		wf, err := apiClient.GetWorkflow(cmd.Context(), name)
		if err != nil {
			return err
		}
		return printItem(*wf, workflowHeaders(), workflowToRow)
	}

	wfs, err := apiClient.ListWorkflows(cmd.Context())
	if err != nil {
		return err
	}
	return printList(wfs, workflowHeaders(), workflowToRow)
}

func getRuns(cmd *cobra.Command, workflow, name string) error {
	if name != "" {
		if workflow == "" {
			return fmt.Errorf("--workflow is required to get a single run")
		}
		run, err := apiClient.GetRun(cmd.Context(), workflow, name)
		if err != nil {
			return err
		}
		return printItem(*run, runHeaders(), runToRow)
	}

	runs, err := apiClient.ListRuns(cmd.Context(), workflow)
	if err != nil {
		return err
	}
	if len(runs) == 0 && !structured() {
		fmt.Fprintln(stdout, "No runs found.")
		return nil
	}
	return printList(runs, runHeaders(), runToRow)
}

func getAgents(cmd *cobra.Command, name string) error {
	if name != "" {
		a, err := apiClient.GetAgent(cmd.Context(), name)
		if err != nil {
			return err
		}
		return printItem(*a, agentHeaders(), agentToRow)
	}

	agents, err := apiClient.ListAgents(cmd.Context())
	if err != nil {
		return err
	}
	return printList(agents, agentHeaders(), agentToRow)
}

func getTools(cmd *cobra.Command, id string) error {
	if id != "" {
		t, err := apiClient.GetTool(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printItem(*t, toolHeaders(), toolToRow)
	}

	ts, err := apiClient.ListTools(cmd.Context())
	if err != nil {
		return err
	}
	return printList(ts, toolHeaders(), toolToRow)
}

func getEvals(cmd *cobra.Command, agentName string) error {
	results, err := apiClient.ListEvals(cmd.Context(), agentName)
	if err != nil {
		return err
	}
	if len(results) == 0 && !structured() {
		fmt.Fprintln(stdout, "No eval results found.")
		return nil
	}
	return printList(results, evalHeaders(), evalToRow)
}

// --- Table headers and row converters ---

func workflowHeaders() []string {
	return []string{"KEY", "NAME", "STEPS"}
}

func workflowToRow(wf v1alpha1.WorkflowInfo) []string {
	ids := make([]string, len(wf.Steps))
	for i, s := range wf.Steps {
		ids[i] = s.ID
	}
	return []string{wf.Key, wf.Name, strings.Join(ids, " -> ")}
}

func runHeaders() []string {
	return []string{"NAME", "WORKFLOW", "PHASE", "STEPS", "AGE"}
}

func runToRow(run v1alpha1.WorkflowRun) []string {
	done := 0
	for _, s := range run.Status.Steps {
		if s.Status == v1alpha1.StepSuccess {
			done++
		}
	}
	return []string{
		run.Metadata.Name,
		run.Spec.Workflow,
		colorPhase(string(run.Status.Phase)),
		fmt.Sprintf("%d/%d", done, len(run.Status.Steps)),
		formatAge(run.Metadata.CreatedAt),
	}
}

func agentHeaders() []string {
	return []string{"KEY", "NAME", "MODEL", "TOOLS"}
}

func agentToRow(a v1alpha1.AgentInfo) []string {
	return []string{a.Key, a.Name, a.Model, formatStringSlice(a.Tools)}
}

func toolHeaders() []string {
	return []string{"ID", "DESCRIPTION"}
}

func toolToRow(t v1alpha1.ToolInfo) []string {
	return []string{t.ID, truncate(t.Description, 70)}
}

func evalHeaders() []string {
	return []string{"NAME", "AGENT", "METRIC", "SCORE", "INPUT", "AGE"}
}

func evalToRow(r v1alpha1.EvalResult) []string {
	return []string{
		r.Metadata.Name,
		r.Spec.Agent,
		r.Spec.Metric,
		strconv.FormatFloat(r.Status.Score, 'f', 3, 64),
		truncate(r.Spec.Input, 30),
		formatAge(r.Metadata.CreatedAt),
	}
}

// colorPhase returns a colored string for known run phases and step statuses.
func colorPhase(phase string) string {
	switch phase {
	case string(v1alpha1.RunSucceeded), string(v1alpha1.StepSuccess):
		return color.GreenString(phase)
	case string(v1alpha1.RunFailed), string(v1alpha1.StepFailed):
		return color.RedString(phase)
	case string(v1alpha1.RunRunning), string(v1alpha1.StepRunning):
		return color.YellowString(phase)
	case string(v1alpha1.RunPending), string(v1alpha1.StepPending):
		return color.WhiteString(phase)
	case string(v1alpha1.StepSkipped):
		return color.HiBlackString(phase)
	default:
		return phase
	}
}

func sortedStrings[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
