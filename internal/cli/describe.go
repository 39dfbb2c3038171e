package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newDescribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <resource-type> <name>",
		Short: "Show detailed info about a resource",
		Long:  "Print a detailed description of a specific resource in kubectl-describe style.",
		Example: `  stratus describe workflow weatherWorkflow
  stratus describe run 3f0c2a9e -w weatherWorkflow
  stratus describe agent weatherAgent
  stratus describe tool summarize-directory`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, _ := cmd.Flags().GetString("workflow")
			name := args[1]

			switch normalizeResourceType(args[0]) {
			case "workflows":
				return describeWorkflow(cmd, name)
			case "runs":
				if wf == "" {
					return fmt.Errorf("--workflow is required to describe a run")
				}
				return describeRun(cmd, wf, name)
			case "agents":
				return describeAgent(cmd, name)
			case "tools":
				return describeTool(cmd, name)
			default:
				return fmt.Errorf("unknown resource type %q", args[0])
			}
		},
	}

	cmd.Flags().StringP("workflow", "w", "", "Workflow key (scopes runs)")

	return cmd
}

func describeWorkflow(cmd *cobra.Command, key string) error {
	wf, err := apiClient.GetWorkflow(cmd.Context(), key)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("Workflow:")
	printField("  Key", wf.Key)
	printField("  Name", wf.Name)

	fmt.Println()
	bold.Println("Trigger Schema:")
	fmt.Println(indent(formatJSON(wf.TriggerSchema), "  "))

	fmt.Println()
	bold.Println("Steps:")
	for i, s := range wf.Steps {
		fmt.Printf("  %d. %s\n", i+1, s.ID)
		if s.Description != "" {
			printField("     Description", s.Description)
		}
		if s.Retries > 0 {
			printField("     Retries", strconv.Itoa(s.Retries))
		}
	}
	return nil
}

func describeRun(cmd *cobra.Command, workflow, id string) error {
	run, err := apiClient.GetRun(cmd.Context(), workflow, id)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)

	bold.Println("WorkflowRun:")
	printField("  Name", run.Metadata.Name)
	printField("  Workflow", run.Spec.Workflow)
	printField("  UID", run.Metadata.UID)
	printField("  Labels", formatLabels(run.Metadata.Labels))
	printField("  Created", formatTime(run.Metadata.CreatedAt))
	printField("  Updated", formatTime(run.Metadata.UpdatedAt))

	fmt.Println()
	bold.Println("Spec:")
	printField("  Trigger Data", formatJSON(run.Spec.TriggerData))
	if run.Spec.TimeoutSeconds > 0 {
		printField("  Timeout", fmt.Sprintf("%ds", run.Spec.TimeoutSeconds))
	}

	fmt.Println()
	bold.Println("Status:")
	printField("  Phase", colorPhase(string(run.Status.Phase)))
	printField("  Started At", formatTime(run.Status.StartedAt))
	printField("  Finished At", formatTime(run.Status.FinishedAt))

	fmt.Println()
	bold.Println("Steps:")
	for _, s := range run.Status.Steps {
		line := fmt.Sprintf("  %-20s %s", s.ID, colorPhase(string(s.Status)))
		if s.Attempts > 1 {
			line += fmt.Sprintf(" (%d attempts)", s.Attempts)
		}
		fmt.Println(line)
	}

	for _, s := range run.Status.Steps {
		res, ok := run.Status.Results[s.ID]
		if !ok || res.Output == nil {
			continue
		}
		fmt.Println()
		bold.Printf("Output (%s):\n", s.ID)
		fmt.Println(formatOutput(res.Output))
	}

	if run.Status.Error != "" {
		fmt.Println()
		bold.Println("Error:")
		fmt.Println(color.RedString(run.Status.Error))
	}
	return nil
}

func describeAgent(cmd *cobra.Command, key string) error {
	a, err := apiClient.GetAgent(cmd.Context(), key)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("Agent:")
	printField("  Key", a.Key)
	printField("  Name", a.Name)
	printField("  Model", a.Model)
	printField("  Tools", formatStringSlice(a.Tools))

	fmt.Println()
	bold.Println("Instructions:")
	fmt.Println(indent(strings.TrimSpace(a.Instructions), "  "))
	return nil
}

func describeTool(cmd *cobra.Command, id string) error {
	t, err := apiClient.GetTool(cmd.Context(), id)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("Tool:")
	printField("  ID", t.ID)
	printField("  Description", t.Description)

	fmt.Println()
	bold.Println("Input Schema:")
	fmt.Println(indent(formatJSON(t.InputSchema), "  "))
	if t.OutputSchema != nil {
		fmt.Println()
		bold.Println("Output Schema:")
		fmt.Println(indent(formatJSON(t.OutputSchema), "  "))
	}
	return nil
}

// --- Helpers ---

func printField(label, value string) {
	if value == "" {
		value = "<none>"
	}
	fmt.Printf("%-24s%s\n", label+":", value)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "<none>"
	}
	parts := make([]string, 0, len(labels))
	for _, k := range sortedStrings(labels) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, labels[k]))
	}
	return strings.Join(parts, ", ")
}

func formatStringSlice(items []string) string {
	if len(items) == 0 {
		return "<none>"
	}
	return strings.Join(items, ", ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatJSON(v any) string {
	if v == nil {
		return "<none>"
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
