package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func newLogsCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs <run>",
		Short: "Show the step timeline of a run",
		Long:  "Print the timeline of a workflow run: creation, each step's start and outcome, and the final result.",
		Example: `  stratus logs 3f0c2a9e -w weatherWorkflow
  stratus logs 3f0c2a9e -w weatherWorkflow --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, _ := cmd.Flags().GetString("workflow")
			if wf == "" {
				return fmt.Errorf("--workflow is required")
			}
			if follow {
				return logsFollow(cmd, wf, args[0])
			}
			return logsPrint(cmd, wf, args[0])
		},
	}

	cmd.Flags().StringP("workflow", "w", "", "Workflow key of the run")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow until the run finishes (polls every 2 seconds)")

	return cmd
}

func logsPrint(cmd *cobra.Command, workflow, id string) error {
	entries, err := apiClient.GetRunLogs(cmd.Context(), workflow, id)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No logs found for run %s.\n", id)
		return nil
	}
	for _, entry := range entries {
		printLogEntry(entry)
	}
	return nil
}

func logsFollow(cmd *cobra.Command, workflow, id string) error {
	// The timeline is rebuilt on every request, so skip what was printed.
	seen := 0

	fmt.Printf("Following run %s (Ctrl+C to stop)...\n", id)

	for {
		entries, err := apiClient.GetRunLogs(cmd.Context(), workflow, id)
		if err != nil {
			return err
		}
		if len(entries) > seen {
			for _, entry := range entries[seen:] {
				printLogEntry(entry)
			}
			seen = len(entries)
		}

		run, err := apiClient.GetRun(cmd.Context(), workflow, id)
		if err != nil {
			return err
		}
		if run.Status.Phase.Terminal() {
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

// printLogEntry prints a single formatted log line.
func printLogEntry(e v1alpha1.LogEntry) {
	timestamp := e.Timestamp.Format("2006-01-02 15:04:05")

	var levelStr string
	switch e.Level {
	case "ERROR", "error":
		levelStr = color.RedString("%-5s", e.Level)
	case "WARN", "warn":
		levelStr = color.YellowString("%-5s", e.Level)
	case "INFO", "info":
		levelStr = color.GreenString("%-5s", e.Level)
	case "DEBUG", "debug":
		levelStr = color.HiBlackString("%-5s", e.Level)
	default:
		levelStr = fmt.Sprintf("%-5s", e.Level)
	}

	step := ""
	if e.Step != "" {
		step = fmt.Sprintf("[%s] ", e.Step)
	}
	fmt.Printf("[%s] [%s] %s%s\n", timestamp, levelStr, step, e.Message)
}
