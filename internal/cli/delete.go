package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete run <name>",
		Short:   "Delete a stored run",
		Long:    "Delete a finished or pending workflow run. Running runs cannot be deleted.",
		Example: `  stratus delete run 3f0c2a9e -w weatherWorkflow`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, _ := cmd.Flags().GetString("workflow")
			name := args[1]

			switch normalizeResourceType(args[0]) {
			case "runs":
				if wf == "" {
					return fmt.Errorf("--workflow is required to delete a run")
				}
				if err := apiClient.DeleteRun(cmd.Context(), wf, name); err != nil {
					return err
				}
				fmt.Printf("workflowrun/%s deleted\n", name)
			default:
				return fmt.Errorf("unknown resource type %q. Only runs can be deleted", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringP("workflow", "w", "", "Workflow key of the run")

	return cmd
}
