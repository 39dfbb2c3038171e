package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/stratus/pkg/manifest"
)

func newApplyCmd() *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "apply -f <file>",
		Short: "Apply a run manifest",
		Long: `Submit the WorkflowRun resources in a YAML manifest. Each run is stored
as Pending and executed by the server's run controller. Re-applying a
finished run resets it and runs it again.`,
		Example: `  stratus apply -f runs.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := manifest.ParseFile(filename)
			if err != nil {
				return fmt.Errorf("parsing manifest %s: %w", filename, err)
			}

			if len(runs) == 0 {
				fmt.Println("No resources found in manifest.")
				return nil
			}

			for _, run := range runs {
				if _, err := apiClient.Apply(cmd.Context(), run); err != nil {
					return fmt.Errorf("applying %s/%s: %w", run.Kind, run.Metadata.Name, err)
				}
				fmt.Printf("%s/%s configured\n", run.Kind, run.Metadata.Name)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&filename, "filename", "f", "", "Path to manifest file (required)")
	cmd.MarkFlagRequired("filename")

	return cmd
}
