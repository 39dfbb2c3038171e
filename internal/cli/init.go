package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/klubi/stratus/internal/config"
	"github.com/klubi/stratus/internal/workflows"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
	"github.com/klubi/stratus/pkg/manifest"
)

func newInitCmd() *cobra.Command {
	var (
		dir   string
		city  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and run manifest",
		Long: `Create stratus.yaml with every default spelled out, and runs.yaml with one
WorkflowRun per registered workflow that you can submit with 'stratus apply -f'.`,
		Example: `  stratus init
  stratus init --dir deploy --city Tulsa`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := filepath.Join(dir, "stratus.yaml")
			runsPath := filepath.Join(dir, "runs.yaml")
			if !force {
				for _, p := range []string{cfgPath, runsPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("file %s already exists. Use --force to overwrite", p)
					} else if !errors.Is(err, os.ErrNotExist) {
						return err
					}
				}
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}

			cfgYAML, err := yaml.Marshal(config.DefaultConfig())
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			if err := os.WriteFile(cfgPath, cfgYAML, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", cfgPath, err)
			}

			runsYAML, err := manifest.Marshal(starterRuns(city)...)
			if err != nil {
				return fmt.Errorf("encoding manifest: %w", err)
			}
			if err := os.WriteFile(runsPath, runsYAML, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", runsPath, err)
			}

			bold := color.New(color.FgCyan, color.Bold)
			bold.Println("Stratus initialized!")
			fmt.Println()
			fmt.Printf("  Config:   %s\n", cfgPath)
			fmt.Printf("  Manifest: %s\n", runsPath)
			fmt.Println()

			color.New(color.Bold).Println("Next steps:")
			fmt.Println("  1. Put ANTHROPIC_API_KEY (or OPENAI_API_KEY) in .env.development")
			fmt.Println()
			fmt.Println("  2. Start the server:")
			fmt.Printf("     stratus serve -c %s\n", cfgPath)
			fmt.Println()
			fmt.Println("  3. Submit the runs:")
			fmt.Printf("     stratus apply -f %s\n", runsPath)
			fmt.Println()
			fmt.Println("  4. Check on them:")
			fmt.Println("     stratus get runs")
			fmt.Println()
			fmt.Println("  Or run a workflow directly:")
			fmt.Printf("     stratus run %s --set city=%s\n", workflows.WeatherKey, city)

			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write the files into")
	cmd.Flags().StringVar(&city, "city", "Tulsa", "City for the sample weather run")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}

func starterRuns(city string) []*v1alpha1.WorkflowRun {
	run := func(name, wf string, trigger map[string]any) *v1alpha1.WorkflowRun {
		return &v1alpha1.WorkflowRun{
			TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindWorkflowRun},
			Metadata: v1alpha1.ObjectMeta{Name: name},
			Spec:     v1alpha1.WorkflowRunSpec{Workflow: wf, TriggerData: trigger},
		}
	}
	return []*v1alpha1.WorkflowRun{
		run("weather-sample", workflows.WeatherKey, map[string]any{"city": city}),
		run("repo-sample", workflows.SWEAgentKey, map[string]any{"path": ".", "includeHidden": false}),
	}
}
