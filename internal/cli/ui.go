package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/stratus/internal/tui"
)

func newUICmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ui",
		Aliases: []string{"top", "dashboard"},
		Short:   "Launch the interactive terminal UI",
		Long:    "Launch a k9s-style terminal UI for browsing runs, workflows, agents and eval results.",
		Example: `  stratus ui
  stratus ui --server http://127.0.0.1:7117`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := tui.NewApp(serverAddr)
			if err := app.Run(); err != nil {
				return fmt.Errorf("UI error: %w", err)
			}
			return nil
		},
	}
}
