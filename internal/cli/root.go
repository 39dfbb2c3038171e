package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klubi/stratus/internal/config"
	"github.com/klubi/stratus/internal/host"
	"github.com/klubi/stratus/internal/logging"
	"github.com/klubi/stratus/internal/store"
	"github.com/klubi/stratus/pkg/client"
)

var (
	serverAddr string
	configPath string
	apiClient  *client.Client
)

// NewRootCmd creates the top-level stratus CLI command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stratus",
		Short: "Agent and workflow host",
		Long: `Stratus hosts a weather agent, the weatherWorkflow and sweAgentWorkflow
workflows and their tools. Run it as a server with 'stratus serve' or drive
workflows and agents directly with --local.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(); err != nil {
				return err
			}
			// Skip client init for commands that don't need the API server.
			switch cmd.Name() {
			case "serve", "init", "env", "summarize", "pack":
				return nil
			}
			apiClient = client.New(serverAddr)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:7117", "Stratus server address")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json|yaml")

	cmd.AddCommand(
		newServeCmd(),
		newApplyCmd(),
		newGetCmd(),
		newDescribeCmd(),
		newDeleteCmd(),
		newLogsCmd(),
		newRunCmd(),
		newGenerateCmd(),
		newEvalCmd(),
		newSummarizeCmd(),
		newPackCmd(),
		newEnvCmd(),
		newInitCmd(),
		newUICmd(),
	)

	return cmd
}

// localHost builds an in-process host backed by a memory store, for
// commands run with --local. The returned func flushes the logger.
func localHost() (*host.Host, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	h, err := host.Default(cfg, host.Deps{Logger: logger, Store: store.NewMemoryStore()})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return h, func() { _ = logger.Sync() }, nil
}
