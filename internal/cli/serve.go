package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/apiserver"
	"github.com/klubi/stratus/internal/config"
	"github.com/klubi/stratus/internal/controller"
	"github.com/klubi/stratus/internal/evals"
	"github.com/klubi/stratus/internal/host"
	"github.com/klubi/stratus/internal/logging"
	"github.com/klubi/stratus/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		hostname  string
		dataDir   string
		storeType string
		root      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the stratus server",
		Long:  "Start the API server, the run controller and the stale-run reaper.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. Load configuration and apply CLI overrides.
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = hostname
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Store.DataDir = dataDir
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Type = storeType
			}
			if cmd.Flags().Changed("root") {
				cfg.Workflow.Root = root
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// 2. Create logger.
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			// 3. Open the store.
			st, err := store.Open(cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			// 4. Build the host and persist eval results.
			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			h, err := host.Default(cfg, host.Deps{Logger: logger, Store: st, Registerer: registry})
			if err != nil {
				return err
			}
			detach := evals.AttachListeners(st, logger)
			defer detach()

			// 5. Start controllers.
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			mgr := controller.NewManager(st, logger)
			controller.RegisterDefaults(mgr, h, st, cfg.Workflow, logger)
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("starting controller manager: %w", err)
			}

			// 6. Create and start API server.
			apiSrv := apiserver.NewServer(cfg.ServerAddress(), h, registry, logger)

			banner := color.New(color.FgCyan, color.Bold)
			banner.Println("Stratus")
			fmt.Printf("   API Server: %s\n", cfg.ServerURL())
			fmt.Printf("   Store:      %s\n", describeStore(cfg.Store))
			fmt.Printf("   Root:       %s\n", cfg.Workflow.Root)
			fmt.Printf("   Workflows:  %v\n", h.Workflows())
			fmt.Printf("   Agents:     %v\n", h.Agents())
			fmt.Println()

			errCh := make(chan error, 1)
			go func() {
				if err := apiSrv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// 7. Wait for interrupt signal for graceful shutdown.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			case err := <-errCh:
				logger.Error("API server error", zap.Error(err))
				cancel()
				mgr.Stop()
				return err
			}

			fmt.Println()
			logger.Info("shutting down gracefully...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			mgr.Stop()
			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown error", zap.Error(err))
			}
			cancel()

			logger.Info("stratus stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 7117, "API server port")
	cmd.Flags().StringVar(&hostname, "host", "127.0.0.1", "API server host")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.stratus/data)")
	cmd.Flags().StringVar(&storeType, "store", "bolt", "Store backend: memory|bolt|redis")
	cmd.Flags().StringVar(&root, "root", ".", "Sandbox root for directory tools")

	return cmd
}

func describeStore(cfg config.StoreConfig) string {
	switch cfg.Type {
	case store.BackendBolt:
		return "bolt " + cfg.DBPath()
	case store.BackendRedis:
		return fmt.Sprintf("redis %s (prefix %s)", cfg.Redis.Addr, cfg.Redis.KeyPrefix)
	default:
		return cfg.Type
	}
}
