package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/compilegate/pkg/cli"
	"mercator-hq/compilegate/pkg/config"
	"mercator-hq/compilegate/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the compilegate server",
	Long: `Start the compilegate server with the specified configuration.

The server listens on the configured address, forwards compiles to the CLSI
backend and serves the realtime compile channel when it is enabled.

Examples:
  # Start with default config
  compilegate run

  # Start with custom config
  compilegate run --config /etc/compilegate/config.yaml

  # Override listen address
  compilegate run --listen 0.0.0.0:3000

  # Validate config and wire every component without serving
  compilegate run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.FromConfig(&cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return a.Close(context.Background())
	}

	logger.Info("compilegate starting",
		"version", Version,
		"config", cfgFile,
		"address", cfg.Server.ListenAddress,
		"clsi_url", cfg.CLSI.URL,
		"affinity_backend", cfg.Affinity.Backend,
		"session_store", cfg.Session.Store,
		"realtime", cfg.CompileWS.WebSocketEnabled(),
		"tracing", a.tracer.Enabled(),
	)

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	runErr := a.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return cli.NewCommandError("run", runErr)
	}

	logger.Info("compilegate stopped")
	return nil
}
