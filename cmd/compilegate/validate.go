package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/compilegate/pkg/cli"
	"mercator-hq/compilegate/pkg/config"
	"mercator-hq/compilegate/pkg/project"
	"mercator-hq/compilegate/pkg/splittest"
)

var validateFlags struct {
	output string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file with environment overrides applied and check it.

The project directory and split-test files it names are parsed as well, so a
file that would fail to reload at runtime is caught here.

Examples:
  # Validate the default config.yaml
  compilegate validate

  # Validate another file and print the effective settings as JSON
  compilegate validate --config /etc/compilegate/config.yaml --output json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.output, "output", "o", "text", "output format: text, json")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	defaults := project.Defaults{
		CompileGroup:        cfg.Compile.DefaultCompileGroup,
		CompileBackendClass: cfg.Compile.DefaultBackendClass,
		Timeout:             cfg.Compile.DefaultUserTimeout,
	}
	if _, err := project.NewFileDirectory(cfg.Projects.FilePath, defaults, nil); err != nil {
		return cli.NewConfigError("projects.file_path", err.Error())
	}
	if _, err := splittest.NewManager(cfg.SplitTests.FilePath, nil); err != nil {
		return cli.NewConfigError("split_tests.file_path", err.Error())
	}

	rows := []cli.Row{
		{Key: "config", Value: cfgFile},
		{Key: "listen_address", Value: cfg.Server.ListenAddress},
		{Key: "clsi_url", Value: cfg.CLSI.URL},
		{Key: "compile_timeout", Value: cfg.Compile.Timeout.String()},
		{Key: "default_compile_group", Value: cfg.Compile.DefaultCompileGroup},
		{Key: "default_backend_class", Value: cfg.Compile.DefaultBackendClass},
		{Key: "affinity_backend", Value: cfg.Affinity.Backend},
		{Key: "session_store", Value: cfg.Session.Store},
		{Key: "realtime", Value: cfg.CompileWS.WebSocketEnabled()},
		{Key: "projects_file", Value: orNone(cfg.Projects.FilePath)},
		{Key: "split_tests_file", Value: orNone(cfg.SplitTests.FilePath)},
	}
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), rows); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
