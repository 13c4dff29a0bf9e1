package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/compilegate/pkg/affinity"
	"mercator-hq/compilegate/pkg/cli"
	"mercator-hq/compilegate/pkg/config"
)

var affinityFlags struct {
	output string
}

var affinityCmd = &cobra.Command{
	Use:   "affinity",
	Short: "Manage the backend affinity store",
}

var affinityPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired affinity records",
	Long: `Remove expired affinity records from the configured store once.

The running server prunes on affinity.prune_schedule; this runs the same
prune immediately, for example from an external scheduler when the server's
schedule is disabled.

Examples:
  compilegate affinity prune --config /etc/compilegate/config.yaml`,
	RunE: pruneAffinity,
}

func init() {
	rootCmd.AddCommand(affinityCmd)
	affinityCmd.AddCommand(affinityPruneCmd)

	affinityPruneCmd.Flags().StringVarP(&affinityFlags.output, "output", "o", "text", "output format: text, json")
}

func pruneAffinity(cmd *cobra.Command, args []string) (err error) {
	format, err := cli.ParseOutputFormat(affinityFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	store, err := affinity.Open(&cfg.Affinity)
	if err != nil {
		return cli.NewCommandError("affinity prune", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cli.NewCommandError("affinity prune", cerr)
		}
	}()

	deleted := affinity.NewPruner(store, "").RunOnce(cmd.Context())

	rows := []cli.Row{
		{Key: "backend", Value: cfg.Affinity.Backend},
		{Key: "deleted", Value: deleted},
	}
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), rows); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
