package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/compilegate/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "compilegate",
	Short: "Compilegate - compile coordination for the CLSI backend",
	Long: `Compilegate sits between editor clients and the CLSI LaTeX compile backend.

It provides:
  - Project compiles held open with 102 Processing keepalives
  - Output file, PDF download and SyncTeX proxying
  - Backend server affinity per project, user and compile group
  - A realtime compile channel that fans results out to every open editor
  - Anonymous submission compiles for the public API`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the status ExitCode assigns.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
