package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigil-systems/vigil/common/config"
)

var cliCfg *config.CLIConfig

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil audit pipeline CLI",
	Long: `vigil is the command-line interface for the Vigil audit pipeline.

Run a collector, seed it with generated audit events, and manage
collector connection profiles from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initCLIConfig)

	rootCmd.PersistentFlags().String("profile", "", "connection profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
}

func initCLIConfig() {
	var err error
	cliCfg, err = config.LoadCLI()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cliCfg = config.DefaultCLI()
	}
}
