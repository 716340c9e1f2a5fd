package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the shared --config flag read by run and validate.
var configPath string

// rootCmd is the top-level cobra command for ethersim.
var rootCmd = &cobra.Command{
	Use:   "ethersim",
	Short: "Discrete-event Ethernet collision-domain simulator",
	Long:  "ethersim runs CSMA/CD contention scenarios described by a YAML config and streams a packet trace plus Prometheus metrics.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to scenario configuration file (YAML); defaults built in if omitted")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
