package commands

import (
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Scout - multi-agent incident investigation engine",
	Long: `Scout runs staged investigation agents over correlated telemetry to
triage incidents, trace failure cascades, hypothesize root causes, and
suggest remediation steps.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the CLI entry point.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(investigateCmd)
}
