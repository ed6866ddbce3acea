package main

import (
	"fmt"
	"os"

	"github.com/mscrnt/pwmbench/internal/version"
	"github.com/spf13/cobra"
)

var (
	// Build variables set by ldflags
	buildVersion string
	buildCommit  string
	buildTime    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pwmbench",
		Short: "pwmbench - PWM peripheral verification bench",
		Long: `pwmbench drives a cycle-level model of a PWM peripheral over its serial
register interface and checks the frequency and duty cycle of its outputs.`,
		Version:       version.GetVersion(buildVersion, buildCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config-file", "", "Configuration file (default: $PWMBENCH_CONFIG or ~/.pwmbench/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "Log format override (text or json)")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(certCmd())
	rootCmd.AddCommand(configCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetDetailedVersion(buildVersion, buildCommit, buildTime))
		},
	}
}
