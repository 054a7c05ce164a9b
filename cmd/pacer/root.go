package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/pacer/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pacer",
	Short: "Pacer - rate limit aware API call scheduler",
	Long: `Pacer sends API calls without exceeding the remote rate limits.

Routes that share a rate limit bucket are discovered from reply headers.
Calls are queued per bucket and only dispatched while the bucket has room,
so the remote API never has to reject them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and PACER_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
