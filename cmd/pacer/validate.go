package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file with environment overrides applied and
report every problem found.

Examples:
  pacer validate --config pacer.yaml
  PACER_TRANSPORT_BASE_URL=https://discord.com/api/v10 pacer validate`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ Configuration valid")
	if verbose {
		fmt.Fprintf(out, "  Base URL:      %s\n", cfg.Transport.BaseURL)
		fmt.Fprintf(out, "  Default limit: %d\n", cfg.Limits.DefaultLimit)
		fmt.Fprintf(out, "  Storage:       %s\n", cfg.Storage.Backend)
		fmt.Fprintf(out, "  Snapshots:     %s\n", cfg.Storage.SnapshotSchedule)
		fmt.Fprintf(out, "  Metrics:       %t\n", cfg.Telemetry.Metrics.Enabled)
		fmt.Fprintf(out, "  Tracing:       %t\n", cfg.Telemetry.Tracing.Enabled)
	}
	return nil
}
