package subcmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(NewCheckCommand())
}

// NewCheckCommand returns the command that validates the configuration
// without connecting to any backend.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(globalOpts.ConfigPath, globalOpts.LogLevel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state:   %s\n", cfg.State.Backend)
			fmt.Fprintf(out, "ledger:  %s\n", cfg.Ledger.Backend)
			fmt.Fprintf(out, "probe:   every %s, unhealthy after %d failures\n",
				cfg.Registry.CheckInterval.Duration, cfg.Registry.UnhealthyThreshold)
			fmt.Fprintf(out, "drain:   timeout %s\n", cfg.Registry.DrainTimeout.Duration)
			if cfg.Events.NATSURL != "" {
				fmt.Fprintf(out, "events:  %s\n", cfg.Events.NATSURL)
			}
			if cfg.Metrics.Listen != "" {
				fmt.Fprintf(out, "metrics: %s%s\n", cfg.Metrics.Listen, cfg.Metrics.Path)
			}
			return nil
		},
	}
}
