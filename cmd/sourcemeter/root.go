package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sourcemeter/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sourcemeter",
		Short: "Keithley 2400 I-V sweep engine",
		Long: `sourcemeter programs a Keithley 2400 SourceMeter over RS-232, steps a
voltage or current bias through a sweep plan and records the measured
voltage and current at every point.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to a JSON or YAML panel config")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newPlanCmd(),
		newPortsCmd(),
		newRemoteCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given and layers the command's changed
// flags on top.
func loadConfig(cmd *cobra.Command, flags *panelFlags) (*config.PanelConfig, error) {
	cfg := config.Empty()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flags != nil {
		flags.apply(cmd, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
