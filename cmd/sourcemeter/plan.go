package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sourcemeter/internal/sweep"
	"github.com/banshee-data/sourcemeter/internal/units"
)

func newPlanCmd() *cobra.Command {
	var flags panelFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the setpoints a sweep would visit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			sc, err := cfg.SweepConfig()
			if err != nil {
				return err
			}
			plan, err := sweep.GenerateShape(sc.Start, sc.Stop, sc.Points, sc.EffectiveShape())
			if err != nil {
				return err
			}
			unit := sc.Mode.Limits().BiasUnit
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s sweep, shape %s, %d setpoints, compliance %s, interval %s\n",
				sc.Mode, sc.EffectiveShape(), len(plan),
				units.Format(sc.Compliance, sc.Mode.Limits().ComplianceUnit), sc.Interval)
			for i, v := range plan {
				fmt.Fprintf(w, "%d\t%s\n", i, units.Format(v, unit))
			}
			return nil
		},
	}
	flags.registerSweep(cmd)
	return cmd
}
