package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sourcemeter/internal/serialmux"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialmux.ListPorts()
			if err != nil {
				return fmt.Errorf("list serial ports: %w", err)
			}
			w := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(w, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(w, p)
			}
			return nil
		},
	}
}
