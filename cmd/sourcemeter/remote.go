package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sourcemeter/internal/api"
	"github.com/banshee-data/sourcemeter/internal/config"
)

// newRemoteCmd groups commands that drive a running `sourcemeter serve`.
func newRemoteCmd() *cobra.Command {
	var addr string
	client := func() *api.Client {
		return api.NewClient("http://"+addr, &http.Client{Timeout: 30 * time.Second})
	}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Control a running sourcemeter server",
	}
	cmd.PersistentFlags().StringVarP(&addr, "addr", "a", config.DefaultListen, "Address of the server")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the server's sweep state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().Status()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "state:   %s\n", st.State)
			fmt.Fprintf(w, "plan:    %d setpoints\n", st.PlanPoints)
			fmt.Fprintf(w, "traces:  %d\n", st.Traces)
			fmt.Fprintf(w, "exports: %s\n", st.ExportDir)
			if r := st.LastRun; r != nil {
				fmt.Fprintf(w, "last:    %s %s, %d samples\n", r.ID, r.Outcome, r.Samples)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a sweep with the server's current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Start(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sweep started")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "abort",
		Short: "Abort the running sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().Abort()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s %s after %d samples\n", s.ID, s.Outcome, s.Samples)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "save [name]",
		Short: "Save the server's traces into its export directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			path, err := client().Save(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	})
	return cmd
}
