package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sourcemeter/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sourcemeter",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sourcemeter version %s (%s, built %s)\n",
				version.Version, version.GitSHA, version.BuildTime)
		},
	}
}
