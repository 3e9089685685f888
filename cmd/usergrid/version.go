package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// The Build* variables are overwritten at build time with ldflags, e.g.
// -X main.BuildVersion=v1.2.3
var (
	BuildName    = "usergrid"
	BuildVersion = "dev"
	BuildDate    = "unknown"
	BuildHash    = "unknown"
)

// NewVersionCommand prints the build parameters and exits
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Show version information",
		Args:              cobra.NoArgs,
		PersistentPreRun:  func(cmd *cobra.Command, args []string) {},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:       %s\n", BuildName)
			fmt.Fprintf(out, "version:    %s\n", BuildVersion)
			fmt.Fprintf(out, "build date: %s\n", BuildDate)
			fmt.Fprintf(out, "scm hash:   %s\n", BuildHash)
		},
	}
}
