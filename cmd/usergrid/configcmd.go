package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memtensor/usergrid/pkg/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "dump",
			Short: "Print the effective configuration with secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := a.config.Config().Redacted().YAML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:               "init <path>",
			Short:             "Write the default configuration to a file",
			Args:              cobra.ExactArgs(1),
			PersistentPreRun:  func(cmd *cobra.Command, args []string) {},
			PersistentPostRun: func(cmd *cobra.Command, args []string) {},
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.Default().ToYAMLFile(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
				return nil
			},
		},
	)

	return cmd
}
