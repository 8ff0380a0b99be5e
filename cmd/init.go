package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/gh-issues-stats/config"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file if it doesn't exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := config.CreateDefaultConfig(root.configFile)
			if err != nil {
				return err
			}

			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s already exists\n", root.configFile)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created default configuration at %s\n", root.configFile)
			fmt.Fprintf(cmd.OutOrStdout(), "GitHub token can be provided via the %s environment variable\n", config.EnvGithubToken)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gh-issues-stats %s\n", version)
		},
	}
}
