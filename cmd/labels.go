package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/wesm/gh-issues-stats/internal/issues"
)

func newLabelsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "labels REPOSITORY",
		Short: "List the labels used by the issues of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withService(cmd, args[0], func(ctx context.Context, svc *issues.Service) error {
				labels, err := svc.Labels(ctx)
				if err != nil {
					return err
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(labels)
				}

				_, err = cmd.OutOrStdout().Write([]byte(renderLabels(labels)))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	return cmd
}
