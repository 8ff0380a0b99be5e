package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wesm/gh-issues-stats/config"
	"github.com/wesm/gh-issues-stats/internal/issues"
	"github.com/wesm/gh-issues-stats/internal/stats"
)

// reportOptions holds the flags of the yearly and monthly reports
type reportOptions struct {
	labels   []string
	format   string
	finished bool
	legend   bool
}

func (o *reportOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&o.labels, "label", "l", nil, "Filter by label, repeatable, prefix with '!' to exclude")
	cmd.Flags().StringVarP(&o.format, "format", "f", formatTable, "Output format (table, chart, json)")
	cmd.Flags().BoolVar(&o.finished, "finished", false, "Show stats of issues created and closed in the same period")
	cmd.Flags().BoolVar(&o.legend, "legend", true, "Print a legend below the report")
}

func (o *reportOptions) validate() error {
	switch o.format {
	case formatTable, formatChart, formatJSON:
		return nil
	}
	return fmt.Errorf("%w: unsupported output format '%s'", config.ErrInvalidConfig, o.format)
}

func newYearlyCmd(root *rootOptions) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "yearly REPOSITORY",
		Short: "Show issue statistics per year",
		Example: `  gh-issues-stats yearly rails/rails
  gh-issues-stats yearly rails/rails --label bug --label '!enhancement'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}

			return root.withService(cmd, args[0], func(ctx context.Context, svc *issues.Service) error {
				buckets, err := svc.PerYear(ctx, opts.labels, true)
				if err != nil {
					return err
				}

				average, err := svc.AllAverageClosingTime(ctx)
				if err != nil {
					return err
				}
				median, err := svc.AllMedianClosingTime(ctx)
				if err != nil {
					return err
				}

				extra := fmt.Sprintf("%d days average closing time. %d days median closing time.",
					stats.SecondsToDays(average), stats.SecondsToDays(median))
				return writeReport(cmd.OutOrStdout(), buckets, stats.Year, opts, extra)
			})
		},
	}
	opts.bind(cmd)

	return cmd
}

func newMonthlyCmd(root *rootOptions) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:     "monthly YEAR REPOSITORY",
		Short:   "Show issue statistics per month of a year",
		Example: `  gh-issues-stats monthly 2023 rails/rails --format chart`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year '%s'", args[0])
			}
			if err := opts.validate(); err != nil {
				return err
			}

			return root.withService(cmd, args[1], func(ctx context.Context, svc *issues.Service) error {
				buckets, err := svc.PerMonth(ctx, year, opts.labels, true)
				if err != nil {
					return err
				}
				return writeReport(cmd.OutOrStdout(), buckets, stats.Month, opts, "")
			})
		},
	}
	opts.bind(cmd)

	return cmd
}
