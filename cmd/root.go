package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesm/gh-issues-stats/config"
	"github.com/wesm/gh-issues-stats/internal/api"
	"github.com/wesm/gh-issues-stats/internal/issues"
	"github.com/wesm/gh-issues-stats/internal/stats"
	"github.com/wesm/gh-issues-stats/internal/sync"
)

var version = "dev"

type fetcherFactory func(cfg *config.Config, logger *slog.Logger) (sync.Fetcher, error)

// rootOptions holds the flags shared by all commands
type rootOptions struct {
	configFile string
	cachePath  string
	refresh    string
	verbose    bool

	newFetcher fetcherFactory
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithFetcher(newFetcher)
}

func newRootCmdWithFetcher(factory fetcherFactory) *cobra.Command {
	opts := &rootOptions{newFetcher: factory}

	cmd := &cobra.Command{
		Use:   "gh-issues-stats",
		Short: "Analyse the issues lifecycle of a GitHub repository",
		Long: `gh-issues-stats shows how issues of a GitHub repository are created and
closed over time: yearly and monthly counts, closed/created ratios and the
average and median time it takes to close an issue, optionally filtered by
labels. Issues are cached locally and refreshed incrementally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "configuration-file", config.DefaultConfigPath(), "Path to configuration file (JSON or YAML)")
	flags.StringVar(&opts.cachePath, "cache-path", "", "Path to the issue cache (default ~/.cache/gh-issues-stats)")
	flags.StringVar(&opts.refresh, "refresh", "", "Refresh interval, e.g. 30minutes, 2.5hours, 1day (default 24hours)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose/debug logging")

	cmd.AddCommand(
		newYearlyCmd(opts),
		newMonthlyCmd(opts),
		newLabelsCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// loadConfig reads the configuration file and applies the command line overrides
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configFile)
	if err != nil {
		return nil, err
	}

	if o.cachePath != "" {
		cfg.CachePath = o.cachePath
	}
	if o.refresh != "" {
		cfg.Refresh = o.refresh
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withService opens the issue service of a repository for the duration of fn
func (o *rootOptions) withService(cmd *cobra.Command, repository string, fn func(context.Context, *issues.Service) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	logger := o.logger(cmd.ErrOrStderr())

	opts, err := cfg.Options(repository, logger)
	if err != nil {
		return err
	}

	fetcher, err := o.newFetcher(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	return issues.WithService(ctx, opts, fetcher, func(svc *issues.Service) error {
		return fn(ctx, svc)
	})
}

// newFetcher builds the GitHub client selected by the configuration
func newFetcher(cfg *config.Config, logger *slog.Logger) (sync.Fetcher, error) {
	if cfg.API == config.APIGraphQL {
		return api.NewGraphQLClient(cfg.GitHubToken, logger)
	}
	return api.NewGitHubClient(cfg.GitHubToken, logger)
}

// errorMessage turns an error into the message shown to the user
func errorMessage(err error) string {
	var fetchErr *api.FetchError

	switch {
	case errors.Is(err, stats.ErrNoData):
		return "No issues found."
	case errors.Is(err, context.Canceled):
		return "Interrupted."
	case errors.As(err, &fetchErr) && fetchErr.Kind == api.KindNotFound:
		return fmt.Sprintf("Repository '%s' not found.", fetchErr.Repository)
	default:
		return err.Error()
	}
}

func bailout(w io.Writer, err error) {
	color.New(color.FgRed, color.Bold).Fprintln(w, errorMessage(err))
}
