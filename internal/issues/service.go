package issues

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wesm/gh-issues-stats/internal/db"
	"github.com/wesm/gh-issues-stats/internal/labels"
	"github.com/wesm/gh-issues-stats/internal/models"
	"github.com/wesm/gh-issues-stats/internal/stats"
	"github.com/wesm/gh-issues-stats/internal/sync"
)

// DatabaseFile is the name of the per-repository issue store
const DatabaseFile = "issues.db"

// Options configures a Service
type Options struct {
	// Repository in the format "owner/name"
	Repository string
	// CachePath is the root directory of the per-repository stores
	CachePath string
	// Refresh is the minimum time between two syncs. Zero syncs on every read.
	Refresh time.Duration
	Logger  *slog.Logger
	// Clock replaces time.Now when set
	Clock func() time.Time
}

// Service answers lifecycle questions about the issues of one repository,
// syncing the local store with GitHub before every read when it is stale
type Service struct {
	repository string
	database   *db.DB
	syncer     *sync.Syncer
	logger     *slog.Logger
}

// DatabasePath returns the location of a repository's store below cachePath
func DatabasePath(cachePath, repository string) (string, error) {
	owner, name, err := models.ParseRepositoryString(repository)
	if err != nil {
		return "", err
	}
	return filepath.Join(cachePath, owner, name, DatabaseFile), nil
}

// Open opens the store of a repository, creating it when needed. A repository
// without a store is checked through the fetcher first so that unknown or
// inaccessible repositories never leave an empty store behind.
func Open(ctx context.Context, opts Options, fetcher sync.Fetcher) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dbPath, err := DatabasePath(opts.CachePath, opts.Repository)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		logger.Debug("checking repository before creating store", "repository", opts.Repository, "path", dbPath)
		if err := fetcher.CheckRepository(ctx, opts.Repository); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	database, err := db.New(dbPath)
	if err != nil {
		return nil, err
	}

	if err := database.Initialize(ctx); err != nil {
		database.Close()
		return nil, err
	}

	syncOpts := []sync.Option{sync.WithLogger(logger)}
	if opts.Clock != nil {
		syncOpts = append(syncOpts, sync.WithClock(opts.Clock))
	}

	return &Service{
		repository: opts.Repository,
		database:   database,
		syncer:     sync.New(database, fetcher, opts.Repository, opts.Refresh, syncOpts...),
		logger:     logger.With("repository", opts.Repository),
	}, nil
}

// WithService opens a Service, runs fn and closes the Service on every exit path
func WithService(ctx context.Context, opts Options, fetcher sync.Fetcher, fn func(*Service) error) (err error) {
	svc, err := Open(ctx, opts, fetcher)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(svc)
}

// Close releases the store
func (s *Service) Close() error {
	return s.database.Close()
}

// Repository returns the repository the service reads
func (s *Service) Repository() string {
	return s.repository
}

// Sync brings the store up to date when it is stale
func (s *Service) Sync(ctx context.Context) (*sync.Result, error) {
	return s.syncer.EnsureFresh(ctx)
}

// Labels returns every label used by the repository's issues, sorted
func (s *Service) Labels(ctx context.Context) ([]string, error) {
	if _, err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s.database.AllLabels(ctx)
}

// AllIssues returns every issue, most recently created first
func (s *Service) AllIssues(ctx context.Context) ([]models.Issue, error) {
	if _, err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s.database.AllIssues(ctx)
}

// FilteredByLabels returns the issues matching the label request. Labels
// prefixed with "!" exclude issues carrying them.
func (s *Service) FilteredByLabels(ctx context.Context, requested []string) ([]models.Issue, error) {
	all, err := s.AllIssues(ctx)
	if err != nil {
		return nil, err
	}
	return labels.Filter(all, requested), nil
}

// AllAverageClosingTime returns the mean closing time of all closed issues in seconds
func (s *Service) AllAverageClosingTime(ctx context.Context) (float64, error) {
	return s.AverageClosingTimeFilteredByLabels(ctx, nil)
}

// AverageClosingTimeFilteredByLabels returns the mean closing time in seconds
// of the closed issues matching the label request
func (s *Service) AverageClosingTimeFilteredByLabels(ctx context.Context, requested []string) (float64, error) {
	filtered, err := s.FilteredByLabels(ctx, requested)
	if err != nil {
		return 0, err
	}
	return stats.AverageClosingTime(stats.Closed(filtered)), nil
}

// AllMedianClosingTime returns the median closing time of all closed issues in seconds
func (s *Service) AllMedianClosingTime(ctx context.Context) (float64, error) {
	return s.MedianClosingTimeFilteredByLabels(ctx, nil)
}

// MedianClosingTimeFilteredByLabels returns the median closing time in
// seconds of the closed issues matching the label request
func (s *Service) MedianClosingTimeFilteredByLabels(ctx context.Context, requested []string) (float64, error) {
	filtered, err := s.FilteredByLabels(ctx, requested)
	if err != nil {
		return 0, err
	}
	return stats.MedianClosingTime(stats.Closed(filtered)), nil
}

// PerYear groups the issues matching the label request by year, most recent
// first. It returns stats.ErrNoData when no issue matches.
func (s *Service) PerYear(ctx context.Context, requested []string, withStats bool) ([]stats.Bucket, error) {
	filtered, err := s.FilteredByLabels(ctx, requested)
	if err != nil {
		return nil, err
	}
	return stats.GroupByPeriod(filtered, stats.Year, withStats)
}

// PerMonth groups the issues created in year and matching the label request
// by month, most recent first. It returns stats.ErrNoData when no issue
// matches.
func (s *Service) PerMonth(ctx context.Context, year int, requested []string, withStats bool) ([]stats.Bucket, error) {
	filtered, err := s.FilteredByLabels(ctx, requested)
	if err != nil {
		return nil, err
	}

	inYear := stats.InYear(filtered, year)
	s.logger.Debug("grouping issues by month", "year", year, "count", len(inYear))
	return stats.GroupByPeriod(inYear, stats.Month, withStats)
}
