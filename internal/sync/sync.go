package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/wesm/gh-issues-stats/internal/models"
)

// DefaultRefresh is the refresh interval used when none is configured
const DefaultRefresh = 24 * time.Hour

// Fetcher gets issues from GitHub. Implementations skip pull requests and
// return fully paginated results.
type Fetcher interface {
	CheckRepository(ctx context.Context, repository string) error
	FetchIssues(ctx context.Context, repository string, since *time.Time) ([]models.Issue, error)
}

// Store is the local issue store the syncer keeps up to date
type Store interface {
	UpsertIssues(ctx context.Context, issues []models.Issue, fetchedAt time.Time) error
	CountIssues(ctx context.Context) (int, error)
	LastFetch(ctx context.Context) (*time.Time, error)
}

// Mode describes what a sync did
type Mode string

const (
	ModeNone        Mode = "none"
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Result reports the outcome of EnsureFresh
type Result struct {
	Mode     Mode
	Fetched  int
	Stored   bool
	Metadata models.SyncMetadata
}

// Syncer keeps the local store of one repository fresh
type Syncer struct {
	store      Store
	fetcher    Fetcher
	repository string
	refresh    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Syncer
type Option func(*Syncer)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new syncer. A zero refresh makes every check stale, a
// negative one falls back to DefaultRefresh.
func New(store Store, fetcher Fetcher, repository string, refresh time.Duration, opts ...Option) *Syncer {
	if refresh < 0 {
		refresh = DefaultRefresh
	}

	s := &Syncer{
		store:      store,
		fetcher:    fetcher,
		repository: repository,
		refresh:    refresh,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("repository", repository)

	return s
}

// Refresh returns the refresh interval
func (s *Syncer) Refresh() time.Duration {
	return s.refresh
}

// NeedsUpdate reports whether the store is stale: never synced, empty, or
// last synced at least one refresh interval ago
func (s *Syncer) NeedsUpdate(ctx context.Context) (bool, error) {
	lastFetch, err := s.store.LastFetch(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get last fetch time for %s: %w", s.repository, err)
	}

	return s.isStale(ctx, lastFetch)
}

func (s *Syncer) isStale(ctx context.Context, lastFetch *time.Time) (bool, error) {
	if lastFetch == nil {
		return true, nil
	}

	count, err := s.store.CountIssues(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count issues for %s: %w", s.repository, err)
	}
	if count == 0 {
		return true, nil
	}

	return s.now().Sub(*lastFetch) >= s.refresh, nil
}

// EnsureFresh refreshes the store when it is stale. A store that was never
// synced gets every issue; otherwise only issues updated since the last fetch
// are requested. An empty incremental result leaves the store and its last
// fetch time untouched. Fetch errors are returned as they are and never
// reach the store.
func (s *Syncer) EnsureFresh(ctx context.Context) (*Result, error) {
	lastFetch, err := s.store.LastFetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get last fetch time for %s: %w", s.repository, err)
	}

	result := &Result{
		Mode:     ModeNone,
		Metadata: models.SyncMetadata{Repository: s.repository, LastFetch: lastFetch},
	}

	stale, err := s.isStale(ctx, lastFetch)
	if err != nil {
		return nil, err
	}
	if !stale {
		s.logger.Debug("issues are fresh", "last_fetch", lastFetch)
		return result, nil
	}

	// Captured before fetching so issues changed during the fetch are picked
	// up by the next incremental sync.
	fetchedAt := s.now()

	if lastFetch == nil {
		result.Mode = ModeFull
		s.logger.Info("fetching all issues")
	} else {
		result.Mode = ModeIncremental
		s.logger.Info("fetching issues updated since last sync", "since", lastFetch.Format(time.RFC3339))
	}

	issues, err := s.fetcher.FetchIssues(ctx, s.repository, lastFetch)
	if err != nil {
		return nil, err
	}
	result.Fetched = len(issues)

	if result.Mode == ModeIncremental && len(issues) == 0 {
		s.logger.Info("no issues to sync")
		return result, nil
	}

	if err := s.store.UpsertIssues(ctx, issues, fetchedAt); err != nil {
		return nil, fmt.Errorf("failed to store issues for %s: %w", s.repository, err)
	}
	result.Stored = true
	result.Metadata.LastFetch = &fetchedAt

	s.logger.Info("synced issues", "mode", string(result.Mode), "count", len(issues))
	return result, nil
}
