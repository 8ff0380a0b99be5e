package issues

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/gh-issues-stats/internal/api"
	"github.com/wesm/gh-issues-stats/internal/models"
	"github.com/wesm/gh-issues-stats/internal/stats"
)

const repository = "octodog/bark"

// fakeFetcher serves canned responses and records every call
type fakeFetcher struct {
	responses [][]models.Issue
	fetchErr  error
	checkErr  error

	checks int
	since  []*time.Time
}

func (f *fakeFetcher) CheckRepository(ctx context.Context, repo string) error {
	f.checks++
	return f.checkErr
}

func (f *fakeFetcher) FetchIssues(ctx context.Context, repo string, since *time.Time) ([]models.Issue, error) {
	f.since = append(f.since, since)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.responses) == 0 {
		return []models.Issue{}, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next, nil
}

// clock is a settable time source
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func closedIssue(number int, created, closed string, labels ...string) models.Issue {
	closedAt := ts(closed)
	return models.Issue{
		Number:    number,
		State:     models.StateClosed,
		CreatedAt: ts(created),
		ClosedAt:  &closedAt,
		Labels:    labels,
		URL:       "https://github.com/octodog/bark/issues/" + strconv.Itoa(number),
	}
}

func openIssue(number int, created string, labels ...string) models.Issue {
	return models.Issue{
		Number:    number,
		State:     models.StateOpen,
		CreatedAt: ts(created),
		Labels:    labels,
	}
}

func barkIssues() []models.Issue {
	return []models.Issue{
		closedIssue(4714, "2011-09-01T00:00:00Z", "2012-08-20T00:00:00Z", "bug"),
		closedIssue(4713, "2011-08-10T00:00:00Z", "2011-09-09T00:00:00Z", "bug", "help wanted"),
		closedIssue(4712, "2011-05-01T00:00:00Z", "2012-01-24T00:00:00Z", "bug"),
		closedIssue(4711, "2011-04-22T13:33:48Z", "2012-01-15T09:20:10Z", "enhancement"),
	}
}

func periods(buckets []stats.Bucket) []int {
	keys := make([]int, 0, len(buckets))
	for _, b := range buckets {
		keys = append(keys, b.Period)
	}
	return keys
}

func openTestService(t *testing.T, cachePath string, fetcher *fakeFetcher, c *clock) *Service {
	t.Helper()

	svc, err := Open(context.Background(), Options{
		Repository: repository,
		CachePath:  cachePath,
		Refresh:    24 * time.Hour,
		Clock:      c.Now,
	}, fetcher)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestDatabasePath(t *testing.T) {
	path, err := DatabasePath("/cache", repository)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cache", "octodog", "bark", "issues.db"), path)

	_, err = DatabasePath("/cache", "octodog")
	assert.Error(t, err)
}

func TestService_BarkScenario(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{responses: [][]models.Issue{barkIssues()}}
	svc := openTestService(t, t.TempDir(), fetcher, &clock{now: ts("2024-03-01T12:00:00Z")})

	assert.Equal(t, 1, fetcher.checks)

	years, err := svc.PerYear(ctx, nil, true)
	require.NoError(t, err)
	assert.Equal(t, []int{2012, 2011}, periods(years))
	assert.Len(t, years[0].Closed, 3)
	assert.Len(t, years[1].Created, 4)
	require.NotNil(t, years[1].Stats)

	average, err := svc.AllAverageClosingTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 230, stats.SecondsToDays(average))

	median, err := svc.AllMedianClosingTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 268, stats.SecondsToDays(median))

	withoutEnhancements, err := svc.FilteredByLabels(ctx, []string{"!enhancement"})
	require.NoError(t, err)
	assert.Len(t, withoutEnhancements, 3)

	bugMedian, err := svc.MedianClosingTimeFilteredByLabels(ctx, []string{"bug", "!help wanted"})
	require.NoError(t, err)
	assert.Equal(t, 311, stats.SecondsToDays(bugMedian))

	helpAverage, err := svc.AverageClosingTimeFilteredByLabels(ctx, []string{"help wanted"})
	require.NoError(t, err)
	assert.Equal(t, 30, stats.SecondsToDays(helpAverage))

	months, err := svc.PerMonth(ctx, 2011, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []int{9, 8, 5, 4, 1}, periods(months))

	helpMonths, err := svc.PerMonth(ctx, 2011, []string{"help wanted"}, true)
	require.NoError(t, err)
	assert.Equal(t, []int{9, 8}, periods(helpMonths))

	labels, err := svc.Labels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bug", "enhancement", "help wanted"}, labels)

	// Only the first read went to the network.
	require.Len(t, fetcher.since, 1)
	assert.Nil(t, fetcher.since[0])
}

func TestService_NoData(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{responses: [][]models.Issue{barkIssues()}}
	svc := openTestService(t, t.TempDir(), fetcher, &clock{now: ts("2024-03-01T12:00:00Z")})

	_, err := svc.PerYear(ctx, []string{"wontfix"}, true)
	assert.ErrorIs(t, err, stats.ErrNoData)

	_, err = svc.PerMonth(ctx, 2015, nil, true)
	assert.ErrorIs(t, err, stats.ErrNoData)

	average, err := svc.AverageClosingTimeFilteredByLabels(ctx, []string{"wontfix"})
	require.NoError(t, err)
	assert.Zero(t, average)

	median, err := svc.MedianClosingTimeFilteredByLabels(ctx, []string{"wontfix"})
	require.NoError(t, err)
	assert.Zero(t, median)
}

func TestService_IncrementalUpdateAfterRefresh(t *testing.T) {
	ctx := context.Background()
	cachePath := t.TempDir()
	c := &clock{now: ts("2024-03-01T12:00:00Z")}

	initial := append(barkIssues(), openIssue(4715, "2012-02-01T00:00:00Z", "bug"))
	updated := closedIssue(4715, "2012-02-01T00:00:00Z", "2012-02-11T00:00:00Z", "bug")

	fetcher := &fakeFetcher{responses: [][]models.Issue{initial, {updated}}}
	svc := openTestService(t, cachePath, fetcher, c)

	years, err := svc.PerYear(ctx, nil, false)
	require.NoError(t, err)
	assert.Len(t, years[0].Created, 1)
	assert.Len(t, years[0].Closed, 3)
	assert.Len(t, years[0].Open, 1)

	// Still fresh a day minus one hour later.
	c.now = ts("2024-03-02T11:00:00Z")
	_, err = svc.AllIssues(ctx)
	require.NoError(t, err)
	require.Len(t, fetcher.since, 1)

	c.now = ts("2024-03-03T12:00:00Z")
	years, err = svc.PerYear(ctx, nil, true)
	require.NoError(t, err)

	require.Len(t, fetcher.since, 2)
	require.NotNil(t, fetcher.since[1])
	assert.True(t, ts("2024-03-01T12:00:00Z").Equal(*fetcher.since[1]))

	assert.Len(t, years[0].Closed, 4)
	assert.Len(t, years[0].Finished, 1)
	assert.Empty(t, years[0].Open)

	all, err := svc.AllIssues(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, 4715, all[0].Number)
	assert.True(t, all[0].IsClosed())

	// An empty incremental result keeps the previous sync time.
	c.now = ts("2024-03-05T12:00:00Z")
	_, err = svc.AllIssues(ctx)
	require.NoError(t, err)
	require.Len(t, fetcher.since, 3)
	assert.True(t, ts("2024-03-03T12:00:00Z").Equal(*fetcher.since[2]))

	lastFetch, err := svc.database.LastFetch(ctx)
	require.NoError(t, err)
	assert.True(t, ts("2024-03-03T12:00:00Z").Equal(*lastFetch))
}

func TestService_FetchErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	fetchErr := &api.FetchError{Kind: api.KindOther, Repository: repository, Err: errors.New("connection reset")}
	fetcher := &fakeFetcher{fetchErr: fetchErr}
	svc := openTestService(t, t.TempDir(), fetcher, &clock{now: ts("2024-03-01T12:00:00Z")})

	_, err := svc.PerYear(ctx, nil, true)
	require.Error(t, err)
	assert.NotErrorIs(t, err, stats.ErrNoData)

	var fe *api.FetchError
	assert.True(t, errors.As(err, &fe))

	count, err := svc.database.CountIssues(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpen_UnknownRepositoryLeavesNoStore(t *testing.T) {
	cachePath := t.TempDir()
	notFound := &api.FetchError{Kind: api.KindNotFound, Repository: repository, Err: errors.New("404")}
	fetcher := &fakeFetcher{checkErr: notFound}

	_, err := Open(context.Background(), Options{Repository: repository, CachePath: cachePath}, fetcher)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNotFound)

	_, statErr := os.Stat(filepath.Join(cachePath, "octodog", "bark", DatabaseFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpen_ExistingStoreSkipsRepositoryCheck(t *testing.T) {
	cachePath := t.TempDir()
	fetcher := &fakeFetcher{}

	require.NoError(t, WithService(context.Background(), Options{Repository: repository, CachePath: cachePath}, fetcher, func(svc *Service) error {
		assert.Equal(t, repository, svc.Repository())
		return nil
	}))
	require.NoError(t, WithService(context.Background(), Options{Repository: repository, CachePath: cachePath}, fetcher, func(svc *Service) error {
		return nil
	}))

	assert.Equal(t, 1, fetcher.checks)
}

func TestWithService_ReturnsCallbackError(t *testing.T) {
	callbackErr := errors.New("render failed")
	err := WithService(context.Background(), Options{Repository: repository, CachePath: t.TempDir()}, &fakeFetcher{}, func(svc *Service) error {
		return callbackErr
	})
	assert.ErrorIs(t, err, callbackErr)
}

func TestOpen_InvalidRepository(t *testing.T) {
	_, err := Open(context.Background(), Options{Repository: "bark", CachePath: t.TempDir()}, &fakeFetcher{})
	assert.Error(t, err)
}

func TestService_ZeroRefreshSyncsOnEveryRead(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: ts("2024-03-01T12:00:00Z")}
	fetcher := &fakeFetcher{responses: [][]models.Issue{barkIssues()}}

	svc, err := Open(ctx, Options{Repository: repository, CachePath: t.TempDir(), Clock: c.Now}, fetcher)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	_, err = svc.AllIssues(ctx)
	require.NoError(t, err)

	c.now = ts("2024-03-01T13:00:00Z")
	all, err := svc.AllIssues(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.Len(t, fetcher.since, 2)
	assert.Nil(t, fetcher.since[0])
	require.NotNil(t, fetcher.since[1])
	assert.True(t, ts("2024-03-01T12:00:00Z").Equal(*fetcher.since[1]))
}
