package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/gh-issues-stats/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := New(filepath.Join(t.TempDir(), "issues.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.Initialize(context.Background()))
	return database
}

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(value string) *time.Time {
	t := ts(value)
	return &t
}

func sampleIssues() []models.Issue {
	return []models.Issue{
		{
			Number:    1,
			State:     models.StateClosed,
			CreatedAt: ts("2011-04-22T13:33:48Z"),
			ClosedAt:  tsp("2012-01-15T09:20:10Z"),
			Labels:    []string{"enhancement"},
			URL:       "https://github.com/octodog/bark/issues/1",
		},
		{
			Number:    2,
			State:     models.StateOpen,
			CreatedAt: ts("2011-08-10T08:00:00Z"),
			Labels:    []string{"bug", "help wanted"},
			URL:       "https://github.com/octodog/bark/issues/2",
		},
		{
			Number:    3,
			State:     models.StateOpen,
			CreatedAt: ts("2012-02-01T10:00:00Z"),
			URL:       "https://github.com/octodog/bark/issues/3",
		},
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	database := newTestDB(t)
	assert.NoError(t, database.Initialize(context.Background()))
}

func TestEmptyStore(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	count, err := database.CountIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	lastFetch, err := database.LastFetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, lastFetch)

	issues, err := database.AllIssues(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)

	labels, err := database.AllLabels(ctx)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestUpsertIssues_InsertsAndRecordsLastFetch(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	fetchedAt := ts("2024-03-01T12:00:00Z")

	require.NoError(t, database.UpsertIssues(ctx, sampleIssues(), fetchedAt))

	count, err := database.CountIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	lastFetch, err := database.LastFetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, lastFetch)
	assert.True(t, fetchedAt.Equal(*lastFetch))

	raw, ok, err := database.Metadata(ctx, MetadataLastFetch)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-03-01T12:00:00Z", raw)
}

func TestAllIssues_OrderedByCreationDescending(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	require.NoError(t, database.UpsertIssues(ctx, sampleIssues(), time.Now()))

	issues, err := database.AllIssues(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 3)

	assert.Equal(t, []int{3, 2, 1}, []int{issues[0].Number, issues[1].Number, issues[2].Number})

	oldest := issues[2]
	assert.NotZero(t, oldest.ID)
	assert.Equal(t, models.StateClosed, oldest.State)
	assert.Equal(t, []string{"enhancement"}, oldest.Labels)
	assert.Equal(t, "https://github.com/octodog/bark/issues/1", oldest.URL)
	assert.True(t, ts("2011-04-22T13:33:48Z").Equal(oldest.CreatedAt))
	require.NotNil(t, oldest.ClosedAt)
	assert.True(t, ts("2012-01-15T09:20:10Z").Equal(*oldest.ClosedAt))

	assert.Nil(t, issues[1].ClosedAt)
	assert.Equal(t, []string{}, issues[0].Labels)
}

func TestUpsertIssues_UpdatesByNumberAndKeepsID(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	require.NoError(t, database.UpsertIssues(ctx, sampleIssues(), ts("2024-03-01T12:00:00Z")))

	before, err := database.AllIssues(ctx)
	require.NoError(t, err)
	originalID := before[1].ID

	updated := models.Issue{
		Number:    2,
		State:     models.StateClosed,
		CreatedAt: ts("2011-08-10T08:00:00Z"),
		ClosedAt:  tsp("2011-09-09T08:00:00Z"),
		Labels:    []string{"bug"},
		URL:       "https://github.com/octodog/bark/issues/2",
	}
	require.NoError(t, database.UpsertIssues(ctx, []models.Issue{updated}, ts("2024-03-03T12:00:00Z")))

	after, err := database.AllIssues(ctx)
	require.NoError(t, err)
	require.Len(t, after, 3)

	issue := after[1]
	assert.Equal(t, originalID, issue.ID)
	assert.Equal(t, models.StateClosed, issue.State)
	require.NotNil(t, issue.ClosedAt)
	assert.Equal(t, []string{"bug"}, issue.Labels)

	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[2], after[2])

	lastFetch, err := database.LastFetch(ctx)
	require.NoError(t, err)
	assert.True(t, ts("2024-03-03T12:00:00Z").Equal(*lastFetch))
}

func TestUpsertIssues_Idempotent(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	fetchedAt := ts("2024-03-01T12:00:00Z")

	require.NoError(t, database.UpsertIssues(ctx, sampleIssues(), fetchedAt))
	first, err := database.AllIssues(ctx)
	require.NoError(t, err)

	require.NoError(t, database.UpsertIssues(ctx, sampleIssues(), fetchedAt))
	second, err := database.AllIssues(ctx)
	require.NoError(t, err)

	count, err := database.CountIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, first, second)
}

func TestUpsertIssues_RollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	committed := ts("2024-03-01T12:00:00Z")
	require.NoError(t, database.UpsertIssues(ctx, sampleIssues()[:1], committed))

	_, err := database.ExecContext(ctx, `
	CREATE TRIGGER reject_issue BEFORE INSERT ON issues
	WHEN NEW.number = 3
	BEGIN
		SELECT RAISE(ABORT, 'rejected');
	END;
	`)
	require.NoError(t, err)

	err = database.UpsertIssues(ctx, sampleIssues(), ts("2024-03-05T12:00:00Z"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save issue #3")

	count, err := database.CountIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	lastFetch, err := database.LastFetch(ctx)
	require.NoError(t, err)
	assert.True(t, committed.Equal(*lastFetch))
}

func TestAllLabels_Union(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	require.NoError(t, database.UpsertIssues(ctx, sampleIssues(), time.Now()))

	labels, err := database.AllLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bug", "enhancement", "help wanted"}, labels)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	_, ok, err := database.Metadata(ctx, "schema")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, database.SetMetadata(ctx, "schema", "1"))
	require.NoError(t, database.SetMetadata(ctx, "schema", "2"))

	value, ok, err := database.Metadata(ctx, "schema")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", value)
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "issues.db")

	database, err := New(path)
	require.NoError(t, err)
	require.NoError(t, database.Initialize(ctx))
	require.NoError(t, database.UpsertIssues(ctx, sampleIssues(), ts("2024-03-01T12:00:00Z")))
	require.NoError(t, database.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Initialize(ctx))

	count, err := reopened.CountIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, path, reopened.Path())
}
