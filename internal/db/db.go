package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/gh-issues-stats/internal/models"
)

// MetadataLastFetch is the metadata key holding the time of the last successful fetch
const MetadataLastFetch = "last_fetch"

// timeLayout is the ISO-8601 layout used for every persisted timestamp
const timeLayout = time.RFC3339

// DB represents the database connection
type DB struct {
	*sqlx.DB
	path string
}

// issueRow is the persisted form of an issue
type issueRow struct {
	ID        int64          `db:"id"`
	Number    int            `db:"number"`
	State     string         `db:"state"`
	CreatedAt string         `db:"created_at"`
	ClosedAt  sql.NullString `db:"closed_at"`
	URL       string         `db:"url"`
	Labels    sql.NullString `db:"labels"`
}

// New creates a new database connection. The file is locked exclusively for
// the lifetime of the connection.
func New(dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_locking_mode=EXCLUSIVE&_busy_timeout=5000", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, path: dbPath}, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY,
		created_at TEXT NOT NULL,
		closed_at TEXT,
		number INTEGER UNIQUE NOT NULL,
		url TEXT NOT NULL,
		labels TEXT,
		state TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// UpsertIssues stores a batch of issues and records fetchedAt as the last
// fetch time. Issues are matched by number; a stored issue keeps its id and
// has every other field overwritten. The batch and the metadata write are
// committed together or not at all.
func (db *DB) UpsertIssues(ctx context.Context, issues []models.Issue, fetchedAt time.Time) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO issues (number, state, created_at, closed_at, url, labels)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			state = excluded.state,
			created_at = excluded.created_at,
			closed_at = excluded.closed_at,
			url = excluded.url,
			labels = excluded.labels
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare issue upsert: %w", err)
		}
		defer stmt.Close()

		for _, issue := range issues {
			row, err := toRow(issue)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				row.Number,
				row.State,
				row.CreatedAt,
				row.ClosedAt,
				row.URL,
				row.Labels,
			); err != nil {
				return fmt.Errorf("failed to save issue #%d: %w", issue.Number, err)
			}
		}

		return setMetadata(ctx, tx, MetadataLastFetch, fetchedAt.UTC().Format(timeLayout))
	})
}

// AllIssues returns every stored issue, most recently created first
func (db *DB) AllIssues(ctx context.Context) ([]models.Issue, error) {
	var rows []issueRow
	query := `SELECT id, number, state, created_at, closed_at, url, labels FROM issues ORDER BY created_at DESC`
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	issues := make([]models.Issue, 0, len(rows))
	for _, row := range rows {
		issue, err := row.toIssue()
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}

	return issues, nil
}

// AllLabels returns the sorted union of labels across all stored issues
func (db *DB) AllLabels(ctx context.Context) ([]string, error) {
	var encoded []sql.NullString
	if err := db.SelectContext(ctx, &encoded, `SELECT labels FROM issues`); err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}

	set := make(map[string]struct{})
	for _, value := range encoded {
		labels, err := decodeLabels(value)
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			set[label] = struct{}{}
		}
	}

	labels := make([]string, 0, len(set))
	for label := range set {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	return labels, nil
}

// CountIssues returns the number of stored issues
func (db *DB) CountIssues(ctx context.Context) (int, error) {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM issues`); err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return count, nil
}

// LastFetch gets the time of the last successful fetch, nil if the store was never synced
func (db *DB) LastFetch(ctx context.Context) (*time.Time, error) {
	value, ok, err := db.Metadata(ctx, MetadataLastFetch)
	if err != nil || !ok {
		return nil, err
	}

	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last fetch time %q: %w", value, err)
	}

	return &t, nil
}

// Metadata gets a metadata value by key
func (db *DB) Metadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.GetContext(ctx, &value, `SELECT value FROM metadata WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get metadata %s: %w", key, err)
	}

	return value, true, nil
}

// SetMetadata stores a metadata value
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	return setMetadata(ctx, db, key, value)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func setMetadata(ctx context.Context, exec sqlx.ExecerContext, key, value string) error {
	query := `
	INSERT INTO metadata (key, value)
	VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value
	`

	if _, err := exec.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to update metadata %s: %w", key, err)
	}

	return nil
}

func toRow(issue models.Issue) (issueRow, error) {
	labels := issue.Labels
	if labels == nil {
		labels = []string{}
	}
	encoded, err := json.Marshal(labels)
	if err != nil {
		return issueRow{}, fmt.Errorf("failed to encode labels of issue #%d: %w", issue.Number, err)
	}

	row := issueRow{
		ID:        issue.ID,
		Number:    issue.Number,
		State:     string(issue.State),
		CreatedAt: issue.CreatedAt.UTC().Format(timeLayout),
		URL:       issue.URL,
		Labels:    sql.NullString{String: string(encoded), Valid: true},
	}
	if issue.ClosedAt != nil {
		row.ClosedAt = sql.NullString{String: issue.ClosedAt.UTC().Format(timeLayout), Valid: true}
	}

	return row, nil
}

func (row issueRow) toIssue() (models.Issue, error) {
	createdAt, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return models.Issue{}, fmt.Errorf("failed to parse created_at of issue #%d: %w", row.Number, err)
	}

	labels, err := decodeLabels(row.Labels)
	if err != nil {
		return models.Issue{}, fmt.Errorf("issue #%d: %w", row.Number, err)
	}

	issue := models.Issue{
		ID:        row.ID,
		Number:    row.Number,
		State:     models.State(row.State),
		CreatedAt: createdAt,
		URL:       row.URL,
		Labels:    labels,
	}
	if row.ClosedAt.Valid {
		closedAt, err := time.Parse(timeLayout, row.ClosedAt.String)
		if err != nil {
			return models.Issue{}, fmt.Errorf("failed to parse closed_at of issue #%d: %w", row.Number, err)
		}
		issue.ClosedAt = &closedAt
	}

	return issue, nil
}

func decodeLabels(value sql.NullString) ([]string, error) {
	labels := []string{}
	if !value.Valid || value.String == "" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(value.String), &labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	return labels, nil
}
