package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/wesm/gh-issues-stats/internal/models"
)

const perPage = 100

// GitHubClient fetches issues through the GitHub REST API
type GitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient creates a new GitHub API client. The token is optional for
// public repositories.
func NewGitHubClient(token string, logger *slog.Logger) (*GitHubClient, error) {
	httpClient, err := newHTTPClient(token)
	if err != nil {
		return nil, err
	}

	return &GitHubClient{
		client: github.NewClient(httpClient),
		logger: orDiscard(logger),
	}, nil
}

// newHTTPClient builds a client that waits out secondary rate limits and,
// given a token, authenticates every request
func newHTTPClient(token string) (*http.Client, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}

	if token == "" {
		return &http.Client{Transport: rateLimitWaiter}, nil
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}, nil
}

// CheckRepository verifies that the repository exists and is accessible
func (c *GitHubClient) CheckRepository(ctx context.Context, repository string) error {
	owner, name, err := models.ParseRepositoryString(repository)
	if err != nil {
		return err
	}

	if _, _, err := c.client.Repositories.Get(ctx, owner, name); err != nil {
		return classifyREST(repository, err)
	}

	return nil
}

// FetchIssues gets all issues of a repository, optionally only those updated
// since a specific time. Pull requests are skipped.
func (c *GitHubClient) FetchIssues(ctx context.Context, repository string, since *time.Time) ([]models.Issue, error) {
	owner, name, err := models.ParseRepositoryString(repository)
	if err != nil {
		return nil, err
	}

	opts := &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "created",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}
	if since != nil {
		opts.Since = *since
	}

	var allIssues []models.Issue
	for {
		issues, resp, err := c.client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, classifyREST(repository, err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			allIssues = append(allIssues, ConvertGitHubIssue(issue))
		}

		c.logger.Debug("fetched issues page", "repository", repository, "page", opts.Page, "total", len(allIssues))

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allIssues, nil
}

// ConvertGitHubIssue converts a GitHub issue to our model
func ConvertGitHubIssue(issue *github.Issue) models.Issue {
	var closedAt *time.Time
	if issue.ClosedAt != nil {
		t := issue.ClosedAt.Time.UTC()
		closedAt = &t
	}

	names := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		names = append(names, label.GetName())
	}

	return models.Issue{
		Number:    issue.GetNumber(),
		State:     models.State(issue.GetState()),
		CreatedAt: issue.GetCreatedAt().Time.UTC(),
		ClosedAt:  closedAt,
		Labels:    models.UniqueLabels(names),
		URL:       issue.GetHTMLURL(),
	}
}

func classifyREST(repository string, err error) error {
	kind := KindOther

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			kind = KindNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = KindForbidden
		}
	}

	return &FetchError{Kind: kind, Repository: repository, Err: err}
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
