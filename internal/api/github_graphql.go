package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/wesm/gh-issues-stats/internal/models"
)

// GraphQLClient fetches issues through the GitHub GraphQL API
type GraphQLClient struct {
	client *githubv4.Client
	logger *slog.Logger
}

// NewGraphQLClient creates a new GraphQL client. The GraphQL API requires a token.
func NewGraphQLClient(token string, logger *slog.Logger) (*GraphQLClient, error) {
	if token == "" {
		return nil, errors.New("the GraphQL API requires a GitHub token")
	}

	httpClient, err := newHTTPClient(token)
	if err != nil {
		return nil, err
	}

	return &GraphQLClient{
		client: githubv4.NewClient(httpClient),
		logger: orDiscard(logger),
	}, nil
}

// Issue represents a GitHub issue in GraphQL
type Issue struct {
	Number    githubv4.Int
	State     githubv4.IssueState
	CreatedAt githubv4.DateTime
	ClosedAt  *githubv4.DateTime
	URL       githubv4.String
	Labels    struct {
		Nodes []struct {
			Name githubv4.String
		}
		PageInfo struct {
			HasNextPage githubv4.Boolean
		}
	} `graphql:"labels(first: 100)"`
}

// issuesQuery fetches one page of a repository's issues
type issuesQuery struct {
	Repository struct {
		Issues struct {
			Nodes    []Issue
			PageInfo struct {
				EndCursor   githubv4.String
				HasNextPage githubv4.Boolean
			}
		} `graphql:"issues(first: $issuesPerPage, after: $issuesEndCursor, filterBy: $filterBy, orderBy: $orderBy)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// CheckRepository verifies that the repository exists and is accessible
func (c *GraphQLClient) CheckRepository(ctx context.Context, repository string) error {
	owner, name, err := models.ParseRepositoryString(repository)
	if err != nil {
		return err
	}

	var query struct {
		Repository struct {
			ID githubv4.ID
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]interface{}{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(name),
	}

	if err := c.client.Query(ctx, &query, variables); err != nil {
		return classifyGraphQL(repository, err)
	}

	return nil
}

// FetchIssues gets all issues of a repository, optionally only those updated
// since a specific time. The issues connection never contains pull requests.
func (c *GraphQLClient) FetchIssues(ctx context.Context, repository string, since *time.Time) ([]models.Issue, error) {
	owner, name, err := models.ParseRepositoryString(repository)
	if err != nil {
		return nil, err
	}

	filter := githubv4.IssueFilters{}
	if since != nil {
		filter.Since = githubv4.NewDateTime(githubv4.DateTime{Time: *since})
	}

	variables := map[string]interface{}{
		"owner":           githubv4.String(owner),
		"name":            githubv4.String(name),
		"issuesPerPage":   githubv4.Int(perPage),
		"issuesEndCursor": (*githubv4.String)(nil),
		"filterBy":        filter,
		"orderBy": githubv4.IssueOrder{
			Field:     githubv4.IssueOrderFieldCreatedAt,
			Direction: githubv4.OrderDirectionDesc,
		},
	}

	var allIssues []models.Issue
	for {
		var query issuesQuery
		if err := c.client.Query(ctx, &query, variables); err != nil {
			return nil, classifyGraphQL(repository, err)
		}

		for _, issue := range query.Repository.Issues.Nodes {
			if issue.Labels.PageInfo.HasNextPage {
				c.logger.Debug("issue labels truncated", "repository", repository, "number", int(issue.Number), "kept", len(issue.Labels.Nodes))
			}
			allIssues = append(allIssues, convertGraphQLIssue(issue))
		}

		c.logger.Debug("fetched issues page", "repository", repository, "total", len(allIssues))

		if !bool(query.Repository.Issues.PageInfo.HasNextPage) {
			break
		}
		variables["issuesEndCursor"] = githubv4.NewString(query.Repository.Issues.PageInfo.EndCursor)
	}

	return allIssues, nil
}

func convertGraphQLIssue(issue Issue) models.Issue {
	var closedAt *time.Time
	if issue.ClosedAt != nil {
		t := issue.ClosedAt.Time.UTC()
		closedAt = &t
	}

	names := make([]string, 0, len(issue.Labels.Nodes))
	for _, label := range issue.Labels.Nodes {
		names = append(names, string(label.Name))
	}

	return models.Issue{
		Number:    int(issue.Number),
		State:     models.State(strings.ToLower(string(issue.State))),
		CreatedAt: issue.CreatedAt.Time.UTC(),
		ClosedAt:  closedAt,
		Labels:    models.UniqueLabels(names),
		URL:       string(issue.URL),
	}
}

// classifyGraphQL maps GraphQL failures onto fetch error kinds. githubv4 only
// exposes the HTTP status and the GraphQL error messages as text.
func classifyGraphQL(repository string, err error) error {
	kind := KindOther

	msg := err.Error()
	switch {
	case strings.Contains(msg, "Could not resolve to a Repository"):
		kind = KindNotFound
	case strings.Contains(msg, "401 Unauthorized"), strings.Contains(msg, "403 Forbidden"):
		kind = KindForbidden
	}

	return &FetchError{Kind: kind, Repository: repository, Err: err}
}
