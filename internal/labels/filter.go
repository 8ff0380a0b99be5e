// Package labels selects issues by label. A requested label prefixed with
// "!" excludes issues carrying it; any other label must be present.
package labels

import (
	"strings"

	"github.com/wesm/gh-issues-stats/internal/models"
)

// ExcludePrefix marks a requested label as an exclusion
const ExcludePrefix = "!"

// Selector holds the labels an issue must carry and the labels it must not carry
type Selector struct {
	Include []string
	Exclude []string
}

// Split partitions requested labels into include and exclude sets
func Split(requested []string) Selector {
	var sel Selector
	for _, label := range requested {
		if name, ok := strings.CutPrefix(label, ExcludePrefix); ok {
			sel.Exclude = append(sel.Exclude, name)
			continue
		}
		sel.Include = append(sel.Include, label)
	}
	return sel
}

// IsEmpty reports whether the selector neither includes nor excludes anything
func (s Selector) IsEmpty() bool {
	return len(s.Include) == 0 && len(s.Exclude) == 0
}

// Match reports whether the issue has every included label and none of the excluded ones
func (s Selector) Match(issue models.Issue) bool {
	for _, label := range s.Include {
		if !issue.HasLabel(label) {
			return false
		}
	}
	for _, label := range s.Exclude {
		if issue.HasLabel(label) {
			return false
		}
	}
	return true
}

// Filter returns the issues matching the requested labels. No requested
// labels returns the input unchanged.
func Filter(issues []models.Issue, requested []string) []models.Issue {
	if len(requested) == 0 {
		return issues
	}

	sel := Split(requested)
	filtered := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if sel.Match(issue) {
			filtered = append(filtered, issue)
		}
	}
	return filtered
}
