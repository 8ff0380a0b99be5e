package models

import (
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of an issue
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Issue represents the lifecycle summary of a GitHub issue
type Issue struct {
	// ID is assigned by the local store, zero until the issue has been stored
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	State     State      `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	Labels    []string   `json:"labels"`
	URL       string     `json:"url"`
}

// IsClosed reports whether the issue is closed and carries a closing time
func (i Issue) IsClosed() bool {
	return i.State == StateClosed && i.ClosedAt != nil
}

// CloseDuration returns the time from creation to closing, zero for open issues
func (i Issue) CloseDuration() time.Duration {
	if !i.IsClosed() {
		return 0
	}
	return i.ClosedAt.Sub(i.CreatedAt)
}

// HasLabel reports whether the issue carries the given label
func (i Issue) HasLabel(name string) bool {
	for _, label := range i.Labels {
		if label == name {
			return true
		}
	}
	return false
}

// SyncMetadata tracks the last successful sync of the local store
type SyncMetadata struct {
	Repository string
	LastFetch  *time.Time
}

// ParseRepositoryString parses a repository string in the format "owner/name"
func ParseRepositoryString(repoStr string) (string, string, error) {
	parts := strings.Split(repoStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", repoStr)
	}
	return parts[0], parts[1], nil
}

// UniqueLabels drops duplicate and empty label names, keeping the first occurrence
func UniqueLabels(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	labels := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		labels = append(labels, name)
	}
	return labels
}
