package stats

import (
	"errors"
	"sort"
	"time"

	"github.com/wesm/gh-issues-stats/internal/models"
)

// ErrNoData is returned when there are no issues to group
var ErrNoData = errors.New("no issues found")

// Period is the calendar granularity of a bucket
type Period int

const (
	Year Period = iota
	Month
)

// Of returns the period key of t: the calendar year or the month number 1-12
func (p Period) Of(t time.Time) int {
	t = t.UTC()
	if p == Month {
		return int(t.Month())
	}
	return t.Year()
}

func (p Period) String() string {
	if p == Month {
		return "Month"
	}
	return "Year"
}

// Bucket holds the issues attributed to one period
type Bucket struct {
	Period int `json:"period"`
	// Created were opened in the period
	Created []models.Issue `json:"created"`
	// Closed were closed in the period
	Closed []models.Issue `json:"closed"`
	// Finished were opened and closed in the period
	Finished []models.Issue `json:"finished"`
	// Open were opened in the period and are still open or were closed in another period
	Open  []models.Issue `json:"open"`
	Stats *Stats         `json:"stats,omitempty"`
}

// GroupByPeriod buckets issues by period, most recent period first. Month
// keys are only meaningful when the issues were created in a single year, see
// InYear. It returns ErrNoData for an empty list.
func GroupByPeriod(issues []models.Issue, period Period, withStats bool) ([]Bucket, error) {
	if len(issues) == 0 {
		return nil, ErrNoData
	}

	buckets := make(map[int]*Bucket)
	bucket := func(key int) *Bucket {
		b, ok := buckets[key]
		if !ok {
			b = &Bucket{
				Period:   key,
				Created:  []models.Issue{},
				Closed:   []models.Issue{},
				Finished: []models.Issue{},
				Open:     []models.Issue{},
			}
			buckets[key] = b
		}
		return b
	}

	for _, issue := range issues {
		created := period.Of(issue.CreatedAt)
		b := bucket(created)
		b.Created = append(b.Created, issue)

		if issue.ClosedAt != nil {
			cb := bucket(period.Of(*issue.ClosedAt))
			cb.Closed = append(cb.Closed, issue)
		}

		if issue.IsClosed() && period.Of(*issue.ClosedAt) == created {
			b.Finished = append(b.Finished, issue)
		} else {
			b.Open = append(b.Open, issue)
		}
	}

	keys := make([]int, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))

	result := make([]Bucket, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		if withStats {
			s := Combined(b)
			b.Stats = &s
		}
		result = append(result, *b)
	}

	return result, nil
}

// InYear returns the issues created in the given year
func InYear(issues []models.Issue, year int) []models.Issue {
	selected := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if Year.Of(issue.CreatedAt) == year {
			selected = append(selected, issue)
		}
	}
	return selected
}

// Totals summarizes a list of buckets
type Totals struct {
	Created int `json:"created"`
	Closed  int `json:"closed"`
	// Open is the net number of issues: created minus closed
	Open int `json:"open"`
}

// Sum adds up the created and closed counts of all buckets
func Sum(buckets []Bucket) Totals {
	var t Totals
	for _, b := range buckets {
		t.Created += len(b.Created)
		t.Closed += len(b.Closed)
	}
	t.Open = t.Created - t.Closed
	return t
}
