// Package stats groups issues into calendar periods and computes lifecycle
// statistics: closed-to-created ratios and average/median time to close.
package stats

import (
	"math"

	mstats "github.com/montanaflynn/stats"

	"github.com/wesm/gh-issues-stats/internal/models"
)

const secondsPerDay = 24 * 60 * 60

// Stats holds the statistics of one bucket
type Stats struct {
	Ratio     Ratios     `json:"ratio"`
	CloseTime CloseTimes `json:"close_time"`
}

// Ratios relates closed and finished issues to created issues
type Ratios struct {
	All      float64 `json:"all"`
	Finished float64 `json:"finished"`
}

// CloseTimes holds closing time summaries for all closed and for finished issues
type CloseTimes struct {
	All      Summary `json:"all"`
	Finished Summary `json:"finished"`
}

// Summary holds the average and median closing time in seconds
type Summary struct {
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
}

// Combined computes the statistics of a bucket
func Combined(b *Bucket) Stats {
	return Stats{
		Ratio: Ratios{
			All:      Ratio(b.Closed, b.Created),
			Finished: Ratio(b.Finished, b.Created),
		},
		CloseTime: CloseTimes{
			All:      summarize(b.Closed),
			Finished: summarize(b.Finished),
		},
	}
}

// Ratio returns len(closed)/len(created), or 0 when either list is empty
func Ratio(closed, created []models.Issue) float64 {
	if len(created) == 0 || len(closed) == 0 {
		return 0
	}
	return float64(len(closed)) / float64(len(created))
}

// AverageClosingTime returns the mean time to close in seconds, 0 without closed issues
func AverageClosingTime(issues []models.Issue) float64 {
	mean, err := mstats.Mean(closeSeconds(issues))
	if err != nil {
		return 0
	}
	return mean
}

// MedianClosingTime returns the median time to close in seconds, 0 without closed issues
func MedianClosingTime(issues []models.Issue) float64 {
	median, err := mstats.Median(closeSeconds(issues))
	if err != nil {
		return 0
	}
	return median
}

// Closed returns the closed issues of the list
func Closed(issues []models.Issue) []models.Issue {
	closed := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.IsClosed() {
			closed = append(closed, issue)
		}
	}
	return closed
}

// SecondsToDays converts seconds to whole days, rounded half away from zero
func SecondsToDays(seconds float64) int {
	return int(math.Round(seconds / secondsPerDay))
}

func summarize(issues []models.Issue) Summary {
	return Summary{
		Average: AverageClosingTime(issues),
		Median:  MedianClosingTime(issues),
	}
}

// closeSeconds collects the creation-to-closing durations of issues carrying a closing time
func closeSeconds(issues []models.Issue) mstats.Float64Data {
	data := make(mstats.Float64Data, 0, len(issues))
	for _, issue := range issues {
		if issue.ClosedAt == nil {
			continue
		}
		data = append(data, issue.ClosedAt.Sub(issue.CreatedAt).Seconds())
	}
	return data
}
