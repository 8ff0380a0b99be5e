package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/wesm/gh-issues-stats/internal/stats"
)

const (
	formatTable = "table"
	formatChart = "chart"
	formatJSON  = "json"

	chartWidth   = 60
	labelColumns = 3
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	titleStyle  = lipgloss.NewStyle().Bold(true)

	createdBar = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // Bright red
	closedBar  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // Bright green
	ratioBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // Bright blue
)

// writeReport renders period buckets in the requested format followed by the legend
func writeReport(w io.Writer, buckets []stats.Bucket, period stats.Period, opts *reportOptions, extra string) error {
	var content string

	switch opts.format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(periodReport(buckets))
	case formatChart:
		content = renderChart(buckets)
	case formatTable:
		content = renderTable(buckets, period, opts.finished)
	default:
		return opts.validate()
	}

	_, err := io.WriteString(w, content+renderLegend(buckets, opts.legend, extra))
	return err
}

// periodReport encodes buckets as an object keyed by period, newest first
type periodReport []stats.Bucket

func (r periodReport) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, bucket := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		value, err := json.Marshal(bucket)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%q:", strconv.Itoa(bucket.Period))
		b.Write(value)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func bucketStats(b stats.Bucket) stats.Stats {
	if b.Stats != nil {
		return *b.Stats
	}
	return stats.Combined(&b)
}

func days(seconds float64) string {
	return strconv.Itoa(stats.SecondsToDays(seconds))
}

func ratio(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func tableHeader(period stats.Period, finished bool) []string {
	header := []string{
		period.String(),
		"Created",
		"Closed",
		"Created-Closed-Ratio",
		"Closed-Avg",
		"Closed-Median",
	}
	if !finished {
		return header
	}

	return append(header,
		"Finished",
		"Finished-Ratio",
		"Finished-Avg",
		"Finished-Median",
	)
}

func tableRow(b stats.Bucket, finished bool) []string {
	s := bucketStats(b)

	row := []string{
		strconv.Itoa(b.Period),
		strconv.Itoa(len(b.Created)),
		strconv.Itoa(len(b.Closed)),
		ratio(s.Ratio.All),
		days(s.CloseTime.All.Average),
		days(s.CloseTime.All.Median),
	}
	if !finished {
		return row
	}

	return append(row,
		strconv.Itoa(len(b.Finished)),
		ratio(s.Ratio.Finished),
		days(s.CloseTime.Finished.Average),
		days(s.CloseTime.Finished.Median),
	)
}

// renderTable renders one row per period, closing times in days
func renderTable(buckets []stats.Bucket, period stats.Period, finished bool) string {
	rows := make([][]string, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, tableRow(b, finished))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		}).
		Headers(tableHeader(period, finished)...).
		Rows(rows...)

	return t.String()
}

// renderChart renders bar charts of the created and closed counts and the ratio per period
func renderChart(buckets []stats.Bucket) string {
	labels := make([]string, 0, len(buckets))
	created := make([]float64, 0, len(buckets))
	closed := make([]float64, 0, len(buckets))
	ratios := make([]float64, 0, len(buckets))

	for _, b := range buckets {
		labels = append(labels, strconv.Itoa(b.Period))
		created = append(created, float64(len(b.Created)))
		closed = append(closed, float64(len(b.Closed)))
		ratios = append(ratios, math.Round(bucketStats(b).Ratio.All*100)/100)
	}

	count := func(v float64) string { return strconv.Itoa(int(v)) }

	return strings.Join([]string{
		renderBars("Created", labels, created, createdBar, count),
		renderBars("Closed", labels, closed, closedBar, count),
		renderBars("Created/Closed Ratio", labels, ratios, ratioBar, ratio),
	}, "\n")
}

func renderBars(title string, labels []string, values []float64, style lipgloss.Style, format func(float64) string) string {
	var peak float64
	labelWidth := 0
	for i, v := range values {
		peak = math.Max(peak, v)
		labelWidth = max(labelWidth, len(labels[i]))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	for i, v := range values {
		length := 0
		if peak > 0 {
			length = int(math.Round(v / peak * chartWidth))
		}
		bar := style.Render(strings.Repeat("■", length))
		fmt.Fprintf(&b, "%*s ┤%s %s\n", labelWidth, labels[i], bar, format(v))
	}

	return b.String()
}

// renderLegend sums up the buckets. extra is appended on its own line.
func renderLegend(buckets []stats.Bucket, show bool, extra string) string {
	if !show {
		return "\n"
	}

	totals := stats.Sum(buckets)
	legend := fmt.Sprintf("\n\n%d created. %d closed. %d open.", totals.Created, totals.Closed, totals.Open)
	if extra != "" {
		legend += "\n" + extra
	}

	return color.New(color.Faint).Sprint(legend) + "\n"
}

// renderLabels lays out labels in a borderless grid followed by their count
func renderLabels(labels []string) string {
	var b strings.Builder

	if len(labels) > 0 {
		rows := make([][]string, 0, len(labels)/labelColumns+1)
		for i := 0; i < len(labels); i += labelColumns {
			row := make([]string, labelColumns)
			copy(row, labels[i:min(i+labelColumns, len(labels))])
			rows = append(rows, row)
		}

		t := table.New().
			Border(lipgloss.HiddenBorder()).
			StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
			Rows(rows...)
		b.WriteString(t.String())
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nTotal labels: %d\n", len(labels))
	return b.String()
}
