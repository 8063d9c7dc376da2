// Package chart renders the postal code summary as a standalone HTML bar chart.
package chart

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/IBM/fp-go/v2/option"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
)

const Title = "Number of Patents for a PLZ"

// Renderer draws one bar per postal code with more than MinPatents records.
type Renderer struct {
	MinPatents int
}

// Select keeps the groups with a postal code and more than min records,
// largest count first.
func Select(rows []models.AggregateRow, min int) []models.AggregateRow {
	var selected []models.AggregateRow
	for _, r := range rows {
		if option.IsSome(r.Key) && r.Count > min {
			selected = append(selected, r)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Count != selected[j].Count {
			return selected[i].Count > selected[j].Count
		}
		return key(selected[i]) < key(selected[j])
	})
	return selected
}

func key(r models.AggregateRow) string {
	return option.GetOrElse(func() string { return "" })(r.Key)
}

// Caption states the selection threshold.
func (r *Renderer) Caption() string {
	return fmt.Sprintf("Only PLZs with more than %d patents are shown", r.MinPatents)
}

// Render writes the chart page for the postal code summary rows. Hovering a
// bar shows the cities of that postal code.
func (r *Renderer) Render(w io.Writer, rows []models.AggregateRow) error {
	selected := Select(rows, r.MinPatents)

	labels := make([]string, 0, len(selected))
	bars := make([]opts.BarData, 0, len(selected))
	for _, row := range selected {
		labels = append(labels, "PLZ "+key(row))
		bars = append(bars, opts.BarData{Name: row.Associated, Value: row.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: Title}),
		charts.WithTitleOpts(opts.Title{Title: Title, Subtitle: r.Caption()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
	)
	bar.SetXAxis(labels).AddSeries("Patents", bars)
	return bar.Render(w)
}

// RenderFile writes the chart page to path.
func (r *Renderer) RenderFile(path string, rows []models.AggregateRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := r.Render(file, rows); err != nil {
		file.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	return file.Close()
}
