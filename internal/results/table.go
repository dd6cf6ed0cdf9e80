package results

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mrsinham/spinesuv/internal/segmentation"
	"github.com/mrsinham/spinesuv/internal/suv"
)

var (
	tableTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Width(10).
			Align(lipgloss.Right)

	cellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Width(10).
			Align(lipgloss.Right)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Width(8)

	tablePanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

var summaryColumns = []string{"n", "mean", "min", "q1", "median", "q3", "max"}

// Table renders the per-vertebra summary of mean SUV across patients.
func Table(run Run) string {
	title := tableTitleStyle.Render(fmt.Sprintf("Run %s: %d patient(s)", run.ID, len(run.Means)))

	header := []string{labelStyle.Render("")}
	for _, c := range summaryColumns {
		header = append(header, headerStyle.Render(c))
	}
	lines := []string{lipgloss.JoinHorizontal(lipgloss.Top, header...)}

	perLabel := suv.Aggregate(run.Means)
	for _, label := range suv.SortedLabels(perLabel) {
		s, ok := suv.Summarize(perLabel[label])
		if !ok {
			continue
		}
		cells := []string{
			labelStyle.Render(segmentation.LabelName(label)),
			cellStyle.Render(fmt.Sprintf("%d", s.N)),
		}
		for _, v := range []float64{s.Mean, s.Min, s.Q1, s.Median, s.Q3, s.Max} {
			cells = append(cells, cellStyle.Render(fmt.Sprintf("%.4g", v)))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	if len(lines) == 1 {
		lines = append(lines, "no vertebra measured")
	}

	return tablePanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}
