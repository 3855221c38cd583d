// Package components provides reusable UI components for the TUI.
package components

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/cozyreq/cozyreq/internal/models"
	"github.com/cozyreq/cozyreq/internal/ui/styles"
)

// RenderLatencyChart creates an ASCII line chart of response durations in
// milliseconds, oldest on the left.
func RenderLatencyChart(durations []float64, width, height int, caption string) string {
	if len(durations) == 0 {
		return styles.HelpStyle.Render("No completed calls yet")
	}

	// Ensure minimum dimensions
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	return asciigraph.Plot(durations,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// RenderSparkline creates a compact inline sparkline chart.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	sparkChars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	var result strings.Builder
	step := float64(len(values)) / float64(width)
	if step < 1 {
		step = 1
	}

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		idx := int(float64(i) * step)
		normalized := int((values[idx] / maxVal) * float64(len(sparkChars)-1))
		if normalized >= len(sparkChars) {
			normalized = len(sparkChars) - 1
		}
		if normalized < 0 {
			normalized = 0
		}
		result.WriteRune(sparkChars[normalized])
	}

	return result.String()
}

// RenderStatusBadge renders an invocation status with its color.
func RenderStatusBadge(status models.InvocationStatus) string {
	return styles.GetStatusStyle(status).Render(strings.ToUpper(string(status)))
}

// RenderStatsBar renders a one-line summary of a template's history.
func RenderStatsBar(stats *models.TemplateStats) string {
	if stats == nil || stats.Total == 0 {
		return styles.HelpStyle.Render("no invocations")
	}

	parts := []string{
		fmt.Sprintf("%d total", stats.Total),
		styles.SuccessTextStyle.Render(fmt.Sprintf("%d ok", stats.Succeeded)),
		styles.ErrorTextStyle.Render(fmt.Sprintf("%d failed", stats.Failed)),
	}
	if stats.Cancelled > 0 {
		parts = append(parts, styles.HelpStyle.Render(fmt.Sprintf("%d cancelled", stats.Cancelled)))
	}
	if active := stats.Running + stats.Pending; active > 0 {
		parts = append(parts, styles.WarningTextStyle.Render(fmt.Sprintf("%d active", active)))
	}
	return strings.Join(parts, "  ")
}
