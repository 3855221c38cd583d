package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/cozyreq/cozyreq/internal/models"
	"github.com/cozyreq/cozyreq/internal/ui/components"
	"github.com/cozyreq/cozyreq/internal/ui/styles"
)

const maxBodyPreviewLines = 12

// View renders the application.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.loading {
		return styles.CenterBoth(m.activity.Frame()+" Loading templates...", m.width, m.height)
	}

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("CozyReq"))
	b.WriteString("\n")

	leftWidth := m.width / 3
	rightWidth := m.width - leftWidth - 4

	left := m.renderTemplates(leftWidth)
	right := m.renderHistory(rightWidth)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	b.WriteString("\n")

	if m.record != nil {
		b.WriteString(m.renderResponse(m.width - 4))
		b.WriteString("\n")
	}

	if m.notification != "" {
		style := styles.NotificationInfoStyle
		if m.notifyError {
			style = styles.NotificationErrorStyle
		}
		b.WriteString(style.Render(ansi.Truncate(m.notification, m.width-6, "…")))
		b.WriteString("\n")
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

func (m *Model) renderTemplates(width int) string {
	var b strings.Builder
	b.WriteString(styles.SubTitleStyle.Render("Templates"))
	b.WriteString("\n")

	if len(m.templates) == 0 {
		b.WriteString(styles.HelpStyle.Render("No templates yet. Import or create one."))
	}

	for i, tmpl := range m.templates {
		line := fmt.Sprintf("%s %s",
			styles.MethodStyle.Render(tmpl.Method),
			tmpl.Name)
		line = ansi.Truncate(line, width-4, "…")
		if i == m.selectedTemplate {
			b.WriteString(styles.SelectedListItemStyle.Render(line))
		} else {
			b.WriteString(styles.ListItemStyle.Render(line))
		}
		b.WriteString("\n")
	}

	style := styles.BlurredBorderStyle
	if m.focus == PaneTemplates {
		style = styles.FocusedBorderStyle
	}
	return style.Width(width).Render(b.String())
}

func (m *Model) renderHistory(width int) string {
	var b strings.Builder
	b.WriteString(styles.SubTitleStyle.Render("History"))
	b.WriteString("\n")
	b.WriteString(components.RenderStatsBar(m.stats))
	if act := m.activity.View(); act != "" {
		b.WriteString("  ")
		b.WriteString(act)
	}
	b.WriteString("\n")

	if durations := completedDurations(m.history); len(durations) > 1 {
		b.WriteString(components.RenderSparkline(durations, width-6))
		b.WriteString("\n")
	}

	for i, inv := range m.history {
		line := fmt.Sprintf("%s %s  %s",
			components.RenderStatusBadge(inv.Status),
			inv.CreatedAt.Format("15:04:05"),
			invocationSummary(&inv))
		line = ansi.Truncate(line, width-4, "…")
		if i == m.selectedHistory && m.focus == PaneHistory {
			b.WriteString(styles.SelectedListItemStyle.Render(line))
		} else {
			b.WriteString(styles.ListItemStyle.Render(line))
		}
		b.WriteString("\n")
	}

	style := styles.BlurredBorderStyle
	if m.focus == PaneHistory {
		style = styles.FocusedBorderStyle
	}
	return style.Width(width).Render(b.String())
}

func (m *Model) renderResponse(width int) string {
	var b strings.Builder
	b.WriteString(styles.CardTitleStyle.Render("Response"))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("%s  %dms\n",
		styles.GetStatusCodeStyle(m.record.StatusCode).Render(fmt.Sprintf("HTTP %d", m.record.StatusCode)),
		m.record.DurationMs))

	if len(m.record.Body) == 0 {
		b.WriteString(styles.HelpStyle.Render("(body pruned or empty)"))
	} else {
		lines := strings.Split(string(m.record.Body), "\n")
		if len(lines) > maxBodyPreviewLines {
			lines = append(lines[:maxBodyPreviewLines], styles.HelpStyle.Render("…"))
		}
		for _, line := range lines {
			b.WriteString(ansi.Truncate(line, width-6, "…"))
			b.WriteString("\n")
		}
	}

	return styles.CardStyle.Width(width).Render(b.String())
}

func (m *Model) renderHelp() string {
	if m.showHelp {
		var rows []string
		for _, group := range m.keymap.FullHelp() {
			var parts []string
			for _, binding := range group {
				parts = append(parts,
					styles.HelpKeyStyle.Render(binding.Help().Key)+" "+
						styles.HelpStyle.Render(binding.Help().Desc))
			}
			rows = append(rows, strings.Join(parts, "   "))
		}
		return strings.Join(rows, "\n")
	}

	var parts []string
	for _, binding := range m.keymap.ShortHelp() {
		parts = append(parts,
			styles.HelpKeyStyle.Render(binding.Help().Key)+" "+
				styles.HelpStyle.Render(binding.Help().Desc))
	}
	return strings.Join(parts, "   ")
}

// invocationSummary renders the one-line description of an invocation.
func invocationSummary(inv *models.Invocation) string {
	if inv.Error != "" {
		return inv.Error
	}
	return fmt.Sprintf("%s %s", inv.Request.Method, inv.Request.URL)
}

// completedDurations returns queue-to-completion times in milliseconds for
// succeeded invocations, oldest first.
func completedDurations(history []models.Invocation) []float64 {
	var out []float64
	for _, inv := range history {
		if inv.Status == models.StatusSucceeded && !inv.CompletedAt.IsZero() {
			out = append(out, float64(inv.CompletedAt.Sub(inv.CreatedAt).Milliseconds()))
		}
	}
	return out
}
