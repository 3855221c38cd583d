package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cozyreq/cozyreq/internal/ui/styles"
)

// ActivitySpinner animates while invocations are in flight. It renders
// nothing when the queue is idle.
type ActivitySpinner struct {
	model  spinner.Model
	active int
}

// NewActivitySpinner creates an idle activity spinner.
func NewActivitySpinner() ActivitySpinner {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(styles.Warning)
	return ActivitySpinner{model: s}
}

// Tick returns the command that drives the animation.
func (a ActivitySpinner) Tick() tea.Cmd {
	return a.model.Tick
}

// Update advances the animation on spinner tick messages.
func (a ActivitySpinner) Update(msg tea.Msg) (ActivitySpinner, tea.Cmd) {
	var cmd tea.Cmd
	a.model, cmd = a.model.Update(msg)
	return a, cmd
}

// SetActive records how many invocations are currently pending or running.
func (a *ActivitySpinner) SetActive(n int) {
	a.active = n
}

// Frame returns the bare animation frame, for use in ad-hoc loading lines.
func (a ActivitySpinner) Frame() string {
	return a.model.View()
}

// View renders the frame with an in-flight count, or nothing when idle.
func (a ActivitySpinner) View() string {
	if a.active == 0 {
		return ""
	}
	return a.model.View() + " " + styles.WarningTextStyle.Render(fmt.Sprintf("%d in flight", a.active))
}
