package dashboard

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true)

	HelpStyle = lipgloss.NewStyle().Faint(true)

	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

	ProfitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	LossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedPaneStyle = paneStyle.BorderForeground(lipgloss.Color("57"))
)

// FormatPnL renders a P&L figure green when positive and red when negative.
func FormatPnL(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	switch {
	case v > 0:
		return ProfitStyle.Render("+" + s)
	case v < 0:
		return LossStyle.Render(s)
	}
	return s
}

// FormatPriceMove marks a price with an arrow relative to the previous poll.
func FormatPriceMove(current, previous float64) string {
	s := fmt.Sprintf("%.2f", current)
	if previous == 0 {
		return s
	}
	if current > previous {
		return s + " ▲"
	} else if current < previous {
		return s + " ▼"
	}
	return s
}
