package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorWhite  = lipgloss.Color("#F8F8F2")
	colorGray   = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle  = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	helpStyle   = lipgloss.NewStyle().Foreground(colorGray)
	pausedStyle = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
)

// rateColor picks a heat color for a prefix's rate against thresh, the
// same idea the teacher applies to CPU/memory percentages: green well
// under threshold, yellow approaching it, red at or past it (zoom-in
// fires once a rate exceeds it).
func rateColor(rate, thresh int64) lipgloss.Style {
	switch {
	case thresh <= 0:
		return valueStyle
	case rate >= thresh:
		return critStyle
	case rate*2 >= thresh:
		return warnStyle
	default:
		return okStyle
	}
}
