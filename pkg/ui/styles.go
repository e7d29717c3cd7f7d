package ui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorAccent = lipgloss.Color("#7C3AED")
	ColorFresh  = lipgloss.Color("#10B981")
	ColorSlow   = lipgloss.Color("#F59E0B")
	ColorStale  = lipgloss.Color("#EF4444")
	ColorMuted  = lipgloss.Color("#6B7280")
	ColorFrame  = lipgloss.Color("#374151")
)

var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorFrame).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorAccent).
			Padding(0, 2)

	MutedValue = lipgloss.NewStyle().
			Foreground(ColorMuted)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1)

	ErrorHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorStale)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorStale)

	PausedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSlow)
)

// LagStyle colours a lag value: green up to half the staleness window,
// amber up to the window, red beyond it or when negative.
func LagStyle(lag, window float64) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch {
	case lag < 0 || lag > window:
		return style.Foreground(ColorStale)
	case lag > window/2:
		return style.Foreground(ColorSlow)
	default:
		return style.Foreground(ColorFresh)
	}
}
