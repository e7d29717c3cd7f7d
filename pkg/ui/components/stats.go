package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds the lag figures for display.
type Stats struct {
	Observed   uint64
	Stale      uint64
	LastLag    float64
	HasLastLag bool
	MeanLag    float64
	P50        float64
	P90        float64
	P99        float64
	GasPct     float64
	LastBlock  uint64
	WindowSecs float64
}

// StatsComponent renders lag statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// FormatLag renders seconds with a sign and four decimals, or "-" when
// there is nothing to show.
func FormatLag(v float64, ok bool) string {
	if !ok || math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%+.4fs", v)
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)

	staleDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.Stale))
	if s.stats.Stale > 0 {
		staleDisplay = warnStyle.Render(fmt.Sprintf("%d", s.stats.Stale))
	}

	has := s.stats.Observed > 0

	return style.Render("LAG") + "\n" +
		fmt.Sprintf("Last: %s  │  Block: %s  │  Gas: %s\n",
			valueStyle.Render(FormatLag(s.stats.LastLag, s.stats.HasLastLag)),
			valueStyle.Render(fmt.Sprintf("#%d", s.stats.LastBlock)),
			valueStyle.Render(fmt.Sprintf("%.1f%%", s.stats.GasPct)),
		) +
		fmt.Sprintf("Mean: %s  │  p50: %s  │  p90: %s  │  p99: %s\n",
			valueStyle.Render(FormatLag(s.stats.MeanLag, has)),
			valueStyle.Render(FormatLag(s.stats.P50, has)),
			valueStyle.Render(FormatLag(s.stats.P90, has)),
			valueStyle.Render(FormatLag(s.stats.P99, has)),
		) +
		fmt.Sprintf("Observed: %s  │  Stale (>= %.0fs): %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Observed)),
			s.stats.WindowSecs,
			staleDisplay,
		)
}
