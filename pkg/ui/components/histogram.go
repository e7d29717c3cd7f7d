package components

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HistogramComponent renders per-bucket lag counts as horizontal bars.
type HistogramComponent struct {
	bounds []float64
	counts []uint64
	width  int
}

// NewHistogramComponent creates a histogram whose longest bar is width cells.
func NewHistogramComponent(width int) *HistogramComponent {
	if width < 1 {
		width = 1
	}
	return &HistogramComponent{width: width}
}

// Update sets the bucket upper bounds and their non-cumulative counts.
func (h *HistogramComponent) Update(bounds []float64, counts []uint64) {
	h.bounds = bounds
	h.counts = counts
}

// SetWidth sets the maximum bar length.
func (h *HistogramComponent) SetWidth(width int) {
	if width > 0 {
		h.width = width
	}
}

// Bar returns a bar of count scaled to peak over width cells. Non-zero
// counts always get at least one cell.
func Bar(count, peak uint64, width int) string {
	if count == 0 || peak == 0 || width <= 0 {
		return ""
	}
	n := int(float64(count) / float64(peak) * float64(width))
	if n < 1 {
		n = 1
	}
	return strings.Repeat("█", n)
}

// BucketLabel formats an upper bound, "+Inf" included.
func BucketLabel(bound float64) string {
	if math.IsInf(bound, 1) {
		return "+Inf"
	}
	return fmt.Sprintf("<=%gs", bound)
}

// View renders the histogram component.
func (h *HistogramComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	result := headerStyle.Render("LAG DISTRIBUTION") + "\n\n"

	var peak uint64
	for _, c := range h.counts {
		if c > peak {
			peak = c
		}
	}
	if peak == 0 {
		return result + dimStyle.Render("  Waiting for blocks...")
	}

	for i, bound := range h.bounds {
		if i >= len(h.counts) {
			break
		}
		result += fmt.Sprintf("  %8s %s %s\n",
			BucketLabel(bound),
			barStyle.Render(Bar(h.counts[i], peak, h.width)),
			dimStyle.Render(fmt.Sprintf("%d", h.counts[i])),
		)
	}

	return strings.TrimSuffix(result, "\n")
}
