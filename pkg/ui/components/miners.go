package components

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// MinerRow is one producer in the miners table.
type MinerRow struct {
	Miner string
	Count uint64
	Mean  float64
	P90   float64
}

// MinersComponent renders the per-miner lag table.
type MinersComponent struct {
	rows       []MinerRow
	sortByName bool
	table      table.Model
}

// NewMinersComponent creates a miners table showing height rows.
func NewMinersComponent(height int) *MinersComponent {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Miner", Width: 44},
			{Title: "Blocks", Width: 8},
			{Title: "Mean", Width: 10},
			{Title: "p90", Width: 10},
		}),
		table.WithHeight(height),
		table.WithFocused(true),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED"))
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#374151"))
	t.SetStyles(styles)

	return &MinersComponent{table: t}
}

// Update replaces the rows and re-sorts them.
func (m *MinersComponent) Update(rows []MinerRow) {
	m.rows = append(m.rows[:0], rows...)
	m.sort()
}

// ToggleSort switches between block count and miner name ordering.
func (m *MinersComponent) ToggleSort() {
	m.sortByName = !m.sortByName
	m.sort()
}

// Rows returns the rows in display order.
func (m *MinersComponent) Rows() []MinerRow {
	return m.rows
}

// ScrollUp moves the selection up.
func (m *MinersComponent) ScrollUp() {
	m.table.MoveUp(1)
}

// ScrollDown moves the selection down.
func (m *MinersComponent) ScrollDown() {
	m.table.MoveDown(1)
}

func (m *MinersComponent) sort() {
	if m.sortByName {
		sort.Slice(m.rows, func(i, j int) bool { return m.rows[i].Miner < m.rows[j].Miner })
	} else {
		sort.SliceStable(m.rows, func(i, j int) bool {
			if m.rows[i].Count != m.rows[j].Count {
				return m.rows[i].Count > m.rows[j].Count
			}
			return m.rows[i].Miner < m.rows[j].Miner
		})
	}

	trows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		trows = append(trows, table.Row{
			r.Miner,
			fmt.Sprintf("%d", r.Count),
			FormatLag(r.Mean, r.Count > 0),
			FormatLag(r.P90, r.Count > 0),
		})
	}
	m.table.SetRows(trows)
}

// View renders the miners component.
func (m *MinersComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))

	order := "by blocks"
	if m.sortByName {
		order = "by name"
	}
	result := headerStyle.Render(fmt.Sprintf("MINERS (%d, %s)", len(m.rows), order)) + "\n"

	if len(m.rows) == 0 {
		return result + "No miners seen yet..."
	}
	return result + m.table.View()
}
