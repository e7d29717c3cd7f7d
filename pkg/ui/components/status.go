// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ConnectionStatus is the upstream session as shown on the dashboard.
type ConnectionStatus struct {
	Source         string
	State          string
	SubscriptionID string
	Restarts       uint64
	LastBlock      uint64
	LastMessage    time.Time
	LastError      string
	Breaker        string
}

// StatusComponent renders the upstream session status.
type StatusComponent struct {
	status ConnectionStatus
	now    func() time.Time
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{now: time.Now}
}

// Update replaces the displayed status.
func (s *StatusComponent) Update(status ConnectionStatus) {
	s.status = status
}

// StateStyle returns the color used for a session state.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "streaming":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	case "failed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	}
}

func breakerStyle(state string) lipgloss.Style {
	switch state {
	case "closed":
		return StateStyle("streaming")
	case "open":
		return StateStyle("failed")
	default:
		return StateStyle("")
	}
}

// View renders the status component.
func (s *StatusComponent) View() string {
	if s.status.Source == "" {
		return "No upstream configured"
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	icon := "●"
	if s.status.State != "streaming" {
		icon = "○"
	}

	result := headerStyle.Render("UPSTREAM") + "\n"
	result += fmt.Sprintf("├─ %s: %s\n", s.status.Source, StateStyle(s.status.State).Render(icon+" "+s.status.State))

	sub := s.status.SubscriptionID
	if sub == "" {
		sub = "-"
	}
	result += fmt.Sprintf("├─ subscription: %s\n", dimStyle.Render(sub))
	result += fmt.Sprintf("├─ restarts: %d\n", s.status.Restarts)
	if s.status.Breaker != "" {
		result += fmt.Sprintf("├─ breaker: %s\n", breakerStyle(s.status.Breaker).Render(s.status.Breaker))
	}

	last := "never"
	if !s.status.LastMessage.IsZero() {
		last = s.now().Sub(s.status.LastMessage).Round(time.Second).String() + " ago"
	}
	result += fmt.Sprintf("└─ last message: %s", dimStyle.Render(last))

	return result
}
