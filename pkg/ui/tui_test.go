package ui

import (
	"errors"
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	blockchainDomain "github.com/fd1az/headlag-exporter/business/blockchain/domain"
	"github.com/fd1az/headlag-exporter/business/headlag/domain"
)

func sampleSnapshot() domain.Snapshot {
	hist := domain.HistogramSnapshot{
		Count: 3,
		Sum:   30,
		Buckets: []domain.Bucket{
			{UpperBound: 8, Count: 1},
			{UpperBound: 16, Count: 3},
			{UpperBound: math.Inf(1), Count: 3},
		},
	}
	return domain.Snapshot{
		Lag:               hist,
		LastLag:           10,
		HasLastLag:        true,
		GasUtilizationPct: 50,
		LastBlock:         100,
		Miners:            map[string]domain.HistogramSnapshot{"0xabc": hist},
	}
}

func testSource(state blockchainDomain.SessionState, streamed bool) Source {
	return NewSource(sampleSnapshot, func() blockchainDomain.ConnectionStatus {
		return blockchainDomain.ConnectionStatus{
			State:        state,
			Source:       "ws:ws://node",
			EverStreamed: streamed,
			LastBlock:    100,
		}
	})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModel_QuitKey(t *testing.T) {
	m := New(testSource(blockchainDomain.StateStreaming, true), 60)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if next.(Model).View() != "\n  Goodbye!\n\n" {
		t.Error("unexpected view after quit")
	}
}

func TestModel_WelcomeSkipsToDashboardWhenStreaming(t *testing.T) {
	m := New(testSource(blockchainDomain.StateStreaming, true), 60)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	if m.phase != PhaseWelcome {
		t.Fatalf("phase = %s", m.phase)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if m.phase != PhaseDashboard {
		t.Fatalf("phase = %s, want dashboard", m.phase)
	}

	view := m.View()
	for _, want := range []string{"+10.0000s", "#100", "50.0%", "0xabc", "streaming", "LAG DISTRIBUTION"} {
		if !strings.Contains(view, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestModel_StartupUntilStreaming(t *testing.T) {
	m := New(testSource(blockchainDomain.StateConnecting, false), 60)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})

	if m.phase != PhaseStartup {
		t.Fatalf("phase = %s, want startup", m.phase)
	}
	if !strings.Contains(m.View(), "Waiting for first block head") {
		t.Error("startup screen not shown")
	}
}

func TestModel_PauseStopsPolling(t *testing.T) {
	calls := 0
	src := NewSource(func() domain.Snapshot {
		calls++
		return sampleSnapshot()
	}, func() blockchainDomain.ConnectionStatus {
		return blockchainDomain.ConnectionStatus{State: blockchainDomain.StateStreaming, EverStreamed: true}
	})

	m := New(src, 60)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})

	before := calls
	m = update(t, m, TickMsg{})
	if calls != before {
		t.Error("paused model polled its source")
	}
	if !strings.Contains(m.View(), "PAUSED") {
		t.Error("pause indicator missing")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	update(t, m, TickMsg{})
	if calls != before+1 {
		t.Errorf("resumed model did not poll: %d calls", calls-before)
	}
}

func TestModel_ErrorsAreCapped(t *testing.T) {
	m := New(testSource(blockchainDomain.StateStreaming, true), 60)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})

	for i := 0; i < 5; i++ {
		m = update(t, m, ErrorMsg{Error: errors.New("boom")})
	}
	if len(m.errors) != maxErrors {
		t.Errorf("errors = %d, want %d", len(m.errors), maxErrors)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	if len(m.errors) != 0 {
		t.Error("errors not cleared")
	}
}

func TestLagStyle(t *testing.T) {
	tests := []struct {
		lag  float64
		want lipgloss.Color
	}{
		{lag: 1, want: ColorFresh},
		{lag: 30, want: ColorFresh},
		{lag: 45, want: ColorSlow},
		{lag: 61, want: ColorStale},
		{lag: -0.5, want: ColorStale},
	}

	for _, tt := range tests {
		if got := LagStyle(tt.lag, 60).GetForeground(); got != tt.want {
			t.Errorf("LagStyle(%v) foreground = %v, want %v", tt.lag, got, tt.want)
		}
	}
}
