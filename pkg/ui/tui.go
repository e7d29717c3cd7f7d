package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/headlag-exporter/business/headlag/domain"
	"github.com/fd1az/headlag-exporter/pkg/ui/components"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Waiting for the first block
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// RefreshInterval is how often the dashboard polls its source.
const RefreshInterval = 250 * time.Millisecond

const maxErrors = 3

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	src  Source
	keys KeyMap
	help help.Model

	// Components
	status    *components.StatusComponent
	stats     *components.StatsComponent
	histogram *components.HistogramComponent
	miners    *components.MinersComponent

	// Phase state
	phase        Phase
	welcomeStart time.Time
	startupTime  time.Time

	// State
	ready      bool
	quitting   bool
	paused     bool
	width      int
	height     int
	window     float64
	state      string
	lastError  string
	lastUpdate time.Time
	lastLag    float64
	hasLastLag bool
	errors     []ErrorEntry
}

// New creates a new TUI model polling src. window is the staleness window
// in seconds, shown next to the stale count.
func New(src Source, window float64) Model {
	now := time.Now()
	return Model{
		src:          src,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		status:       components.NewStatusComponent(),
		stats:        components.NewStatsComponent(),
		histogram:    components.NewHistogramComponent(30),
		miners:       components.NewMinersComponent(8),
		phase:        PhaseWelcome,
		welcomeStart: now,
		startupTime:  now,
		window:       window,
		errors:       make([]ErrorEntry, 0, maxErrors),
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Always allow quit
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		// During welcome phase, any other key skips ahead
		if m.phase == PhaseWelcome {
			m.advance()
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Sort):
			m.miners.ToggleSort()
		case key.Matches(msg, m.keys.Up):
			m.miners.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.miners.ScrollDown()
		case key.Matches(msg, m.keys.ClearErrors):
			m.errors = make([]ErrorEntry, 0, maxErrors)
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.histogram.SetWidth(max(10, msg.Width/2-30))

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.advance()
		}
		if !m.paused {
			m.refresh()
		}
		return m, tickCmd()

	case ErrorMsg:
		if msg.Error != nil {
			m.addError(msg.Error.Error())
		}
	}

	return m, nil
}

func (m *Model) advance() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	m.refresh()
}

// refresh polls the source and pushes the result into the components.
func (m *Model) refresh() {
	if m.src == nil {
		return
	}

	snap := m.src.Snapshot()
	st := m.src.Status()

	m.state = string(st.State)
	m.status.Update(components.ConnectionStatus{
		Source:         st.Source,
		State:          string(st.State),
		SubscriptionID: st.SubscriptionID,
		Restarts:       st.Restarts,
		LastBlock:      st.LastBlock,
		LastMessage:    st.LastMessage,
		LastError:      st.LastError,
		Breaker:        st.Breaker,
	})

	if st.LastError != "" && st.LastError != m.lastError {
		m.lastError = st.LastError
		m.addError(st.LastError)
	}

	m.stats.Update(components.Stats{
		Observed:   snap.Lag.Count,
		Stale:      snap.Stale,
		LastLag:    snap.LastLag,
		HasLastLag: snap.HasLastLag,
		MeanLag:    snap.Lag.Mean(),
		P50:        snap.Lag.Quantile(0.5),
		P90:        snap.Lag.Quantile(0.9),
		P99:        snap.Lag.Quantile(0.99),
		GasPct:     snap.GasUtilizationPct,
		LastBlock:  snap.LastBlock,
		WindowSecs: m.window,
	})

	bounds := make([]float64, len(snap.Lag.Buckets))
	for i, b := range snap.Lag.Buckets {
		bounds[i] = b.UpperBound
	}
	m.histogram.Update(bounds, snap.Lag.PerBucket())

	m.miners.Update(minerRows(snap.Miners))
	m.lastLag, m.hasLastLag = snap.LastLag, snap.HasLastLag

	if m.phase == PhaseStartup && st.EverStreamed {
		m.phase = PhaseDashboard
	}
	m.lastUpdate = time.Now()
}

func minerRows(miners map[string]domain.HistogramSnapshot) []components.MinerRow {
	names := make([]string, 0, len(miners))
	for name := range miners {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]components.MinerRow, 0, len(names))
	for _, name := range names {
		h := miners[name]
		rows = append(rows, components.MinerRow{
			Miner: name,
			Count: h.Count,
			Mean:  h.Mean(),
			P90:   h.Quantile(0.9),
		})
	}
	return rows
}

func (m *Model) addError(msg string) {
	m.errors = append(m.errors, ErrorEntry{Message: msg, Timestamp: time.Now()})
	if len(m.errors) > maxErrors {
		m.errors = m.errors[len(m.errors)-maxErrors:]
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" ⛓ Head Lag Exporter "))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	leftCol := m.stats.View() + "\n\n" + m.status.View()
	rightCol := m.histogram.View()

	// Side by side if enough width
	if m.width > 100 {
		left := BoxStyle.Width(m.width/2 - 2).Render(leftCol)
		right := BoxStyle.Width(m.width/2 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		width := max(m.width-4, 40)
		b.WriteString(BoxStyle.Width(width).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(rightCol))
	}
	b.WriteString("\n")
	b.WriteString(BoxStyle.Render(m.miners.View()))
	b.WriteString("\n\n")

	// Persistent error panel (show last 3 errors)
	if len(m.errors) > 0 {
		b.WriteString(ErrorHeaderStyle.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(ErrorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(PausedStyle.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

// renderWelcomeScreen renders the animated welcome screen.
func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent)

	greenStyle := lipgloss.NewStyle().
		Foreground(ColorFresh)

	// Animated dots based on time
	elapsed := time.Since(m.welcomeStart)
	dots := strings.Repeat(".", int(elapsed.Milliseconds()/300)%4)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
   ██╗  ██╗███████╗ █████╗ ██████╗     ██╗      █████╗  ██████╗
   ██║  ██║██╔════╝██╔══██╗██╔══██╗    ██║     ██╔══██╗██╔════╝
   ███████║█████╗  ███████║██║  ██║    ██║     ███████║██║  ███╗
   ██╔══██║██╔══╝  ██╔══██║██║  ██║    ██║     ██╔══██║██║   ██║
   ██║  ██║███████╗██║  ██║██████╔╝    ███████╗██║  ██║╚██████╔╝
   ╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═════╝     ╚══════╝╚═╝  ╚═╝ ╚═════╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render("                 B L O C K   H E A D   L A G   E X P O R T E R"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("                          Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("                    Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

// renderStartupScreen renders the screen shown until the first block.
func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF"))

	var sb strings.Builder

	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  ⛓ Head Lag Exporter"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("  Starting up..."))
	sb.WriteString("\n\n")

	state := m.state
	if state == "" {
		state = "connecting"
	}
	spinners := []string{"◐", "◓", "◑", "◒"}
	idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
	sb.WriteString(fmt.Sprintf("  %s Upstream %s\n",
		components.StateStyle(state).Render(spinners[idx]),
		components.StateStyle(state).Render(state),
	))

	if m.lastError != "" {
		sb.WriteString(ErrorStyle.Render("  " + m.lastError))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("  Waiting for first block head..."))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	parts = append(parts, components.StateStyle(m.state).Render("● "+m.state))

	if m.hasLastLag {
		parts = append(parts, LagStyle(m.lastLag, m.window).Render(components.FormatLag(m.lastLag, true)))
	}

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}

	return strings.Join(parts, "  │  ")
}

// NewProgram builds the dashboard program. It exits when ctx is cancelled
// or the user quits.
func NewProgram(ctx context.Context, src Source, window float64) *tea.Program {
	return tea.NewProgram(New(src, window), tea.WithAltScreen(), tea.WithContext(ctx))
}

// Run runs the dashboard until the user quits or ctx is cancelled.
func Run(p *tea.Program) error {
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
