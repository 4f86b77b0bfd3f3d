// Package dashboard is the terminal view of the poller's snapshot.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fno-desk/internal/poller"
)

// Panes in focus order.
const (
	PaneQuotes = iota
	PanePositions
	PaneAccount
	paneCount
)

// Model is the Bubble Tea model of the live dashboard.
type Model struct {
	title     string
	focus     int
	quotes    table.Model
	positions table.Model
	snap      poller.Snapshot
	prevLTP   map[string]float64
	lastKind  poller.Kind
	updatedAt time.Time
	width     int
	height    int
}

func NewModel(title string) Model {
	return Model{
		title:     title,
		focus:     PaneQuotes,
		quotes:    NewQuotesTable(),
		positions: NewPositionsTable(),
		prevLTP:   make(map[string]float64),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.setFocus((m.focus + 1) % paneCount)
			return m, nil
		case "shift+tab":
			m.setFocus((m.focus + paneCount - 1) % paneCount)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.quotes.SetWidth(msg.Width - 4)
		m.positions.SetWidth(msg.Width - 4)
		h := (msg.Height - 14) / 2
		if h < 3 {
			h = 3
		}
		m.quotes.SetHeight(h)
		m.positions.SetHeight(h)
		return m, nil

	case UpdateMsg:
		m.apply(msg.Update)
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case PaneQuotes:
		m.quotes, cmd = m.quotes.Update(msg)
	case PanePositions:
		m.positions, cmd = m.positions.Update(msg)
	}
	return m, cmd
}

func (m *Model) setFocus(p int) {
	m.focus = p
	m.quotes.Blur()
	m.positions.Blur()
	switch p {
	case PaneQuotes:
		m.quotes.Focus()
	case PanePositions:
		m.positions.Focus()
	}
}

func (m *Model) apply(u poller.Update) {
	for k, q := range m.snap.Quotes {
		m.prevLTP[k] = q.LastPrice
	}
	m.snap = u.Snapshot
	m.lastKind = u.Kind
	m.updatedAt = time.Now()
	m.quotes.SetRows(QuoteRows(m.snap.Quotes, m.prevLTP))
	m.positions.SetRows(PositionRows(m.snap.Positions))
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render(m.title))
	if !m.updatedAt.IsZero() {
		s.WriteString(HelpStyle.Render(fmt.Sprintf("  updated %s (%s)", m.updatedAt.Format("15:04:05"), m.lastKind)))
	}
	s.WriteString("\n\n")

	if errs := ErrorsView(m.snap); errs != "" {
		s.WriteString(errs)
		s.WriteString("\n\n")
	}

	s.WriteString(m.pane(PaneQuotes, "Watch", m.quotesBody()))
	s.WriteString("\n")
	s.WriteString(m.pane(PanePositions, "Positions", m.positionsBody()))
	s.WriteString("\n")
	s.WriteString(m.pane(PaneAccount, "Account", AccountView(m.snap)))
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("tab: switch pane | ↑/↓: scroll | q: quit"))

	return s.String()
}

func (m Model) quotesBody() string {
	if len(m.snap.Quotes) == 0 {
		return "Waiting for quotes..."
	}
	return m.quotes.View()
}

func (m Model) positionsBody() string {
	if len(m.snap.Positions.Net) == 0 {
		return "No positions"
	}
	return m.positions.View()
}

func (m Model) pane(id int, title, body string) string {
	style := paneStyle
	if m.focus == id {
		style = focusedPaneStyle
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), body))
}

// Run shows the dashboard until the user quits or ctx ends. The poller runs
// alongside and is stopped on exit.
func Run(ctx context.Context, p *poller.Poller, title string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(NewModel(title), tea.WithAltScreen(), tea.WithContext(ctx))
	p.OnUpdate(func(u poller.Update) {
		prog.Send(UpdateMsg{Update: u})
	})

	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	_, err := prog.Run()
	cancel()
	if perr := <-errc; err == nil {
		err = perr
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
