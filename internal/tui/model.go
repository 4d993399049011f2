// Package tui renders the scan dashboard in a terminal with bubbletea.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/b0ase/cardlog/internal/dashboard"
	"github.com/b0ase/cardlog/internal/model"
)

type countersMsg dashboard.Counters

type rowsMsg []model.LogRecord

type notifyMsg string

type hideMsg struct{}

var (
	cardStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 2).Width(22)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	toastStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("28")).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model is the bubbletea model. Its fields only change in Update, driven by
// the messages a View sends.
type Model struct {
	server   string
	counters dashboard.Counters
	rows     []model.LogRecord
	toast    string
	tbl      table.Model
	width    int
	height   int
}

// NewModel returns an empty dashboard labelled with the server it watches.
func NewModel(server string) *Model {
	tbl := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 19},
			{Title: "Card UID", Width: 16},
			{Title: "User", Width: 24},
		}),
		table.WithHeight(15),
	)
	return &Model{server: server, tbl: tbl}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		// counters, toast, footer and table chrome
		if h := msg.Height - 10; h > 3 {
			m.tbl.SetHeight(h)
		}
		return m, nil
	case countersMsg:
		m.counters = dashboard.Counters(msg)
		return m, nil
	case rowsMsg:
		m.rows = []model.LogRecord(msg)
		m.tbl.SetRows(tableRows(m.rows))
		return m, nil
	case notifyMsg:
		m.toast = string(msg)
		return m, nil
	case hideMsg:
		m.toast = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.tbl, cmd = m.tbl.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	var b strings.Builder

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card("Total Scans", m.counters.TotalScans),
		card("Unique Users", m.counters.UniqueUsers),
		card("Today's Scans", m.counters.TodayScans),
	)
	b.WriteString(cards)
	b.WriteString("\n")

	if m.toast != "" {
		b.WriteString(toastStyle.Render(m.toast))
	}
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString(labelStyle.Render("Waiting for card scans..."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.tbl.View())
		b.WriteString("\n")
	}

	b.WriteString(footerStyle.Render(fmt.Sprintf("%s | %d rows | q to quit", m.server, len(m.rows))))
	return b.String()
}

// Counters returns what the cards currently show.
func (m *Model) Counters() dashboard.Counters { return m.counters }

// Toast returns the visible notification, or "" when hidden.
func (m *Model) Toast() string { return m.toast }

func card(label string, n int) string {
	return cardStyle.Render(labelStyle.Render(label) + "\n" + valueStyle.Render(fmt.Sprint(n)))
}

func tableRows(recs []model.LogRecord) []table.Row {
	rows := make([]table.Row, len(recs))
	for i, r := range recs {
		rows[i] = table.Row{r.Time, r.UID, r.User}
	}
	return rows
}
