// Package tui is a terminal dashboard over the operational database. It
// shows run history and logs, and queues commands for the daemon.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"price_tracker/models"
)

// Source is the ops store as the dashboard sees it.
type Source interface {
	ListSearchStats() ([]models.SearchStats, error)
	RecentRuns(limit int) ([]models.ScrapeRun, error)
	RecentLogs(limit int) ([]models.ScrapeLog, error)
	EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error
}

type tab int

const (
	tabDashboard tab = iota
	tabLogs
	tabCount
)

type tickMsg time.Time
type logTickMsg time.Time

// Model is the root bubbletea model.
type Model struct {
	source        Source
	activeTab     tab
	width, height int
	notification  string
	notifyUntil   time.Time
	now           func() time.Time

	dashboard Dashboard
	logs      Logs
}

func New(source Source, logPath string) Model {
	return Model{
		source:    source,
		activeTab: tabDashboard,
		now:       time.Now,
		dashboard: NewDashboard(source, logPath),
		logs:      NewLogs(source),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.dashboard.Init(),
		m.logs.Init(),
		tickCmd(),
		logTickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func logTickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return logTickMsg(t)
	})
}

// commandKeys maps keys to daemon commands.
var commandKeys = map[string]struct {
	cmd  models.CommandType
	note string
}{
	"s": {models.CmdScrapeNow, "Scrape command sent!"},
	"f": {models.CmdRefresh, "Refresh triggered!"},
	"m": {models.CmdRunMedia, "Media worker triggered!"},
	"p": {models.CmdPause, "Scraping paused"},
	"u": {models.CmdResume, "Scraping resumed"},
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "d":
			m.activeTab = tabDashboard
		case "l":
			m.activeTab = tabLogs
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "r":
			m.notify("Refreshed")
			return m, m.refreshActive()
		}
		if c, ok := commandKeys[key]; ok {
			if err := m.source.EnqueueCommand(c.cmd, nil); err != nil {
				m.notify(fmt.Sprintf("Command failed: %v", err))
			} else {
				m.notify(c.note)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		cmds = append(cmds, m.refreshActive(), tickCmd())

	case logTickMsg:
		cmds = append(cmds, m.dashboard.TailLog(), logTickCmd())
	}

	// Keys go to the active tab only, data messages to every view.
	var cmd tea.Cmd
	switch msg.(type) {
	case tea.KeyMsg:
		switch m.activeTab {
		case tabDashboard:
			m.dashboard, cmd = m.dashboard.Update(msg)
		case tabLogs:
			m.logs, cmd = m.logs.Update(msg)
		}
		cmds = append(cmds, cmd)
	default:
		m.dashboard, cmd = m.dashboard.Update(msg)
		cmds = append(cmds, cmd)
		m.logs, cmd = m.logs.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) notify(text string) {
	m.notification = text
	m.notifyUntil = m.now().Add(2 * time.Second)
}

func (m Model) refreshActive() tea.Cmd {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.Refresh()
	case tabLogs:
		return m.logs.Refresh()
	}
	return nil
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), m.renderContent(), m.renderStatusBar())
}

func (m Model) renderTabs() string {
	names := []string{"Dashboard", "Logs"}
	var rendered []string
	for i, name := range names {
		if tab(i) == m.activeTab {
			rendered = append(rendered, tabActive.Render(name))
		} else {
			rendered = append(rendered, tabInactive.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m Model) renderContent() string {
	if m.activeTab == tabLogs {
		return m.logs.View()
	}
	return m.dashboard.View()
}

func (m Model) renderStatusBar() string {
	left := "d Dash  l Logs  r Reload  s Scrape  f Refresh  m Media  p Pause  u Resume  q Quit"
	right := ""
	if m.now().Before(m.notifyUntil) {
		right = notification.Render(m.notification)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	return statusBar.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}
