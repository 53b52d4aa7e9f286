package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"price_tracker/models"
)

var logLevels = []models.LogLevel{"", models.LogLevelInfo, models.LogLevelWarn, models.LogLevelError}

type logsMsg struct {
	logs []models.ScrapeLog
	err  error
}

// Logs lists scrape_logs rows, filterable by minimum level.
type Logs struct {
	source        Source
	width, height int
	logs          []models.ScrapeLog
	err           error
	levelIndex    int
	scrollOffset  int
}

func NewLogs(source Source) Logs {
	return Logs{source: source}
}

func (l Logs) Init() tea.Cmd {
	return l.Refresh()
}

func (l Logs) Refresh() tea.Cmd {
	return func() tea.Msg {
		logs, err := l.source.RecentLogs(200)
		return logsMsg{logs: logs, err: err}
	}
}

func (l Logs) Update(msg tea.Msg) (Logs, tea.Cmd) {
	switch msg := msg.(type) {
	case logsMsg:
		l.logs = msg.logs
		l.err = msg.err
		l.scrollOffset = 0

	case tea.WindowSizeMsg:
		l.width = msg.Width
		l.height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "left":
			if l.levelIndex > 0 {
				l.levelIndex--
				l.scrollOffset = 0
			}
		case "right":
			if l.levelIndex < len(logLevels)-1 {
				l.levelIndex++
				l.scrollOffset = 0
			}
		case "up", "k":
			if l.scrollOffset > 0 {
				l.scrollOffset--
			}
		case "down", "j":
			maxScroll := len(l.filtered()) - l.visibleLines()
			if l.scrollOffset < maxScroll {
				l.scrollOffset++
			}
		}
	}
	return l, nil
}

// filtered keeps rows at or above the selected level.
func (l Logs) filtered() []models.ScrapeLog {
	min := logLevels[l.levelIndex]
	if min == "" {
		return l.logs
	}
	var out []models.ScrapeLog
	for _, entry := range l.logs {
		if levelRank(entry.Level) >= levelRank(min) {
			out = append(out, entry)
		}
	}
	return out
}

func levelRank(level models.LogLevel) int {
	switch level {
	case models.LogLevelError:
		return 3
	case models.LogLevelWarn:
		return 2
	case models.LogLevelInfo:
		return 1
	}
	return 0
}

func (l Logs) visibleLines() int {
	if l.height <= 6 {
		return 20
	}
	return l.height - 6
}

func (l Logs) View() string {
	if l.err != nil {
		return statusError.Render(fmt.Sprintf("Error loading logs: %v", l.err))
	}

	var filters []string
	for i, level := range logLevels {
		name := strings.ToUpper(string(level))
		if name == "" {
			name = "ALL"
		}
		if i == l.levelIndex {
			filters = append(filters, tabActive.Render(name))
		} else {
			filters = append(filters, tabInactive.Render(name))
		}
	}

	rows := l.filtered()
	if len(rows) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			title.Render("Logs"),
			lipgloss.JoinHorizontal(lipgloss.Top, filters...),
			muted.Render("No log entries"),
		)
	}

	end := l.scrollOffset + l.visibleLines()
	if end > len(rows) {
		end = len(rows)
	}

	var lines []string
	for _, entry := range rows[l.scrollOffset:end] {
		lines = append(lines, renderLogRow(entry, l.width))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title.Render("Logs"),
		lipgloss.JoinHorizontal(lipgloss.Top, filters...),
		strings.Join(lines, "\n"),
	)
}

func renderLogRow(entry models.ScrapeLog, width int) string {
	style := lipgloss.NewStyle()
	switch entry.Level {
	case models.LogLevelError:
		style = statusError
	case models.LogLevelWarn:
		style = statusPending
	}

	line := fmt.Sprintf("%s %-5s %-14s %-12s %s",
		entry.Timestamp.Format("01-02 15:04:05"),
		strings.ToUpper(string(entry.Level)),
		truncate(entry.Event, 14),
		truncate(entry.SearchID, 12),
		entry.Message,
	)
	if width > 4 {
		line = truncate(line, width-2)
	}
	return style.Render(line)
}
