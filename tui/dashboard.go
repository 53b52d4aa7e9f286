package tui

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"price_tracker/models"
)

type dashboardDataMsg struct {
	stats []models.SearchStats
	runs  []models.ScrapeRun
	err   error
}

type logTailMsg struct {
	lines   []string
	modTime time.Time
}

// Dashboard shows per-search stats, recent runs and the daemon log tail.
type Dashboard struct {
	source        Source
	width, height int
	stats         []models.SearchStats
	runs          []models.ScrapeRun
	err           error
	logLines      []string
	logPath       string
	logScroll     int // 0 = newest
	logViewport   int
	logBuffer     int
	logModTime    time.Time
}

func NewDashboard(source Source, logPath string) Dashboard {
	if logPath == "" {
		logPath = "daemon.log"
	}
	return Dashboard{
		source:      source,
		logPath:     logPath,
		logViewport: 20,
		logBuffer:   200,
	}
}

func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.Refresh(), d.TailLog())
}

func (d Dashboard) Refresh() tea.Cmd {
	return func() tea.Msg {
		stats, err := d.source.ListSearchStats()
		if err != nil {
			return dashboardDataMsg{err: err}
		}
		runs, err := d.source.RecentRuns(10)
		return dashboardDataMsg{stats: stats, runs: runs, err: err}
	}
}

func (d Dashboard) TailLog() tea.Cmd {
	return func() tea.Msg {
		lines, modTime := readLastLines(d.logPath, d.logBuffer)
		return logTailMsg{lines, modTime}
	}
}

func readLastLines(path string, n int) ([]string, time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		return []string{"(no log file)"}, time.Time{}
	}

	f, err := os.Open(path)
	if err != nil {
		return []string{"(no log file)"}, time.Time{}
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if len(all) == 0 {
		return []string{"(empty log)"}, info.ModTime()
	}

	start := len(all) - n
	if start < 0 {
		start = 0
	}
	return all[start:], info.ModTime()
}

func (d Dashboard) Update(msg tea.Msg) (Dashboard, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.stats = msg.stats
		d.runs = msg.runs
		d.err = msg.err
	case logTailMsg:
		d.logLines = msg.lines
		d.logModTime = msg.modTime
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height - 4
	case tea.KeyMsg:
		maxScroll := len(d.logLines) - d.logViewport
		if maxScroll < 0 {
			maxScroll = 0
		}
		switch msg.String() {
		case "up", "k":
			d.logScroll = clamp(d.logScroll+1, 0, maxScroll)
		case "down", "j":
			d.logScroll = clamp(d.logScroll-1, 0, maxScroll)
		case "pgup":
			d.logScroll = clamp(d.logScroll+10, 0, maxScroll)
		case "pgdown":
			d.logScroll = clamp(d.logScroll-10, 0, maxScroll)
		case "home":
			d.logScroll = maxScroll
		case "end":
			d.logScroll = 0
		}
	}
	return d, nil
}

func (d Dashboard) View() string {
	if d.err != nil {
		return statusError.Render(fmt.Sprintf("Error loading stats: %v", d.err))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		title.Render("Dashboard"),
		d.renderStatCards(),
		"",
		d.renderSearchCards(),
		"",
		title.Render("Recent Runs"),
		d.renderRunsTable(),
		"",
		d.renderLogTail(),
	)
}

func (d Dashboard) renderStatCards() string {
	var found, appended, dropped int
	for _, r := range d.runs {
		found += r.ListingsFound
		appended += r.PricesAppended
		dropped += r.Dropped
	}
	cards := []string{
		renderStatCard("Searches", fmt.Sprintf("%d", len(d.stats))),
		renderStatCard("Found", fmt.Sprintf("%d", found)),
		renderStatCard("Prices", fmt.Sprintf("%d", appended)),
		renderStatCard("Dropped", fmt.Sprintf("%d", dropped)),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func renderStatCard(label, value string) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		statValue.Render(value),
		statLabel.Render(label),
	)
	return cardBorder.Width(16).Render(content)
}

func (d Dashboard) renderSearchCards() string {
	if len(d.stats) == 0 {
		return muted.Render("No searches have run yet")
	}

	var cards []string
	for _, s := range d.stats {
		cards = append(cards, renderSearchCard(s))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func renderSearchCard(s models.SearchStats) string {
	status, style := runStatusLabel(s.LastRunStatus)

	lastRun := "never"
	if s.LastRunAt != nil {
		lastRun = relativeTime(*s.LastRunAt, time.Now())
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		statValue.Render(truncate(s.SearchID, 20)),
		style.Render(status),
		statLabel.Render(fmt.Sprintf("Last: %s", lastRun)),
		statLabel.Render(fmt.Sprintf("Runs: %d", s.TotalRuns)),
		statLabel.Render(fmt.Sprintf("Rate: %.0f%%", s.SuccessRate*100)),
	)
	return searchCardBorder.Width(24).Render(content)
}

func runStatusLabel(status string) (string, lipgloss.Style) {
	switch models.RunStatus(status) {
	case models.RunStatusCompleted:
		return "✓ completed", statusSuccess
	case models.RunStatusFailed:
		return "✗ failed", statusError
	case models.RunStatusRunning:
		return "◐ running", statusPending
	}
	return "○ never run", statusPending
}

func (d Dashboard) renderRunsTable() string {
	if len(d.runs) == 0 {
		return muted.Render("No runs yet")
	}

	header := fmt.Sprintf("%-16s %-10s %-9s %6s %6s %6s %6s %6s",
		"Search", "Status", "Started", "Found", "New", "Prices", "Drop", "Errors")
	rows := tableHeader.Render(header) + "\n"

	for _, r := range d.runs {
		_, style := runStatusLabel(string(r.Status))
		rows += fmt.Sprintf("%-16s %s %-9s %6d %6d %6d %6d %6d\n",
			truncate(r.SearchID, 16),
			style.Render(fmt.Sprintf("%-10s", r.Status)),
			r.StartedAt.Format("15:04:05"),
			r.ListingsFound,
			r.ProductsNew,
			r.PricesAppended,
			r.Dropped,
			r.ErrorsCount,
		)
	}
	return rows
}

func (d Dashboard) renderLogTail() string {
	width := d.width - 4
	if width < 20 {
		width = 80
	}
	if len(d.logLines) == 0 {
		return logBox.Width(width).Render(muted.Render("(waiting for logs...)"))
	}

	total := len(d.logLines)
	end := clamp(total-d.logScroll, 0, total)
	start := end - d.logViewport
	if start < 0 {
		start = 0
	}

	var lines []string
	for _, line := range d.logLines[start:end] {
		lines = append(lines, styleLogLine(truncate(line, width-4)))
	}

	state := statusSuccess.Render(" ● LIVE ")
	if d.logScroll > 0 {
		state = statusPending.Render(fmt.Sprintf(" ↑%d ", d.logScroll))
	}
	header := title.Render("Log") + state + muted.Render(fmt.Sprintf("[%d-%d/%d]", start+1, end, total))
	return logBox.Width(width).Render(header + "\n" + strings.Join(lines, "\n"))
}

// styleLogLine colours slog text lines by their level=... attribute.
func styleLogLine(line string) string {
	switch {
	case strings.Contains(line, "level=ERROR"):
		return statusError.Render(line)
	case strings.Contains(line, "level=WARN"):
		return statusPending.Render(line)
	case strings.Contains(line, "level=DEBUG"):
		return muted.Render(line)
	}
	return line
}

func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
