package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sevigo/audit-scanner/internal/config"
	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/storage"
)

const asciiLogo = `
╔══════════════════════════════════════════════════════════════╗
║    █████╗ ██╗   ██╗██████╗ ██╗████████╗                        ║
║   ██╔══██╗██║   ██║██╔══██╗██║╚══██╔══╝                        ║
║   ███████║██║   ██║██║  ██║██║   ██║     ███████╗ ██████╗ █████╗║
║   ██╔══██║██║   ██║██║  ██║██║   ██║     ██╔════╝██╔════╝██╔══██╗║
║   ██║  ██║╚██████╔╝██████╔╝██║   ██║     ███████╗╚██████╗╚█████╔╝║
║   ╚═╝  ╚═╝ ╚═════╝ ╚═════╝ ╚═╝   ╚═╝     ╚══════╝ ╚═════╝ ╚════╝ ║
║                                                                  ║
║                   FLEET SCAN STATUS MONITOR                      ║
╚══════════════════════════════════════════════════════════════╝
`

const refreshInterval = 5 * time.Second

type model struct {
	styles styles
	cfg    *config.Config

	store   storage.Store
	cleanup func()

	viewport  viewport.Model
	spinner   spinner.Model
	isLoading bool

	repos    []*core.Repository
	err      error
	lastPoll time.Time
}

func initialModel(cfg *config.Config, theme ThemeName) *model {
	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))

	return &model{
		styles:    GetTheme(theme),
		cfg:       cfg,
		spinner:   sp,
		isLoading: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(initStoreCmd(m.cfg), m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		spCmd tea.Cmd
		vpCmd tea.Cmd
	)
	m.spinner, spCmd = m.spinner.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "r":
			if m.store != nil {
				m.isLoading = true
				return m, tea.Batch(m.spinner.Tick, loadStatusCmd(m.store))
			}
		}

	case storeInitializedMsg:
		if msg.err != nil {
			m.isLoading = false
			m.err = msg.err
			return m, nil
		}
		m.store = msg.store
		m.cleanup = msg.cleanup
		return m, loadStatusCmd(m.store)

	case statusLoadedMsg:
		m.isLoading = false
		m.lastPoll = time.Now()
		m.err = msg.err
		if msg.err == nil {
			m.repos = msg.repos
		}
		return m, tickCmd(refreshInterval)

	case tickMsg:
		if m.store != nil {
			return m, loadStatusCmd(m.store)
		}

	case tea.WindowSizeMsg:
		m.styles.header.Width(msg.Width - 4)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 8
	}

	return m, tea.Batch(spCmd, vpCmd)
}

func (m *model) View() string {
	if m.store == nil && m.err == nil {
		return fmt.Sprintf("\n  %s CONNECTING TO FLEET DATABASE...\n\n", m.spinner.View())
	}

	var body strings.Builder
	if m.err != nil {
		body.WriteString(m.styles.error.Render("⚠ " + m.err.Error()))
		body.WriteString("\n")
	}
	if len(m.repos) == 0 && m.err == nil {
		body.WriteString(m.styles.inactive.Render("No auto-scan repositories configured."))
	} else {
		body.WriteString(m.renderTable())
	}
	m.viewport.SetContent(body.String())

	loadingIndicator := ""
	if m.isLoading {
		loadingIndicator = m.spinner.View() + " REFRESHING... "
	}
	footer := fmt.Sprintf("%s│ %d repos │ last refresh: %s │ [r]efresh [q]uit",
		loadingIndicator, len(m.repos), pollTimeLabel(m.lastPoll))

	return m.styles.app.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.styles.ascii.Render(asciiLogo),
			m.styles.viewport.Render(m.viewport.View()),
			m.styles.footer.Render(footer),
		),
	)
}

func pollTimeLabel(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("15:04:05")
}

func (m *model) renderTable() string {
	var b strings.Builder
	header := fmt.Sprintf("%-28s %-15s %8s %8s %8s %10s %-9s",
		"REPOSITORY", "STATUS", "FILES", "CACHED", "API", "COST", "INTERVAL")
	b.WriteString(m.styles.tableHead.Render(header))
	b.WriteString("\n")

	for _, repo := range m.repos {
		status := "idle"
		rowStyle := m.styles.tableRow
		switch {
		case repo.ScanStartedAt != nil:
			status = "scanning"
			rowStyle = m.styles.success
		case repo.ReviewRequested:
			status = "review pending"
			rowStyle = m.styles.warning
		}

		row := fmt.Sprintf("%-28s %-15s %8d %8d %8d %10s %-9s",
			truncate(repo.Name, 28),
			status,
			repo.ScanFilesProcessed,
			repo.ScanCacheHits,
			repo.ScanAPICalls,
			fmt.Sprintf("$%.4f", repo.ScanCostAccumulated),
			fmt.Sprintf("%dm", repo.ScanIntervalMinutes),
		)
		b.WriteString(rowStyle.Render(row))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
