// Command scanwatch is a terminal dashboard over the fleet's scan status,
// adapted from the teacher's cmd/terminal RAG-chat TUI onto a read-only
// status monitor: no chat, no repo registration, just the same theme
// system polling internal/storage on an interval.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sevigo/audit-scanner/internal/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	themeFlag := flag.String("theme", "", "UI theme (cyan, matrix, amber, cyberpunk, ice, dracula, fire)")
	listThemes := flag.Bool("list-themes", false, "List all available themes")
	flag.Parse()

	if *listThemes {
		fmt.Println("Available themes:")
		for _, theme := range ListThemes() {
			fmt.Printf("  - %s\n", theme)
		}
		os.Exit(0)
	}

	selectedTheme := *themeFlag
	if selectedTheme == "" {
		selectedTheme = os.Getenv("AUDIT_SCANNER_THEME")
	}
	if selectedTheme == "" {
		selectedTheme = cfg.Server.Theme
	}
	if selectedTheme == "" {
		selectedTheme = "cyan"
	}

	theme := ThemeName(selectedTheme)
	validTheme := false
	for _, t := range ListThemes() {
		if t == theme {
			validTheme = true
			break
		}
	}
	if !validTheme {
		fmt.Printf("Invalid theme '%s'. Use --list-themes to see available options.\n", theme)
		os.Exit(1)
	}

	m := initialModel(cfg, theme)
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if fm, ok := finalModel.(*model); ok && fm.cleanup != nil {
		fm.cleanup()
	}
	if err != nil {
		slog.Error("error running scanwatch", "error", err)
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
