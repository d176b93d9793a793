package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sevigo/audit-scanner/internal/config"
	"github.com/sevigo/audit-scanner/internal/db"
	"github.com/sevigo/audit-scanner/internal/storage"
)

// initStoreCmd opens the database directly, the same lightweight path
// auditctl status uses: scanwatch only reads fleet state, so it has no
// need for the LLM client, pipeline, or orchestrator a full app.App wires.
func initStoreCmd(cfg *config.Config) tea.Cmd {
	return func() tea.Msg {
		dbConn, cleanup, err := db.NewDatabase(&cfg.Database)
		if err != nil {
			return storeInitializedMsg{err: fmt.Errorf("connect to database: %w", err)}
		}
		return storeInitializedMsg{store: storage.NewStore(dbConn.DB), cleanup: cleanup}
	}
}

func loadStatusCmd(store storage.Store) tea.Cmd {
	return func() tea.Msg {
		repos, err := store.GetAutoScanRepositories(context.Background())
		return statusLoadedMsg{repos: repos, err: err}
	}
}

// tickCmd schedules the next refresh; scanwatch polls rather than
// subscribing, since storage.Store exposes no change notifications.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
