// Package handler implements internal/statusapi's HTTP handlers, split out
// the way the teacher splits internal/server/handler from its router.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/storage"
)

// StatusHandler serves the fleet's current scan status.
type StatusHandler struct {
	store  storage.Store
	logger *slog.Logger
}

// NewStatusHandler wires a status handler against the shared store.
func NewStatusHandler(store storage.Store, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{store: store, logger: logger}
}

// repoStatus is the JSON shape for one repository's entry — a DTO since
// core.Repository carries db tags, not json tags.
type repoStatus struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	AutoScan            bool    `json:"auto_scan"`
	ScanIntervalMinutes int     `json:"scan_interval_minutes"`
	LastScanCheck       int64   `json:"last_scan_check"`
	LastCommitHash      *string `json:"last_commit_hash,omitempty"`
	ReviewRequested     bool    `json:"review_requested"`
	ScanFilesProcessed  int     `json:"scan_files_processed"`
	ScanCurrentFile     *string `json:"scan_current_file,omitempty"`
	ScanCostAccumulated float64 `json:"scan_cost_accumulated"`
	ScanCacheHits       int     `json:"scan_cache_hits"`
	ScanAPICalls        int     `json:"scan_api_calls"`
	LastAnalyzed        *int64  `json:"last_analyzed,omitempty"`
}

func toRepoStatus(r *core.Repository) repoStatus {
	return repoStatus{
		ID:                  r.ID,
		Name:                r.Name,
		AutoScan:            r.AutoScan,
		ScanIntervalMinutes: r.ScanIntervalMinutes,
		LastScanCheck:       r.LastScanCheck,
		LastCommitHash:      r.LastCommitHash,
		ReviewRequested:     r.ReviewRequested,
		ScanFilesProcessed:  r.ScanFilesProcessed,
		ScanCurrentFile:     r.ScanCurrentFile,
		ScanCostAccumulated: r.ScanCostAccumulated,
		ScanCacheHits:       r.ScanCacheHits,
		ScanAPICalls:        r.ScanAPICalls,
		LastAnalyzed:        r.LastAnalyzed,
	}
}

// List handles GET /api/v1/status: every auto-scan repository's current
// scan progress, for scanwatch and any external dashboard.
func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	repos, err := h.store.GetAutoScanRepositories(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list repositories failed", "error", err)
		http.Error(w, "failed to load repository status", http.StatusInternalServerError)
		return
	}

	out := make([]repoStatus, 0, len(repos))
	for _, repo := range repos {
		out = append(out, toRepoStatus(repo))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.logger.ErrorContext(r.Context(), "encode status response failed", "error", err)
	}
}
