// Package orchestrator implements the scan orchestrator (C10): the
// interval-driven scheduler that ties the git diff engine (C8), the per-file
// pipeline (C9), the checkpoint store (C6), and the project-review
// synthesizer (C11) together. Grounded on the teacher's
// internal/jobs/dispatcher.go worker-pool pattern, generalized from "one job
// queue, N workers" to "one interval tick, fan out up to max_concurrent_scans
// concurrent per-repo scans, each repo's own file loop strictly sequential."
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sevigo/audit-scanner/internal/config"
	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/filter"
	"github.com/sevigo/audit-scanner/internal/gitdiff"
	"github.com/sevigo/audit-scanner/internal/metrics"
	"github.com/sevigo/audit-scanner/internal/storage"
)

// Defaults from spec.md §6. ScanCostBudgetUSD has no default here — 0 is the
// meaningful "unlimited" value (P10), so the $3.00 default lives in
// internal/config, not in the orchestrator's zero-value handling.
const (
	defaultTickInterval       = 60 * time.Second
	defaultMaxConcurrentScans = 2
	defaultIntervalMinutes    = 60
)

// Config holds the orchestrator's fleet-wide settings. Per-repo scan
// intervals live on core.Repository; everything else here is global.
type Config struct {
	ReposDir           string
	GitToken           string
	MaxConcurrentScans int64
	TickInterval       time.Duration
	ScanCostBudgetUSD  float64 // 0 means unlimited (P10).
}

// Orchestrator is the top-level scan scheduler.
type Orchestrator struct {
	store    storage.Store
	git      core.GitEngine
	pipeline core.FilePipeline
	reviewer core.ReviewSynthesizer
	cfg      Config
	sem      *semaphore.Weighted
	logger   *slog.Logger

	// Metrics is optional: when set, every tick updates the Prometheus
	// gauges/counters internal/statusapi's /metrics endpoint serves.
	Metrics *metrics.Registry
}

// New wires the orchestrator from its constituent components, applying
// spec.md §6's budget defaults for any zero-valued Config field.
func New(store storage.Store, git core.GitEngine, pipeline core.FilePipeline, reviewer core.ReviewSynthesizer, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxConcurrentScans <= 0 {
		cfg.MaxConcurrentScans = defaultMaxConcurrentScans
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		git:      git,
		pipeline: pipeline,
		reviewer: reviewer,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentScans),
		logger:   logger,
	}
}

// Run is the top-level loop: every TickInterval, query all auto-scan repos
// and dispatch work under the semaphore. Blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// RunOnce executes a single tick synchronously — every auto-scan repo is
// processed (in parallel up to the semaphore bound) and RunOnce returns only
// once all of them have finished. Exposed for callers that want an immediate
// scan pass (tests, `auditctl scan --once`) instead of the interval loop.
func (o *Orchestrator) RunOnce(ctx context.Context) {
	o.tick(ctx)
}

func (o *Orchestrator) tick(ctx context.Context) {
	repos, err := o.store.GetAutoScanRepositories(ctx)
	if err != nil {
		o.logger.ErrorContext(ctx, "list auto-scan repositories failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, repo := range repos {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return // context cancelled while waiting for a permit.
		}
		wg.Add(1)
		go func(repo *core.Repository) {
			defer wg.Done()
			defer o.sem.Release(1)
			o.processRepo(ctx, repo)
		}(repo)
	}
	wg.Wait()
}

// processRepo handles one repo for one tick: on-demand bypass, interval
// gate, or a full scan cycle.
func (o *Orchestrator) processRepo(ctx context.Context, repo *core.Repository) {
	if repo.ReviewRequested {
		o.runOnDemandReview(ctx, repo)
		return
	}

	intervalSeconds := int64(repo.ScanIntervalMinutes) * 60
	if intervalSeconds <= 0 {
		intervalSeconds = defaultIntervalMinutes * 60
	}
	if time.Now().Unix()-repo.LastScanCheck < intervalSeconds {
		return
	}

	o.runScan(ctx, repo)
}

// runOnDemandReview implements the review_requested bypass: clear the flag
// atomically, resolve the repo path, and run C11 directly — no interval
// check, no file scan (spec.md §4.5).
func (o *Orchestrator) runOnDemandReview(ctx context.Context, repo *core.Repository) {
	if err := o.store.ClearReviewRequested(ctx, repo.ID); err != nil {
		o.logger.ErrorContext(ctx, "clear review_requested failed", "repo", repo.Name, "error", err)
		return
	}

	path := gitdiff.ResolvePath(repo.Path, o.cfg.ReposDir, repo.Name)
	if err := o.reviewer.Run(ctx, repo.ID, repo.Name, path); err != nil {
		o.logger.ErrorContext(ctx, "on-demand project review failed", "repo", repo.Name, "error", err)
		_ = o.store.LogScanEvent(ctx, repo.ID, "project_review_error", err.Error())
		return
	}
	_ = o.store.LogScanEvent(ctx, repo.ID, "project_review_complete", "on-demand review")
}

// runScan runs one full scan cycle for a repo: clone-or-pull, change
// discovery, checkpoint resume, the per-file loop, and completion.
func (o *Orchestrator) runScan(ctx context.Context, repo *core.Repository) {
	now := time.Now().Unix()
	if err := o.store.SetLastScanCheck(ctx, repo.ID, now); err != nil {
		o.logger.ErrorContext(ctx, "set last_scan_check failed", "repo", repo.Name, "error", err)
	}
	_ = o.store.LogScanEvent(ctx, repo.ID, "scan_start", "")

	if o.Metrics != nil {
		o.Metrics.ActiveScans.Inc()
		started := time.Now()
		defer func() {
			o.Metrics.ActiveScans.Dec()
			o.Metrics.ScanDurationSeconds.WithLabelValues(repo.Name).Observe(time.Since(started).Seconds())
		}()
	}

	path := gitdiff.ResolvePath(repo.Path, o.cfg.ReposDir, repo.Name)

	if repo.GitURL != nil && *repo.GitURL != "" {
		wasCloned := !gitdiff.HasLocalClone(path)
		if err := o.git.EnsureLocal(ctx, *repo.GitURL, path, o.cfg.GitToken); err != nil {
			o.logger.ErrorContext(ctx, "clone-or-pull failed", "repo", repo.Name, "error", err)
			_ = o.store.LogScanEvent(ctx, repo.ID, "clone_error", err.Error())
			_ = o.store.FailScan(ctx, repo.ID)
			return
		}
		if wasCloned {
			_ = o.store.LogScanEvent(ctx, repo.ID, "repo_cloned", path)
		} else {
			_ = o.store.LogScanEvent(ctx, repo.ID, "git_update", path)
		}
		if path != repo.Path {
			if err := o.store.UpdateRepositoryPath(ctx, repo.ID, path); err != nil {
				o.logger.ErrorContext(ctx, "persist repo path failed", "repo", repo.Name, "error", err)
			}
		}
	}

	changes, err := o.git.ChangedFiles(path, repo.LastCommitHash)
	if err != nil {
		o.logger.ErrorContext(ctx, "change discovery failed", "repo", repo.Name, "error", err)
		_ = o.store.FailScan(ctx, repo.ID)
		_ = o.store.LogScanEvent(ctx, repo.ID, "scan_error", err.Error())
		return
	}

	before := len(changes.Files)
	filtered := filter.FilterPaths(changes.Files)
	o.logger.InfoContext(ctx, "pre-flight filter", "repo", repo.Name, "before", before, "after", len(filtered))
	_ = o.store.LogScanEvent(ctx, repo.ID, "scan_progress", fmt.Sprintf("filtered %d -> %d candidate files", before, len(filtered)))

	if err := o.store.StartScan(ctx, repo.ID, now); err != nil {
		o.logger.ErrorContext(ctx, "start scan failed", "repo", repo.Name, "error", err)
		return
	}

	budget := o.cfg.ScanCostBudgetUSD
	repoCfg, err := config.LoadRepoConfig(path)
	switch {
	case err == nil && repoCfg.ScanCostBudgetUSD != nil:
		budget = *repoCfg.ScanCostBudgetUSD
	case err != nil && !errors.Is(err, config.ErrConfigNotFound):
		o.logger.WarnContext(ctx, "repo config load failed, using fleet default budget", "repo", repo.Name, "error", err)
	}

	o.runFileLoop(ctx, repo, path, changes, filtered, budget)
}

// runFileLoop executes the strictly sequential per-file loop, seeding from a
// valid checkpoint, and handles scan completion.
func (o *Orchestrator) runFileLoop(ctx context.Context, repo *core.Repository, path string, changes core.ChangeSet, filtered []string, budget float64) {
	var (
		filesAnalyzed  int
		filesCached    int
		apiCalls       int
		cumulativeCost float64
		startIdx       int
	)

	cp, err := o.store.GetCheckpoint(ctx, repo.ID)
	switch {
	case err == nil:
		if cp.TotalFiles == len(filtered) {
			filesAnalyzed = cp.FilesAnalyzed
			filesCached = cp.FilesCached
			cumulativeCost = cp.CumulativeCost
			startIdx = cp.LastCompletedIndex + 1
		} else {
			_ = o.store.DeleteCheckpoint(ctx, repo.ID)
		}
	case errors.Is(err, storage.ErrNotFound):
		// No prior checkpoint; start from scratch.
	default:
		o.logger.WarnContext(ctx, "load checkpoint failed, starting from scratch", "repo", repo.Name, "error", err)
	}

	budgetHalted := false
	var scanErr error

loop:
	for idx := startIdx; idx < len(filtered); idx++ {
		select {
		case <-ctx.Done():
			scanErr = ctx.Err()
			break loop
		default:
		}

		if budget > 0 && cumulativeCost >= budget {
			budgetHalted = true
			break
		}

		filePath := filtered[idx]
		result, err := o.pipeline.AnalyzeFile(ctx, repo.ID, path, filePath)
		if err != nil {
			scanErr = err
			break
		}

		filesAnalyzed++
		cumulativeCost += result.CostUSD
		if result.WasCacheHit {
			filesCached++
		} else if result.TokensUsed > 0 {
			apiCalls++
		}
		if o.Metrics != nil {
			o.Metrics.ObserveFileResult(repo.Name, result.WasCacheHit, result.TokensUsed)
			o.Metrics.SetScanProgress(repo.Name, cumulativeCost, filesAnalyzed, filesCached)
		}

		checkpoint := core.ScanCheckpoint{
			RepoID:             repo.ID,
			LastCompletedIndex: idx,
			LastCompletedFile:  filePath,
			FilesAnalyzed:      filesAnalyzed,
			FilesCached:        filesCached,
			CumulativeCost:     cumulativeCost,
			TotalFiles:         len(filtered),
		}
		if err := o.store.UpsertCheckpoint(ctx, checkpoint); err != nil {
			o.logger.ErrorContext(ctx, "upsert checkpoint failed", "repo", repo.Name, "error", err)
		}
		if err := o.store.UpdateScanProgress(ctx, repo.ID, filesAnalyzed, filePath, cumulativeCost, filesCached, apiCalls); err != nil {
			o.logger.ErrorContext(ctx, "update scan progress failed", "repo", repo.Name, "error", err)
		}
	}

	o.completeScan(ctx, repo, path, changes.HeadSHA, budgetHalted, scanErr, filesAnalyzed, filesCached, cumulativeCost)
}

// completeScan implements the completion rules, most importantly the
// commit-hash commit rule (P3): last_commit_hash advances only on a
// non-budget-halted, non-failed scan.
func (o *Orchestrator) completeScan(ctx context.Context, repo *core.Repository, path, headSHA string, budgetHalted bool, scanErr error, filesAnalyzed, filesCached int, cumulativeCost float64) {
	analyzedAt := time.Now().Unix()

	if scanErr != nil {
		_ = o.store.FailScan(ctx, repo.ID)
		if !errors.Is(scanErr, context.Canceled) {
			o.logger.ErrorContext(ctx, "scan failed", "repo", repo.Name, "error", scanErr)
			_ = o.store.LogScanEvent(ctx, repo.ID, "scan_error", scanErr.Error())
		}
		return
	}

	if err := o.store.CompleteScan(ctx, repo.ID, headSHA, budgetHalted, analyzedAt); err != nil {
		o.logger.ErrorContext(ctx, "complete scan failed", "repo", repo.Name, "error", err)
		return
	}

	if budgetHalted {
		if o.Metrics != nil {
			o.Metrics.BudgetHaltsTotal.WithLabelValues(repo.Name).Inc()
		}
		_ = o.store.LogScanEvent(ctx, repo.ID, "scan_complete",
			fmt.Sprintf("budget_halted files_analyzed=%d files_cached=%d cumulative_cost=%.4f", filesAnalyzed, filesCached, cumulativeCost))
		return
	}

	_ = o.store.LogScanEvent(ctx, repo.ID, "scan_complete",
		fmt.Sprintf("files_analyzed=%d files_cached=%d cumulative_cost=%.4f", filesAnalyzed, filesCached, cumulativeCost))

	// Checkpoint clearing depends only on the file loop finishing without a
	// budget halt, never on the review call's outcome — a review timeout or
	// 5xx must not leave a stale checkpoint behind to mis-seed a later scan.
	if err := o.store.DeleteCheckpoint(ctx, repo.ID); err != nil {
		o.logger.ErrorContext(ctx, "clear checkpoint failed", "repo", repo.Name, "error", err)
	}

	if err := o.reviewer.Run(ctx, repo.ID, repo.Name, path); err != nil {
		o.logger.ErrorContext(ctx, "project review failed", "repo", repo.Name, "error", err)
		_ = o.store.LogScanEvent(ctx, repo.ID, "project_review_error", err.Error())
		return
	}
	_ = o.store.LogScanEvent(ctx, repo.ID, "project_review_complete", "")
}
