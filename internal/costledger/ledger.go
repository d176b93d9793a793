package costledger

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/audit-scanner/internal/core"
)

// Ledger persists StaticDecisionRecord and LLMCostRecord rows, grounded on
// the teacher's sqlx usage in internal/storage/database.go.
type Ledger struct {
	db *sqlx.DB
}

// New returns a Ledger backed by the shared SQLite connection pool.
func New(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// LogStaticDecision writes one static_decisions row. Every file reaching the
// pre-filter produces exactly one record per scan pass (P5).
func (l *Ledger) LogStaticDecision(ctx context.Context, rec core.StaticDecisionRecord) error {
	const query = `
		INSERT INTO static_decisions (
			timestamp, file_path, repo_id, recommendation, skip_reason,
			static_issue_count, estimated_llm_value, llm_called,
			estimated_cost_saved_usd, actual_cost_usd, prompt_tier
		) VALUES (
			unixepoch(), :file_path, :repo_id, :recommendation, :skip_reason,
			:static_issue_count, :estimated_llm_value, :llm_called,
			:estimated_cost_saved_usd, :actual_cost_usd, :prompt_tier
		)`

	_, err := l.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("log static decision for %s: %w", rec.FilePath, err)
	}
	return nil
}

// LogLLMCost writes one llm_costs row and returns the computed cost.
func (l *Ledger) LogLLMCost(ctx context.Context, operation, model string, usage TokenUsage, cacheHit bool) (float64, error) {
	cost := CostOf(usage)

	const query = `
		INSERT INTO llm_costs (
			timestamp, operation, model, input_tokens, output_tokens,
			cached_tokens, cost_usd, cache_hit
		) VALUES (
			unixepoch(), :operation, :model, :input_tokens, :output_tokens,
			:cached_tokens, :cost_usd, :cache_hit
		)`

	rec := core.LLMCostRecord{
		Operation:    operation,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CachedTokens: usage.CachedTokens,
		CostUSD:      cost,
		CacheHit:     cacheHit,
	}

	if _, err := l.db.NamedExecContext(ctx, query, rec); err != nil {
		return 0, fmt.Errorf("log llm cost for operation %s: %w", operation, err)
	}
	return cost, nil
}

// PeriodCostUSD sums cost_usd across llm_costs rows in [startEpoch, endEpoch).
func (l *Ledger) PeriodCostUSD(ctx context.Context, startEpoch, endEpoch int64) (float64, error) {
	var total float64
	const query = `SELECT COALESCE(SUM(cost_usd), 0) FROM llm_costs WHERE timestamp >= ? AND timestamp < ?`
	if err := l.db.GetContext(ctx, &total, query, startEpoch, endEpoch); err != nil {
		return 0, fmt.Errorf("sum llm cost for period: %w", err)
	}
	return total, nil
}

// SavingsSummary aggregates the static_decisions table for a repo, used by
// the status API and scanwatch TUI.
type SavingsSummary struct {
	FilesSkipped         int
	FilesAnalyzed        int
	TotalEstimatedSaved  float64
	TotalActualCost      float64
}

// RepoSavings reports the cumulative savings/cost breakdown for a repo.
func (l *Ledger) RepoSavings(ctx context.Context, repoID int64) (SavingsSummary, error) {
	var s SavingsSummary
	const query = `
		SELECT
			COALESCE(SUM(CASE WHEN llm_called = 0 THEN 1 ELSE 0 END), 0) AS files_skipped,
			COALESCE(SUM(CASE WHEN llm_called = 1 THEN 1 ELSE 0 END), 0) AS files_analyzed,
			COALESCE(SUM(estimated_cost_saved_usd), 0) AS total_estimated_saved,
			COALESCE(SUM(actual_cost_usd), 0) AS total_actual_cost
		FROM static_decisions
		WHERE repo_id = ?`

	row := l.db.QueryRowxContext(ctx, query, repoID)
	if err := row.Scan(&s.FilesSkipped, &s.FilesAnalyzed, &s.TotalEstimatedSaved, &s.TotalActualCost); err != nil {
		return SavingsSummary{}, fmt.Errorf("repo savings for %d: %w", repoID, err)
	}
	return s, nil
}
