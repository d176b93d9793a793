// Package metrics exposes the fleet-wide Prometheus gauges and counters
// scraped by internal/statusapi's /metrics endpoint. Grounded on
// Sumatoshi-tech-codefang/internal/observability's RED-metrics idiom,
// adapted from OTel instruments onto prometheus/client_golang directly since
// that is the teacher's own dependency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every gauge/counter the orchestrator, pipeline, and
// review synthesizer update in the course of a scan.
type Registry struct {
	FilesAnalyzedTotal  *prometheus.CounterVec
	CacheHitsTotal      *prometheus.CounterVec
	LLMCallsTotal       *prometheus.CounterVec
	StaticSkipsTotal    *prometheus.CounterVec
	CumulativeCostUSD   *prometheus.GaugeVec
	CacheHitRatio       *prometheus.GaugeVec
	ScanDurationSeconds *prometheus.HistogramVec
	BudgetHaltsTotal    *prometheus.CounterVec
	ActiveScans         prometheus.Gauge
}

// New registers every instrument against reg and returns the bundle. Reg is
// typically prometheus.NewRegistry() so repeated construction (tests) does
// not collide with a package-level default registry.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		FilesAnalyzedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_scanner_files_analyzed_total",
			Help: "Total files run through the per-file pipeline, by repo.",
		}, []string{"repo"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_scanner_cache_hits_total",
			Help: "Total analysis-cache hits, by repo.",
		}, []string{"repo"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_scanner_llm_calls_total",
			Help: "Total LLM calls, by operation label.",
		}, []string{"operation"}),
		StaticSkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_scanner_static_skips_total",
			Help: "Total files the static pre-filter recommended skipping, by repo.",
		}, []string{"repo"}),
		CumulativeCostUSD: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audit_scanner_cumulative_cost_usd",
			Help: "Cumulative LLM cost for the repo's in-progress or last scan.",
		}, []string{"repo"}),
		CacheHitRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audit_scanner_cache_hit_ratio",
			Help: "Fraction of analyzed files served from cache for the repo's last scan.",
		}, []string{"repo"}),
		ScanDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_scanner_scan_duration_seconds",
			Help:    "Wall-clock duration of a completed scan pass, by repo.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"repo"}),
		BudgetHaltsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_scanner_budget_halts_total",
			Help: "Total scans halted by the per-scan cost budget, by repo.",
		}, []string{"repo"}),
		ActiveScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_scanner_active_scans",
			Help: "Number of repo scans currently running concurrently.",
		}),
	}

	reg.MustRegister(
		r.FilesAnalyzedTotal,
		r.CacheHitsTotal,
		r.LLMCallsTotal,
		r.StaticSkipsTotal,
		r.CumulativeCostUSD,
		r.CacheHitRatio,
		r.ScanDurationSeconds,
		r.BudgetHaltsTotal,
		r.ActiveScans,
	)

	return r
}

// ObserveFileResult updates the per-file counters/gauges after one
// pipeline.AnalyzeFile call.
func (r *Registry) ObserveFileResult(repo string, wasCacheHit bool, tokensUsed int) {
	r.FilesAnalyzedTotal.WithLabelValues(repo).Inc()
	if wasCacheHit {
		r.CacheHitsTotal.WithLabelValues(repo).Inc()
	} else if tokensUsed > 0 {
		r.LLMCallsTotal.WithLabelValues("analyze_file").Inc()
	}
}

// SetScanProgress updates the live cost/ratio gauges shown by the status API.
func (r *Registry) SetScanProgress(repo string, cumulativeCost float64, filesAnalyzed, filesCached int) {
	r.CumulativeCostUSD.WithLabelValues(repo).Set(cumulativeCost)
	if filesAnalyzed > 0 {
		r.CacheHitRatio.WithLabelValues(repo).Set(float64(filesCached) / float64(filesAnalyzed))
	}
}
