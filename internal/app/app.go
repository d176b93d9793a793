// Package app initializes and orchestrates the main components of the
// audit scanner: the central store, the scan orchestrator, the per-file
// pipeline, the project-review synthesizer, and the status API. Adapted
// from the teacher's internal/app/app.go, which wired a RAG chat service
// instead of a scan fleet.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sevigo/audit-scanner/internal/chunkindex"
	"github.com/sevigo/audit-scanner/internal/config"
	"github.com/sevigo/audit-scanner/internal/costledger"
	"github.com/sevigo/audit-scanner/internal/db"
	"github.com/sevigo/audit-scanner/internal/gitdiff"
	"github.com/sevigo/audit-scanner/internal/llmclient"
	"github.com/sevigo/audit-scanner/internal/metrics"
	"github.com/sevigo/audit-scanner/internal/orchestrator"
	"github.com/sevigo/audit-scanner/internal/pipeline"
	"github.com/sevigo/audit-scanner/internal/promptrouter"
	"github.com/sevigo/audit-scanner/internal/review"
	"github.com/sevigo/audit-scanner/internal/statusapi"
	"github.com/sevigo/audit-scanner/internal/storage"
	"github.com/sevigo/audit-scanner/internal/staticanalysis"
	"github.com/sevigo/audit-scanner/internal/todoscanner"
)

// App holds the main application components shared by auditord (the
// daemon), auditctl (the CLI), and scanwatch (the TUI).
type App struct {
	Store        storage.Store
	Orchestrator *orchestrator.Orchestrator
	ChunkIndex   *chunkindex.Index
	Cfg          *config.Config

	logger    *slog.Logger
	statusSrv *statusapi.Server
	pipeline  *pipeline.Pipeline
	cancel    context.CancelFunc
}

// NewApp wires every component from cfg and returns the assembled App plus
// a cleanup func that releases the database connection. Callers must also
// call App.Stop once Start returns, to flush the per-repo analysis caches.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, func(), error) {
	logger.Info("initializing audit scanner application",
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"max_concurrent_scans", cfg.Orchestrator.MaxConcurrentScans,
		"repos_dir", cfg.Orchestrator.ReposDir,
	)

	dbConn, dbCleanup, err := db.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := storage.NewStore(dbConn.DB)
	ledger := costledger.New(dbConn.DB)
	chunkIdx := chunkindex.New(dbConn.DB)
	gitEngine := gitdiff.New(logger.With("component", "gitdiff"))

	llmClient, err := llmclient.New(ctx, llmclient.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Host:     cfg.LLM.Host,
	}, ledger, logger.With("component", "llmclient"))
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	router, err := promptrouter.New()
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to initialize prompt router: %w", err)
	}

	analyzer := staticanalysis.New(todoscanner.New())

	filePipeline := pipeline.New(cfg.LLM.Provider, cfg.LLM.Model, analyzer, router, ledger, llmClient)
	if extractor, err := chunkindex.NewExtractor(); err != nil {
		logger.Warn("chunk index extractor unavailable, cross-repo dedup disabled", "error", err)
	} else {
		filePipeline.ChunkIndex = chunkIdx
		filePipeline.Extractor = extractor

		if cfg.ChunkIndex.EnableSemanticDedup {
			embedder, err := chunkindex.NewEmbedder(ctx, chunkindex.EmbedderConfig{
				Provider: cfg.ChunkIndex.EmbedderProvider,
				Model:    cfg.ChunkIndex.EmbedderModel,
				Host:     cfg.ChunkIndex.OllamaHost,
				APIKey:   cfg.ChunkIndex.GeminiAPIKey,
			}, logger.With("component", "chunkindex-embedder"))
			if err != nil {
				logger.Warn("semantic dedup embedder unavailable, near-duplicate search disabled", "error", err)
			} else {
				filePipeline.Semantic = chunkindex.NewSemanticStore(cfg.ChunkIndex.QdrantHost, embedder, cfg.ChunkIndex.EmbedderModel, logger.With("component", "chunkindex-semantic"))
			}
		}
	}

	reviewer, err := review.New(store, llmClient, logger.With("component", "review"))
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to initialize review synthesizer: %w", err)
	}

	orchestratorCfg := orchestrator.Config{
		ReposDir:           cfg.Orchestrator.ReposDir,
		GitToken:           cfg.Orchestrator.GitToken,
		MaxConcurrentScans: cfg.Orchestrator.MaxConcurrentScans,
		TickInterval:       cfg.Orchestrator.TickInterval,
		ScanCostBudgetUSD:  cfg.Orchestrator.ScanCostBudgetUSD,
	}
	orch := orchestrator.New(store, gitEngine, filePipeline, reviewer, orchestratorCfg, logger.With("component", "orchestrator"))

	registry := prometheus.NewRegistry()
	orch.Metrics = metrics.New(registry)

	statusSrv := statusapi.NewServer(cfg.Server.Port, store, registry, logger.With("component", "statusapi"))

	logger.Info("audit scanner application initialized successfully")
	return &App{
			Store:        store,
			Orchestrator: orch,
			ChunkIndex:   chunkIdx,
			Cfg:          cfg,
			logger:       logger,
			statusSrv:    statusSrv,
			pipeline:     filePipeline,
		}, func() {
			dbCleanup()
		}, nil
}

// Start runs the scan orchestrator's scheduling loop in the background and
// blocks on the status API server. Returns when the status server stops or
// fails; callers should call Stop (typically from a signal handler) to end
// both.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("starting audit scanner", "server_port", a.Cfg.Server.Port)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		if err := a.Orchestrator.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("orchestrator loop stopped with error", "error", err)
		}
	}()

	if err := a.statusSrv.Start(); err != nil {
		a.logger.Error("status API server failed", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly: the status server first (to stop
// accepting new requests), then the orchestrator loop, then every open
// per-repo analysis cache.
func (a *App) Stop() error {
	var shutdownErr error
	a.logger.Info("shutting down audit scanner services")

	if a.statusSrv != nil {
		if err := a.statusSrv.Stop(); err != nil {
			a.logger.Error("error during status API shutdown", "error", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.pipeline.Close(); err != nil {
		a.logger.Error("error closing analysis caches", "error", err)
		shutdownErr = errors.Join(shutdownErr, err)
	}

	if shutdownErr != nil {
		a.logger.Error("audit scanner stopped with errors", "error", shutdownErr)
	} else {
		a.logger.Info("audit scanner stopped successfully")
	}
	return shutdownErr
}
