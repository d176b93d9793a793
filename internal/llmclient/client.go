// Package llmclient implements the provider-agnostic ask_tracked wire
// contract (spec.md §6): the core only ever calls
// AskTracked(prompt, system?, operation_label) → {content, total_tokens,
// cost_usd}; it never constructs HTTP requests directly. Grounded on the
// teacher's internal/app/app.go createLLM/createGeneratorLLM provider
// switch and internal/llm/rag.go's generateWithTimeout call pattern.
package llmclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/costledger"
)

const defaultCallTimeout = 5 * time.Minute

// Config selects and configures the underlying LLM provider.
type Config struct {
	Provider string // "gemini" | "ollama"
	Model    string
	APIKey   string // gemini only
	Host     string // ollama only
}

// Client wraps an llms.Model behind the ask_tracked contract, logging every
// call to the cost ledger.
type Client struct {
	model     llms.Model
	ledger    *costledger.Ledger
	modelName string
	logger    *slog.Logger
}

// New constructs the configured provider and wraps it.
func New(ctx context.Context, cfg Config, ledger *costledger.Ledger, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	model, err := buildModel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Client{model: model, ledger: ledger, modelName: cfg.Model, logger: logger}, nil
}

func buildModel(ctx context.Context, cfg Config, logger *slog.Logger) (llms.Model, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return gemini.New(ctx, gemini.WithModel(cfg.Model), gemini.WithAPIKey(cfg.APIKey))
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.Host),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(longRunningHTTPClient()),
			ollama.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func longRunningHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 15 * time.Minute}
}

// AskTracked implements core.LLMClient: calls the provider, estimates token
// usage with the 70/30 input/output split heuristic (goframe's Call returns
// only text, never usage), logs the call to the cost ledger, and returns the
// computed cost alongside the content.
func (c *Client) AskTracked(ctx context.Context, req core.AskRequest) (core.AskResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}

	type result struct {
		content string
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		content, err := c.model.Call(ctx, prompt)
		select {
		case resultCh <- result{content, err}:
		case <-ctx.Done():
		}
	}()

	var content string
	select {
	case res := <-resultCh:
		if res.err != nil {
			return core.AskResponse{}, fmt.Errorf("llm call (%s) failed: %w", req.OperationLabel, res.err)
		}
		content = res.content
	case <-ctx.Done():
		return core.AskResponse{}, fmt.Errorf("llm call (%s) timed out: %w", req.OperationLabel, ctx.Err())
	}

	estimatedChars := len(prompt) + len(content)
	totalTokens := costledger.EstimateTokens(estimatedChars)
	usage := costledger.SplitCombinedTokens(totalTokens)

	cost := costledger.CostOf(usage)
	if c.ledger != nil {
		loggedCost, err := c.ledger.LogLLMCost(ctx, req.OperationLabel, c.modelName, usage, false)
		if err != nil {
			c.logger.Error("failed to log llm cost", "operation", req.OperationLabel, "error", err)
		} else {
			cost = loggedCost
		}
	}

	return core.AskResponse{Content: content, TotalTokens: totalTokens, CostUSD: cost}, nil
}

var _ core.LLMClient = (*Client)(nil)
