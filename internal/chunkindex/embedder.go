package chunkindex

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"
)

// EmbedderConfig selects and configures the model SemanticStore embeds
// chunks with. Mirrors llmclient.Config's provider/model/host/key shape.
type EmbedderConfig struct {
	Provider string // "gemini" | "ollama"
	Model    string
	Host     string // ollama only
	APIKey   string // gemini only
}

// NewEmbedder builds the configured embedding model, adapted from the
// teacher's internal/wire/providers.go provideEmbedder.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig, logger *slog.Logger) (embeddings.Embedder, error) {
	var embedderLLM embeddings.Embedder
	var err error

	switch cfg.Provider {
	case "gemini":
		embedderLLM, err = gemini.New(ctx,
			gemini.WithEmbeddingModel(cfg.Model),
			gemini.WithAPIKey(cfg.APIKey),
		)
	case "ollama":
		embedderLLM, err = ollama.New(
			ollama.WithServerURL(cfg.Host),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(newEmbedderHTTPClient()),
			ollama.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create embedder model: %w", err)
	}
	return embeddings.NewEmbedder(embedderLLM)
}

func newEmbedderHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxConnsPerHost:     10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: 5 * time.Minute,
	}
}
