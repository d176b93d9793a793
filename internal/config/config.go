// Package config loads the fleet-wide configuration with viper's
// flags > env > file > defaults hierarchy, adapted from the teacher's
// internal/config/config.go onto the audit scanner's own components:
// orchestrator, LLM client, chunk index, SQLite storage, and logging.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/audit-scanner/internal/logger"
)

const (
	llmProviderGemini = "gemini"
	llmProviderOllama = "ollama"
)

// Config is the top-level configuration structure for both auditord (the
// daemon) and auditctl (the CLI).
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	LLM          LLMConfig          `mapstructure:"llm"`
	ChunkIndex   ChunkIndexConfig   `mapstructure:"chunkindex"`
	Database     DBConfig           `mapstructure:"database"`
	Logging      logger.Config      `mapstructure:"logging"`
}

// ServerConfig configures internal/statusapi's health/status/metrics surface.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	// Theme is scanwatch's default UI theme when neither --theme nor
	// AUDIT_SCANNER_THEME is set.
	Theme string `mapstructure:"theme"`
}

// OrchestratorConfig maps directly onto orchestrator.Config's fields plus
// the fleet-wide defaults spec.md §6 names.
type OrchestratorConfig struct {
	ReposDir               string        `mapstructure:"repos_dir"`
	GitToken               string        `mapstructure:"git_token"`
	MaxConcurrentScans     int64         `mapstructure:"max_concurrent_scans"`
	TickInterval           time.Duration `mapstructure:"tick_interval"`
	DefaultIntervalMinutes int           `mapstructure:"default_interval_minutes"`
	ScanCostBudgetUSD      float64       `mapstructure:"scan_cost_budget_usd"`
}

// LLMConfig selects and configures the provider-agnostic llmclient.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"` // gemini only
	Host     string `mapstructure:"host"`    // ollama only
}

func (c *LLMConfig) validate() error {
	switch c.Provider {
	case llmProviderGemini:
		if c.APIKey == "" {
			return errors.New("llm.api_key is required for the gemini provider")
		}
	case llmProviderOllama:
		if c.Host == "" {
			return errors.New("llm.host is required for the ollama provider")
		}
	default:
		return fmt.Errorf("unsupported llm.provider: %s", c.Provider)
	}
	return nil
}

// ChunkIndexConfig configures C7's optional semantic near-duplicate layer
// (internal/chunkindex.SemanticStore). Disabled by default — exact
// content-hash matching alone satisfies C7's core contract.
type ChunkIndexConfig struct {
	EnableSemanticDedup bool   `mapstructure:"enable_semantic_dedup"`
	QdrantHost          string `mapstructure:"qdrant_host"`
	EmbedderProvider    string `mapstructure:"embedder_provider"`
	EmbedderModel       string `mapstructure:"embedder_model"`
	OllamaHost          string `mapstructure:"ollama_host"`
	GeminiAPIKey        string `mapstructure:"gemini_api_key"`
}

func (c *ChunkIndexConfig) validate() error {
	if !c.EnableSemanticDedup {
		return nil
	}
	if c.QdrantHost == "" {
		return errors.New("chunkindex.qdrant_host is required when enable_semantic_dedup is set")
	}
	switch c.EmbedderProvider {
	case llmProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("chunkindex.gemini_api_key is required for the gemini embedder")
		}
	case llmProviderOllama:
		if c.OllamaHost == "" {
			return errors.New("chunkindex.ollama_host is required for the ollama embedder")
		}
	default:
		return fmt.Errorf("unsupported chunkindex.embedder_provider: %s", c.EmbedderProvider)
	}
	return nil
}

// DBConfig points at the fleet's SQLite database file.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// LoadConfig loads the configuration using Viper with the hierarchy:
// Flags (handled by caller) > Env Vars > Config File > Defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.audit-scanner")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded configuration", "file", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults fills in spec.md §6's fleet-wide defaults: $3.00 scan cost
// budget, a 60 minute scan interval, 2 concurrent scans.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.theme", "cyan")

	v.SetDefault("orchestrator.repos_dir", "./data/repos")
	v.SetDefault("orchestrator.max_concurrent_scans", 2)
	v.SetDefault("orchestrator.tick_interval", "60s")
	v.SetDefault("orchestrator.default_interval_minutes", 60)
	v.SetDefault("orchestrator.scan_cost_budget_usd", 3.00)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.host", "http://localhost:11434")
	v.SetDefault("llm.model", "qwen2.5-coder:7b")

	v.SetDefault("chunkindex.enable_semantic_dedup", false)
	v.SetDefault("chunkindex.embedder_provider", "ollama")
	v.SetDefault("chunkindex.ollama_host", "http://localhost:11434")
	v.SetDefault("chunkindex.embedder_model", "nomic-embed-text")

	v.SetDefault("database.path", "./data/audit-scanner.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// ValidateForServer checks the settings auditord needs to run the full
// daemon: an LLM provider and, if enabled, a semantic dedup embedder.
func (c *Config) ValidateForServer() error {
	if err := c.LLM.validate(); err != nil {
		return fmt.Errorf("llm config invalid: %w", err)
	}
	if err := c.ChunkIndex.validate(); err != nil {
		return fmt.Errorf("chunkindex config invalid: %w", err)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	return nil
}

// ValidateForCLI checks the narrower set auditctl needs for one-shot
// commands (scan --once, config validate).
func (c *Config) ValidateForCLI() error {
	if err := c.LLM.validate(); err != nil {
		return fmt.Errorf("llm config invalid: %w", err)
	}
	return nil
}
