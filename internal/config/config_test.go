package config

import "testing"

func TestLLMConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LLMConfig
		wantErr bool
	}{
		{"ollama with host", LLMConfig{Provider: "ollama", Host: "http://localhost:11434"}, false},
		{"ollama missing host", LLMConfig{Provider: "ollama"}, true},
		{"gemini with key", LLMConfig{Provider: "gemini", APIKey: "key"}, false},
		{"gemini missing key", LLMConfig{Provider: "gemini"}, true},
		{"unknown provider", LLMConfig{Provider: "bedrock"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChunkIndexConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkIndexConfig
		wantErr bool
	}{
		{"disabled needs nothing", ChunkIndexConfig{EnableSemanticDedup: false}, false},
		{"enabled missing qdrant host", ChunkIndexConfig{EnableSemanticDedup: true}, true},
		{
			"enabled ollama embedder",
			ChunkIndexConfig{EnableSemanticDedup: true, QdrantHost: "localhost:6334", EmbedderProvider: "ollama", OllamaHost: "http://localhost:11434"},
			false,
		},
		{
			"enabled gemini embedder missing key",
			ChunkIndexConfig{EnableSemanticDedup: true, QdrantHost: "localhost:6334", EmbedderProvider: "gemini"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Orchestrator.ScanCostBudgetUSD != 3.00 {
		t.Errorf("ScanCostBudgetUSD = %v, want 3.00", cfg.Orchestrator.ScanCostBudgetUSD)
	}
	if cfg.Orchestrator.DefaultIntervalMinutes != 60 {
		t.Errorf("DefaultIntervalMinutes = %v, want 60", cfg.Orchestrator.DefaultIntervalMinutes)
	}
	if cfg.Orchestrator.MaxConcurrentScans != 2 {
		t.Errorf("MaxConcurrentScans = %v, want 2", cfg.Orchestrator.MaxConcurrentScans)
	}
	if cfg.Database.Path == "" {
		t.Error("Database.Path default must not be empty")
	}
}

func TestConfig_ValidateForCLI(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "ollama", Host: "http://localhost:11434"}}
	if err := cfg.ValidateForCLI(); err != nil {
		t.Errorf("ValidateForCLI() error = %v", err)
	}

	bad := &Config{LLM: LLMConfig{Provider: "gemini"}}
	if err := bad.ValidateForCLI(); err == nil {
		t.Error("ValidateForCLI() expected error for missing gemini api key")
	}
}
