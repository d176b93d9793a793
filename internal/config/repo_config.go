package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/audit-scanner/internal/core"
)

// RepoConfigFileName mirrors the teacher's .code-warden.yml idiom, renamed
// for this fleet.
const RepoConfigFileName = ".audit-scanner.yml"

var (
	ErrConfigNotFound = errors.New("repo config file not found")
	ErrConfigParsing  = errors.New("repo config parsing failed")
)

// LoadRepoConfig loads and parses .audit-scanner.yml from a repository's
// working copy. A missing file is not an error condition callers need to
// handle specially beyond checking ErrConfigNotFound — DefaultRepoConfig is
// always returned alongside it.
func LoadRepoConfig(repoPath string) (*core.RepoConfig, error) {
	configPath := filepath.Join(repoPath, RepoConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return core.DefaultRepoConfig(), ErrConfigNotFound
		}
		return nil, fmt.Errorf("read %s: %w", RepoConfigFileName, err)
	}

	cfg := core.DefaultRepoConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}
	return cfg, nil
}
