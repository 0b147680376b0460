package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the sync configuration file looked up when no
// --config flag is given.
const DefaultConfigFile = "sync-config.yml"

// SyncConfig describes which canonical files are propagated to the
// organization's repositories. It is loaded once at startup and is
// read-only for the rest of the run.
type SyncConfig struct {
	FilesToSync  []FileRule `yaml:"files_to_sync"`
	ExcludeRepos []string   `yaml:"exclude_repos"`
}

// FileRule maps one canonical file to its destination inside each
// target repository.
type FileRule struct {
	Source       string   `yaml:"source"`
	Destination  string   `yaml:"destination,omitempty"`
	ExcludeRepos []string `yaml:"exclude_repos,omitempty"`
}

// DestinationPath returns the destination relative path, defaulting to
// the source path when no destination is configured.
func (r FileRule) DestinationPath() string {
	if r.Destination != "" {
		return r.Destination
	}
	return r.Source
}

// Excludes reports whether this rule is skipped for the given repository.
func (r FileRule) Excludes(repoName string) bool {
	for _, name := range r.ExcludeRepos {
		if name == repoName {
			return true
		}
	}
	return false
}

// LoadFromPath loads and validates the sync configuration. A missing or
// unreadable file is an error: the run cannot proceed without it.
func LoadFromPath(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync config %s: %w", path, err)
	}

	var cfg SyncConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sync config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that every rule stays within the canonical source root.
func (c *SyncConfig) Validate() error {
	for i, rule := range c.FilesToSync {
		if rule.Source == "" {
			return fmt.Errorf("files_to_sync[%d]: source is required", i)
		}
		if err := validateRelativePath(rule.Source); err != nil {
			return fmt.Errorf("files_to_sync[%d]: source %q: %w", i, rule.Source, err)
		}
		if rule.Destination != "" {
			if err := validateRelativePath(rule.Destination); err != nil {
				return fmt.Errorf("files_to_sync[%d]: destination %q: %w", i, rule.Destination, err)
			}
		}
	}
	return nil
}

// validateRelativePath rejects paths that would resolve outside the
// directory they are joined to.
func validateRelativePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("must be a relative path")
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("must not escape the source root")
	}
	return nil
}
