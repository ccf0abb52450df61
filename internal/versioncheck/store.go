// SPDX-License-Identifier: MPL-2.0

package versioncheck

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"aicage-cli/internal/buildrecord"
)

// StoreSubdir is the directory under the state root holding version records.
const StoreSubdir = "version-check"

type (
	// Record is the last successful version check for an agent.
	Record struct {
		Agent     string `yaml:"agent"`
		Version   string `yaml:"version"`
		CheckedAt string `yaml:"checked_at"`
	}

	// Store persists one Record per agent as YAML.
	Store struct {
		Dir string
		// Now stamps checked_at. Defaults to time.Now.
		Now func() time.Time
	}
)

// NewStore creates a store rooted at <stateDir>/version-check.
func NewStore(stateDir string) *Store {
	return &Store{Dir: filepath.Join(stateDir, StoreSubdir), Now: time.Now}
}

// Path returns the record file for agent.
func (s *Store) Path(agent string) string {
	return filepath.Join(s.Dir, buildrecord.Sanitize(agent)+".yaml")
}

// Save overwrites the record for agent and returns the file path.
func (s *Store) Save(agent, version string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create version-check directory: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	data, err := yaml.Marshal(Record{
		Agent:     agent,
		Version:   version,
		CheckedAt: now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode version record: %w", err)
	}

	path := s.Path(agent)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write version record %s: %w", path, err)
	}
	return path, nil
}

// Load returns the cached record for agent. The cache is advisory: a missing
// or malformed file yields nil.
func (s *Store) Load(agent string) *Record {
	data, err := os.ReadFile(s.Path(agent))
	if err != nil {
		return nil
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil || rec.Version == "" {
		return nil
	}
	return &rec
}
