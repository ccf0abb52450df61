// SPDX-License-Identifier: MPL-2.0

package buildrecord

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// StoreSubdir is the directory under the state root holding build records.
const StoreSubdir = "local-build"

type (
	// Store reads and writes BuildRecords as YAML files.
	Store struct {
		Dir string
	}

	// RecordError reports a record file that exists but cannot be used. Callers
	// log it and proceed as if no record existed.
	RecordError struct {
		Path string
		Err  error
	}
)

// NewStore creates a store rooted at <stateDir>/local-build.
func NewStore(stateDir string) *Store {
	return &Store{Dir: filepath.Join(stateDir, StoreSubdir)}
}

// Path returns the record file for (agent, base).
func (s *Store) Path(agent, base string) string {
	return filepath.Join(s.Dir, Key(agent, base)+".yaml")
}

// Load returns the record for (agent, base). A missing, empty or non-mapping
// file and a record stored under the wrong key all yield (nil, nil). A file that
// cannot be read or parsed yields a *RecordError.
func (s *Store) Load(agent, base string) (*BuildRecord, error) {
	path := s.Path(agent, base)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &RecordError{Path: path, Err: err}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &RecordError{Path: path, Err: err}
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, nil
	}

	var doc document
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, nil
	}
	if doc.Agent != agent || doc.Base != base {
		return nil, nil
	}
	return doc.toRecord(), nil
}

// Save overwrites the record for rec's key. The document is written to a
// temporary file and renamed into place. rec.BuiltAt is converted to UTC so
// that rec equals what Load returns.
func (s *Store) Save(rec *BuildRecord) (string, error) {
	rec.BuiltAt = rec.BuiltAt.UTC()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create build record directory: %w", err)
	}

	data, err := yaml.Marshal(rec.toDocument())
	if err != nil {
		return "", fmt.Errorf("failed to encode build record: %w", err)
	}

	path := s.Path(rec.Agent, rec.Base)
	tmp, err := os.CreateTemp(s.Dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary build record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write build record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write build record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to replace build record %s: %w", path, err)
	}
	return path, nil
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("build record %s is unreadable: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RecordError) Unwrap() error { return e.Err }
