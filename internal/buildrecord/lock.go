// SPDX-License-Identifier: MPL-2.0

package buildrecord

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Lock is an exclusive advisory lock on one (agent, base) key.
type Lock struct {
	file *os.File
	path string
}

// LockPath returns the lock file for (agent, base).
func (s *Store) LockPath(agent, base string) string {
	return filepath.Join(s.Dir, Key(agent, base)+".lock")
}

// Lock blocks until the key's lock is held or ctx is done. The zero-byte lock
// file is left behind; the kernel drops the lock when the descriptor closes.
func (s *Store) Lock(ctx context.Context, agent, base string) (*Lock, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create build record directory: %w", err)
	}
	path := s.LockPath(agent, base)
	f, err := acquire(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock. It is safe to call more than once and on nil.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	release(l.file)
	l.file = nil
}
