// SPDX-License-Identifier: MPL-2.0

package versioncheck

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"aicage-cli/internal/metrics"
)

// DefaultOrder tries the host before the builder image.
var DefaultOrder = []string{EnvHost, EnvBuilder}

type (
	// Resolver finds an agent's current version by trying each environment in
	// order until one succeeds.
	Resolver struct {
		envs    []Environment
		store   *Store
		logger  *slog.Logger
		metrics *metrics.Recorder
	}

	// Option configures a Resolver.
	Option func(*Resolver)

	// CheckFailedError is returned when every environment failed.
	CheckFailedError struct {
		Agent string
		// Attempts holds each environment's error text, in run order.
		Attempts []string
	}

	// MissingScriptError is returned when the definition has no version.sh.
	MissingScriptError struct {
		Agent string
		Path  string
	}

	// InvalidOrderError is returned for an order that is not a permutation of
	// the known environments.
	InvalidOrderError struct {
		Order []string
	}
)

// WithLogger sets the logger used for per-attempt warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics counts attempts on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(r *Resolver) { r.metrics = rec }
}

// NewResolver creates a Resolver trying envs in the given order. store may be
// nil, in which case results are not cached.
func NewResolver(envs []Environment, store *Store, opts ...Option) *Resolver {
	r := &Resolver{envs: envs, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ByOrder arranges the available environments by name. order must name each
// environment exactly once.
func ByOrder(order []string, available ...Environment) ([]Environment, error) {
	if len(order) != len(available) {
		return nil, &InvalidOrderError{Order: order}
	}

	envs := make([]Environment, 0, len(order))
	for _, name := range order {
		idx := slices.IndexFunc(available, func(e Environment) bool { return e.Name() == name })
		if idx < 0 || slices.Contains(envs, available[idx]) {
			return nil, &InvalidOrderError{Order: order}
		}
		envs = append(envs, available[idx])
	}
	return envs, nil
}

// Resolve runs version.sh from definitionDir and returns the trimmed version.
// The first successful environment wins and its answer is cached; when all of
// them fail nothing is cached.
func (r *Resolver) Resolve(ctx context.Context, agent, definitionDir string) (string, error) {
	script := filepath.Join(definitionDir, ScriptName)
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return "", &MissingScriptError{Agent: agent, Path: script}
	}

	failures := make([]string, 0, len(r.envs))
	for _, env := range r.envs {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		attempt := env.Run(ctx, definitionDir)
		if attempt.Succeeded() {
			version := attempt.Version()
			r.metrics.VersionCheck(env.Name(), nil)
			r.logger.Info("version check succeeded", "agent", agent, "environment", env.Name(), "version", version)
			r.save(agent, version)
			return version, nil
		}

		reason := attempt.ErrorText(env.Name())
		r.metrics.VersionCheck(env.Name(), errors.New(reason))
		r.logger.Warn("version check failed", "agent", agent, "environment", env.Name(), "reason", reason)
		failures = append(failures, reason)
	}

	err := &CheckFailedError{Agent: agent, Attempts: failures}
	r.logger.Error("version check failed in every environment", "agent", agent, "error", err)
	return "", err
}

func (r *Resolver) save(agent, version string) {
	if r.store == nil {
		return
	}
	if _, err := r.store.Save(agent, version); err != nil {
		r.logger.Warn("failed to cache version check result", "agent", agent, "error", err)
	}
}

// Error implements the error interface.
func (e *CheckFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("version check for %s has no environments to run in", e.Agent)
	}
	return strings.Join(e.Attempts, "; ")
}

// Error implements the error interface.
func (e *MissingScriptError) Error() string {
	return fmt.Sprintf("agent '%s' is missing %s at %s", e.Agent, ScriptName, e.Path)
}

// Unwrap returns fs.ErrNotExist for errors.Is() compatibility.
func (e *MissingScriptError) Unwrap() error { return fs.ErrNotExist }

// Error implements the error interface.
func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid version check order %q: must list %q and %q exactly once", e.Order, EnvHost, EnvBuilder)
}
