// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aicage-cli/internal/buildrecord"
	"aicage-cli/internal/container"
)

// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid provisioning config")

type (
	// Config holds the registry coordinates and directories provisioning works
	// against. Every location is explicit so tests can redirect it.
	Config struct {
		// RegistryHost is the registry serving base and agent images (e.g. ghcr.io).
		RegistryHost string

		// BaseRepository is the base image repository path on RegistryHost.
		BaseRepository string

		// LocalImageRepository is the repository locally built images are tagged into.
		LocalImageRepository string

		// BuildContextDir is the docker build context for local images.
		BuildContextDir string

		// Dockerfile is the Dockerfile path, relative to BuildContextDir when not
		// absolute. Empty means the engine default.
		Dockerfile string

		// LogDir is the root for build logs; logs go under <LogDir>/build.
		LogDir string

		// PullAttempts bounds retries of transient pull failures.
		PullAttempts int

		// PullBackoff is the wait before the first retry; it doubles per attempt.
		PullBackoff time.Duration
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)

	// InvalidConfigError lists every field that failed validation.
	InvalidConfigError struct {
		Fields []string
	}
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	root := ".aicage"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".aicage")
	}

	return &Config{
		RegistryHost:         "ghcr.io",
		BaseRepository:       "aicage/aicage-image-base",
		LocalImageRepository: "aicage",
		BuildContextDir:      filepath.Join(root, "build"),
		LogDir:               filepath.Join(root, "logs"),
		PullAttempts:         2,
		PullBackoff:          2 * time.Second,
	}
}

// WithLogDir returns an Option that sets LogDir on the config.
func WithLogDir(dir string) Option {
	return func(c *Config) {
		c.LogDir = dir
	}
}

// WithBuildContext returns an Option that sets the build context and Dockerfile.
func WithBuildContext(dir, dockerfile string) Option {
	return func(c *Config) {
		c.BuildContextDir = dir
		c.Dockerfile = dockerfile
	}
}

// WithRegistry returns an Option that sets the registry host and base repository.
func WithRegistry(host, baseRepository string) Option {
	return func(c *Config) {
		c.RegistryHost = host
		c.BaseRepository = baseRepository
	}
}

// WithPullRetry returns an Option that sets the pull retry budget.
func WithPullRetry(attempts int, backoff time.Duration) Option {
	return func(c *Config) {
		c.PullAttempts = attempts
		c.PullBackoff = backoff
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate reports every required field that is blank, and a pull budget below one.
func (c *Config) Validate() error {
	var fields []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			fields = append(fields, name)
		}
	}
	check("RegistryHost", c.RegistryHost)
	check("BaseRepository", c.BaseRepository)
	check("LocalImageRepository", c.LocalImageRepository)
	check("BuildContextDir", c.BuildContextDir)
	check("LogDir", c.LogDir)
	if c.PullAttempts < 1 {
		fields = append(fields, "PullAttempts")
	}
	if c.PullBackoff < 0 {
		fields = append(fields, "PullBackoff")
	}
	if len(fields) > 0 {
		return &InvalidConfigError{Fields: fields}
	}
	return nil
}

// BaseRepositoryName is the fully qualified base repository, <host>/<path>.
func (c *Config) BaseRepositoryName() string {
	return c.RegistryHost + "/" + c.BaseRepository
}

// BaseImageRef is the base image a local build for base starts FROM.
func (c *Config) BaseImageRef(base string) container.ImageRef {
	return container.ImageRef(c.BaseRepositoryName() + ":" + base)
}

// LocalImageRef is the tag of the locally built image for (agent, base).
func (c *Config) LocalImageRef(agent, base string) container.ImageRef {
	return container.ImageRef(c.LocalImageRepository + ":" + buildrecord.Key(agent, base))
}

// BuildLogPath is where the output of the (agent, base) build is written.
func (c *Config) BuildLogPath(agent, base string) string {
	return filepath.Join(c.LogDir, "build", buildrecord.Key(agent, base)+".log")
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid provisioning config: %s", strings.Join(e.Fields, ", "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
