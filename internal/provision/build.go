// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"aicage-cli/internal/container"
)

// Build arguments consumed by the agent Dockerfile.
const (
	BuildArgBaseImage = "BASE_IMAGE"
	BuildArgAgent     = "AGENT"
)

type (
	// ImageBuilder is the slice of container.Engine the BuildExecutor needs.
	ImageBuilder interface {
		BuildImage(ctx context.Context, opts container.BuildOptions) error
	}

	// BuildExecutor builds an agent image on top of a base image, writing the
	// full build output to a log file.
	BuildExecutor struct {
		engine ImageBuilder
		cfg    *Config
		logger *slog.Logger
	}
)

// NewBuildExecutor creates a BuildExecutor.
func NewBuildExecutor(engine ImageBuilder, cfg *Config, logger *slog.Logger) *BuildExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuildExecutor{engine: engine, cfg: cfg, logger: logger}
}

// Build builds targetImageRef from baseImageRef for agent. The build cache is
// bypassed so a new agent version is always installed. On failure the
// returned *BuildFailedError points at logPath.
func (b *BuildExecutor) Build(ctx context.Context, agent string, baseImageRef, targetImageRef container.ImageRef, logPath string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create build log directory: %w", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create build log: %w", err)
	}
	defer func() { _ = logFile.Close() }() // Output already flushed by the engine; close error non-critical

	b.logger.Info("building local image", "image", targetImageRef, "log", logPath)

	err = b.engine.BuildImage(ctx, container.BuildOptions{
		ContextDir: b.cfg.BuildContextDir,
		Dockerfile: b.cfg.Dockerfile,
		Tag:        targetImageRef,
		BuildArgs: map[string]string{
			BuildArgBaseImage: string(baseImageRef),
			BuildArgAgent:     agent,
		},
		NoCache: true,
		Output:  logFile,
	})
	if err != nil {
		b.logger.Error("local image build failed", "image", targetImageRef, "log", logPath)
		return &BuildFailedError{ImageRef: targetImageRef, LogPath: logPath, Err: err}
	}

	b.logger.Info("local image build succeeded", "image", targetImageRef)
	return nil
}
