// SPDX-License-Identifier: MPL-2.0

package versioncheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"aicage-cli/internal/container"
)

const (
	// EnvHost runs version.sh in an in-process shell on the host.
	EnvHost = "host"
	// EnvBuilder runs version.sh inside the version-check builder image.
	EnvBuilder = "builder"

	// ScriptName is the well-known version script inside a definition directory.
	ScriptName = "version.sh"

	builderMount = "/agent"
)

type (
	// Environment runs an agent's version script somewhere.
	Environment interface {
		// Name is the configuration name of the environment.
		Name() string
		// Run executes <definitionDir>/version.sh and reports what happened.
		Run(ctx context.Context, definitionDir string) Attempt
	}

	// Attempt is the captured outcome of one script run.
	Attempt struct {
		ExitCode int
		Stdout   string
		Stderr   string
		// Err is an infrastructure failure: the script could not be started.
		Err error
	}

	// ContainerRunner is the slice of container.Engine the builder needs.
	ContainerRunner interface {
		Run(ctx context.Context, opts container.RunOptions) (*container.RunResult, error)
	}

	// HostEnvironment interprets version.sh with mvdan/sh. External commands
	// resolve against the host PATH.
	HostEnvironment struct {
		// Environ is passed to the script. Defaults to os.Environ().
		Environ []string
		logger  *slog.Logger
	}

	// BuilderEnvironment runs version.sh in a throwaway container with the
	// definition directory mounted read-only at /agent.
	BuilderEnvironment struct {
		engine ContainerRunner
		image  string
	}
)

// Version returns the trimmed stdout of a successful attempt.
func (a Attempt) Version() string {
	return strings.TrimSpace(a.Stdout)
}

// Succeeded reports whether the script exited 0 with non-empty output.
func (a Attempt) Succeeded() bool {
	return a.Err == nil && a.ExitCode == 0 && a.Version() != ""
}

// ErrorText describes a failed attempt: stderr if present, else stdout, else
// the infrastructure error, else a generic message naming the environment.
func (a Attempt) ErrorText(environment string) string {
	if s := strings.TrimSpace(a.Stderr); s != "" {
		return s
	}
	if s := a.Version(); s != "" {
		return s
	}
	if a.Err != nil {
		return a.Err.Error()
	}
	return fmt.Sprintf("Version check failed in %s.", describe(environment))
}

func describe(environment string) string {
	if environment == EnvBuilder {
		return "builder image"
	}
	return environment
}

// NewHostEnvironment creates the host environment.
func NewHostEnvironment(logger *slog.Logger) *HostEnvironment {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostEnvironment{logger: logger}
}

// Name implements Environment.
func (h *HostEnvironment) Name() string { return EnvHost }

// Run implements Environment.
func (h *HostEnvironment) Run(ctx context.Context, definitionDir string) Attempt {
	script := filepath.Join(definitionDir, ScriptName)
	if info, err := os.Stat(script); err == nil && info.Mode().Perm()&0o111 == 0 {
		h.logger.Warn("version script is not executable; interpreting it anyway", "path", script)
	}

	f, err := os.Open(script)
	if err != nil {
		return Attempt{ExitCode: 1, Err: err}
	}
	defer f.Close()

	prog, err := syntax.NewParser().Parse(f, script)
	if err != nil {
		return Attempt{ExitCode: 1, Err: fmt.Errorf("failed to parse %s: %w", script, err)}
	}

	environ := h.Environ
	if environ == nil {
		environ = os.Environ()
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(definitionDir),
		interp.Env(expand.ListEnviron(environ...)),
		interp.StdIO(nil, &stdout, &stderr),
	)
	if err != nil {
		return Attempt{ExitCode: 1, Err: fmt.Errorf("failed to create interpreter: %w", err)}
	}

	attempt := Attempt{}
	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			attempt.ExitCode = int(exitStatus)
		} else {
			attempt.ExitCode = 1
			attempt.Err = err
		}
	}
	attempt.Stdout = stdout.String()
	attempt.Stderr = stderr.String()
	return attempt
}

// NewBuilderEnvironment creates the builder environment running image.
func NewBuilderEnvironment(engine ContainerRunner, image string) *BuilderEnvironment {
	return &BuilderEnvironment{engine: engine, image: image}
}

// Name implements Environment.
func (b *BuilderEnvironment) Name() string { return EnvBuilder }

// Run implements Environment.
func (b *BuilderEnvironment) Run(ctx context.Context, definitionDir string) Attempt {
	abs, err := filepath.Abs(definitionDir)
	if err != nil {
		return Attempt{ExitCode: 1, Err: err}
	}

	var stdout, stderr bytes.Buffer
	result, err := b.engine.Run(ctx, container.RunOptions{
		Image:   container.ImageRef(b.image),
		Command: []string{"/bin/sh", builderMount + "/" + ScriptName},
		WorkDir: builderMount,
		Volumes: []string{abs + ":" + builderMount + ":ro"},
		Remove:  true,
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if err != nil {
		return Attempt{ExitCode: 1, Err: err}
	}
	return Attempt{
		ExitCode: result.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      result.Error,
	}
}
