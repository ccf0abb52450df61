// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the argument builders and command execution shared by
	// CLI-based engines. DockerEngine embeds it.
	BaseCLIEngine struct {
		name        string // Engine name for error messages
		binaryPath  string
		execCommand ExecCommandFunc
	}
)

// --- Option Functions ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// --- Constructor ---

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// --- Accessor Methods ---

// Name returns the engine name used in error messages.
func (e *BaseCLIEngine) Name() string {
	return e.name
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// --- Argument Builders ---

// BuildArgs constructs arguments for an image build.
// Build args are emitted in key order so the command line is reproducible.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "--file", dockerfilePath)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	keys := make([]string, 0, len(opts.BuildArgs))
	for k := range opts.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, opts.BuildArgs[k]))
	}

	if opts.Tag != "" {
		args = append(args, "--tag", string(opts.Tag))
	}

	args = append(args, opts.ContextDir)

	return args
}

// RunArgs constructs arguments for a container run.
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}

	for _, v := range opts.Volumes {
		args = append(args, "-v", v)
	}

	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}

	args = append(args, string(opts.Image))
	args = append(args, opts.Command...)

	return args
}

// InspectArgs constructs arguments for a local image inspection.
func (e *BaseCLIEngine) InspectArgs(ref ImageRef) []string {
	return []string{"image", "inspect", string(ref)}
}

// PullArgs constructs arguments for an image pull.
func (e *BaseCLIEngine) PullArgs(ref ImageRef) []string {
	return []string{"pull", string(ref)}
}

// ManifestInspectArgs constructs arguments for a verbose remote manifest inspection.
func (e *BaseCLIEngine) ManifestInspectArgs(ref ImageRef) []string {
	return []string{"manifest", "inspect", "--verbose", string(ref)}
}

// ListImagesArgs constructs arguments listing local tags of a repository.
func (e *BaseCLIEngine) ListImagesArgs(repository string) []string {
	return []string{"image", "ls", repository, "--format", "{{.Repository}}:{{.Tag}}"}
}

// --- Command Execution ---

// RunCommand executes a command and returns its stdout.
// On failure the returned error carries the command's stderr.
func (e *BaseCLIEngine) RunCommand(ctx context.Context, args ...string) ([]byte, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, &CommandError{Binary: e.binaryPath, Args: args, Stderr: stderr.String(), Err: err}
	}
	return out, nil
}

// CreateCommand creates an exec.Cmd for the given arguments.
// This is useful when the caller needs to customize stdin/stdout/stderr.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}
