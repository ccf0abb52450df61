// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

type (
	// DockerEngine implements the Engine interface using the docker CLI.
	// It embeds BaseCLIEngine for common CLI operations.
	DockerEngine struct {
		*BaseCLIEngine
	}

	// CommandError reports a failed engine invocation together with its stderr.
	CommandError struct {
		Binary string
		Args   []string
		Stderr string
		Err    error
	}

	// manifestEntry is one element of `manifest inspect --verbose` output.
	manifestEntry struct {
		Ref        string        `json:"Ref"`
		Descriptor v1.Descriptor `json:"Descriptor"`
	}
)

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = e.Err.Error()
	}
	sub := ""
	if len(e.Args) > 0 {
		sub = " " + e.Args[0]
	}
	return fmt.Sprintf("%s%s: %s", e.Binary, sub, msg)
}

// Unwrap returns the underlying execution error.
func (e *CommandError) Unwrap() error { return e.Err }

// NewDockerEngine creates a new docker engine. binary may be a bare name or a path;
// when it cannot be resolved BinaryPath returns "".
func NewDockerEngine(binary string, opts ...BaseCLIEngineOption) *DockerEngine {
	if binary == "" {
		binary = string(EngineTypeDocker)
	}
	path, _ := exec.LookPath(binary)
	opts = append([]BaseCLIEngineOption{WithName(string(EngineTypeDocker))}, opts...)
	return &DockerEngine{
		BaseCLIEngine: NewBaseCLIEngine(path, opts...),
	}
}

// InspectImage returns local metadata for ref.
func (e *DockerEngine) InspectImage(ctx context.Context, ref ImageRef) (*ImageInfo, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	out, err := e.RunCommand(ctx, e.InspectArgs(ref)...)
	if err != nil {
		if isNoSuchImage(err) {
			return nil, fmt.Errorf("%s: %w", ref, ErrImageNotFound)
		}
		return nil, err
	}

	var infos []ImageInfo
	if err := json.Unmarshal(out, &infos); err != nil {
		return nil, fmt.Errorf("failed to parse image inspect output for %s: %w", ref, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%s: %w", ref, ErrImageNotFound)
	}
	return &infos[0], nil
}

// ImageExists checks if an image exists locally.
func (e *DockerEngine) ImageExists(ctx context.Context, ref ImageRef) (bool, error) {
	_, err := e.InspectImage(ctx, ref)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrImageNotFound) {
		return false, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		// Any other inspect failure means the engine could not find it either.
		return false, nil
	}
	return false, err
}

// PullImage pulls ref, writing combined progress output to out.
func (e *DockerEngine) PullImage(ctx context.Context, ref ImageRef, out io.Writer) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if out == nil {
		out = io.Discard
	}
	args := e.PullArgs(ref)
	cmd := e.CreateCommand(ctx, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return &CommandError{Binary: e.BinaryPath(), Args: args, Err: err}
	}
	return nil
}

// BuildImage builds an image, writing combined output to opts.Output.
func (e *DockerEngine) BuildImage(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	args := e.BuildArgs(opts)
	cmd := e.CreateCommand(ctx, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return &CommandError{Binary: e.BinaryPath(), Args: args, Err: err}
	}
	return nil
}

// ManifestDigests returns the descriptor digests reported by
// `manifest inspect --verbose`. The output is an object for single-platform
// images and an array for multi-arch indexes.
func (e *DockerEngine) ManifestDigests(ctx context.Context, ref ImageRef) ([]digest.Digest, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	out, err := e.RunCommand(ctx, e.ManifestInspectArgs(ref)...)
	if err != nil {
		return nil, err
	}
	return parseManifestDigests(out)
}

// Run runs a one-off container. A non-zero exit code is reported in RunResult.
func (e *DockerEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	result := &RunResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Error = err
		}
	}
	return result, nil
}

// ListLocalTags returns "<repository>:<tag>" for every local image of repository.
// Untagged images are skipped.
func (e *DockerEngine) ListLocalTags(ctx context.Context, repository string) ([]string, error) {
	out, err := e.RunCommand(ctx, e.ListImagesArgs(repository)...)
	if err != nil {
		return nil, err
	}

	var refs []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasSuffix(line, ":<none>") {
			continue
		}
		refs = append(refs, line)
	}
	return refs, scanner.Err()
}

func parseManifestDigests(out []byte) ([]digest.Digest, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var entries []manifestEntry
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse manifest inspect output: %w", err)
		}
	} else {
		var entry manifestEntry
		if err := json.Unmarshal(trimmed, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse manifest inspect output: %w", err)
		}
		entries = append(entries, entry)
	}

	digests := make([]digest.Digest, 0, len(entries))
	for _, entry := range entries {
		if entry.Descriptor.Digest != "" {
			digests = append(digests, entry.Descriptor.Digest)
		}
	}
	return digests, nil
}

func isNoSuchImage(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := strings.ToLower(cmdErr.Stderr)
	return strings.Contains(msg, "no such image") || strings.Contains(msg, "no such object")
}
