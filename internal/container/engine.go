// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"
)

// EngineTypeDocker is the only supported engine. The docker CLI is the reference
// for every argument layout in this package.
const EngineTypeDocker EngineType = "docker"

var (
	// ErrImageNotFound is returned by InspectImage when the image is absent locally.
	ErrImageNotFound = errors.New("image not found")

	// ErrNoEngineAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrNoEngineAvailable = errors.New("no container engine available")

	// ErrInvalidImageRef is the sentinel error wrapped by InvalidImageRefError.
	ErrInvalidImageRef = errors.New("invalid image reference")
)

type (
	// Engine is the narrow image-management surface the provisioning code depends on.
	// Implementations may shell out to a CLI or talk to the daemon socket; callers
	// never see which.
	Engine interface {
		// Name returns the engine name used in messages.
		Name() string
		// InspectImage returns local image metadata, or ErrImageNotFound.
		InspectImage(ctx context.Context, ref ImageRef) (*ImageInfo, error)
		// ImageExists reports whether the image is present locally.
		ImageExists(ctx context.Context, ref ImageRef) (bool, error)
		// PullImage pulls ref, streaming combined progress output to out.
		PullImage(ctx context.Context, ref ImageRef, out io.Writer) error
		// BuildImage builds an image.
		BuildImage(ctx context.Context, opts BuildOptions) error
		// ManifestDigests returns every digest the remote manifest of ref references,
		// including per-platform manifests of a multi-arch index.
		ManifestDigests(ctx context.Context, ref ImageRef) ([]digest.Digest, error)
		// Run runs a one-off container.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
	}

	// Inspector is the read-only subset of Engine. APIInspector implements only this.
	Inspector interface {
		InspectImage(ctx context.Context, ref ImageRef) (*ImageInfo, error)
		ImageExists(ctx context.Context, ref ImageRef) (bool, error)
	}

	// EngineType identifies the container engine type.
	EngineType string

	// ImageRef is an image reference as accepted by the docker CLI
	// (e.g. "ghcr.io/aicage/aicage:claude-ubuntu-latest").
	ImageRef string

	// InvalidImageRefError is returned when an ImageRef is empty or whitespace-only.
	InvalidImageRefError struct {
		Value ImageRef
	}

	// ImageInfo is the subset of `image inspect` output the freshness engine needs.
	ImageInfo struct {
		ID          string   `json:"Id"`
		RepoTags    []string `json:"RepoTags"`
		RepoDigests []string `json:"RepoDigests"`
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the path to the Dockerfile (relative to ContextDir). Optional.
		Dockerfile string
		// Tag is the image tag.
		Tag ImageRef
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// NoCache disables the build cache.
		NoCache bool
		// Output receives combined stdout/stderr of the build.
		Output io.Writer
	}

	// RunOptions contains options for running a one-off container.
	RunOptions struct {
		Image   ImageRef
		Command []string
		WorkDir string
		// Volumes are mounts in "host:container[:ro]" format.
		Volumes []string
		Remove  bool
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// RunResult contains the result of running a container.
	// A non-zero exit code is reported here, not as an error.
	RunResult struct {
		ExitCode int
		// Error carries infrastructure failures (binary missing, etc.).
		Error error
	}

	// EngineNotAvailableError is returned when the engine binary cannot be used.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// String returns the string representation of the ImageRef.
func (r ImageRef) String() string { return string(r) }

// Validate returns an error if the ImageRef is empty or whitespace-only.
func (r ImageRef) Validate() error {
	if strings.TrimSpace(string(r)) == "" {
		return &InvalidImageRefError{Value: r}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidImageRefError) Error() string {
	return fmt.Sprintf("invalid image reference %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidImageRef for errors.Is() compatibility.
func (e *InvalidImageRefError) Unwrap() error { return ErrInvalidImageRef }

// Validate returns an error if the options cannot produce a build command.
func (o BuildOptions) Validate() error {
	if err := o.Tag.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(o.ContextDir) == "" {
		return errors.New("build context directory must be set")
	}
	return nil
}

// Validate returns an error if the options cannot produce a run command.
func (o RunOptions) Validate() error {
	return o.Image.Validate()
}

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrNoEngineAvailable for errors.Is() compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrNoEngineAvailable }

// NewEngine returns the docker engine, or EngineNotAvailableError when the binary
// cannot be found. binary may be a bare name resolved through PATH.
func NewEngine(binary string, opts ...BaseCLIEngineOption) (*DockerEngine, error) {
	engine := NewDockerEngine(binary, opts...)
	if engine.BinaryPath() == "" {
		return nil, &EngineNotAvailableError{
			Engine: string(EngineTypeDocker),
			Reason: fmt.Sprintf("%q was not found in PATH", binary),
		}
	}
	return engine, nil
}

// WithInspector returns an Engine that answers InspectImage and ImageExists from
// inspector and delegates everything else to engine.
func WithInspector(engine Engine, inspector Inspector) Engine {
	if inspector == nil {
		return engine
	}
	return &inspectingEngine{Engine: engine, inspector: inspector}
}

type inspectingEngine struct {
	Engine
	inspector Inspector
}

func (e *inspectingEngine) InspectImage(ctx context.Context, ref ImageRef) (*ImageInfo, error) {
	return e.inspector.InspectImage(ctx, ref)
}

func (e *inspectingEngine) ImageExists(ctx context.Context, ref ImageRef) (bool, error) {
	return e.inspector.ImageExists(ctx, ref)
}
