// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"io"
	"log/slog"
	"time"

	"aicage-cli/internal/container"
	"aicage-cli/internal/digest"
	"aicage-cli/internal/metrics"
)

type (
	// Provisioner makes sure a locally built (agent, base) image exists and is
	// current, rebuilding it when its fingerprint moved.
	Provisioner interface {
		EnsureLocalImage(ctx context.Context, req Request) (*Result, error)
	}

	// Reconciler keeps a registry-distributed image in step with the registry.
	Reconciler interface {
		EnsureFresh(ctx context.Context, imageRef string) error
	}

	// VersionResolver resolves an agent's current version from its definition.
	VersionResolver interface {
		Resolve(ctx context.Context, agent, definitionDir string) (string, error)
	}

	// Request names the image to provision. Agent and Base are already resolved
	// by the caller.
	Request struct {
		Agent string
		Base  string
		// DefinitionDir holds the agent's version.sh.
		DefinitionDir string
		// ForceRebuild builds even when the image is fresh.
		ForceRebuild bool
	}

	// Result contains the output of a provisioning operation.
	Result struct {
		// ImageRef is the local image to run (e.g. "aicage:claude-ubuntu").
		ImageRef container.ImageRef

		// Rebuilt reports whether a build ran.
		Rebuilt bool

		// Decision explains why the image was or was not rebuilt.
		Decision Decision

		// AgentVersion is the version the image is fingerprinted with.
		AgentVersion string

		// BaseDigest is the base image digest recorded for the image.
		BaseDigest digest.Digest
	}

	// Runtime carries the ambient collaborators shared by the provisioning
	// components. Zero fields get defaults.
	Runtime struct {
		Logger  *slog.Logger
		Metrics *metrics.Recorder
		// Output receives pull progress. Defaults to io.Discard.
		Output io.Writer
		// Now stamps build records. Defaults to time.Now.
		Now func() time.Time
	}
)

func (rt Runtime) withDefaults() Runtime {
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	if rt.Output == nil {
		rt.Output = io.Discard
	}
	if rt.Now == nil {
		rt.Now = time.Now
	}
	return rt
}
