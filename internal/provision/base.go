// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"aicage-cli/internal/container"
	"aicage-cli/internal/digest"
	"aicage-cli/internal/registry"
)

type (
	// ImagePuller is the slice of container.Engine base refresh needs.
	ImagePuller interface {
		PullImage(ctx context.Context, ref container.ImageRef, out io.Writer) error
		ImageExists(ctx context.Context, ref container.ImageRef) (bool, error)
	}

	// BaseRefresher brings the local base image up to date with the registry
	// before a build decision is made.
	BaseRefresher struct {
		engine  ImagePuller
		digests *digest.Resolver
		logger  *slog.Logger
	}
)

// NewBaseRefresher creates a BaseRefresher.
func NewBaseRefresher(engine ImagePuller, digests *digest.Resolver, logger *slog.Logger) *BaseRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseRefresher{engine: engine, digests: digests, logger: logger}
}

// RefreshBase returns the digest of the local base image after making it
// current. baseRepository is the fully qualified repository (host/path).
//
// The pull is skipped only when the local and registry digests are both known
// and equal; an unknown digest on either side pulls. A failed pull falls back
// to the local base if there is one, otherwise it is a *PullFailedError
// carrying the pull output.
func (r *BaseRefresher) RefreshBase(ctx context.Context, baseImageRef container.ImageRef, baseRepository string) (digest.Digest, error) {
	ref := string(baseImageRef)
	_, remotePath := registry.SplitRepository(baseRepository)

	local := r.digests.Local(ctx, ref, baseRepository)
	remote := r.digests.Remote(ctx, ref, remotePath)
	if digest.Same(local, remote) {
		return local, nil
	}

	r.logger.Info("pulling base image", "image", ref, "local", local, "remote", remote)
	var output bytes.Buffer
	if err := r.engine.PullImage(ctx, baseImageRef, &output); err != nil {
		detail := strings.TrimSpace(output.String())
		if detail == "" {
			detail = err.Error()
		}
		if local != digest.Unknown || r.baseExists(ctx, baseImageRef) {
			r.logger.Warn("base image pull failed; using local base image", "image", ref, "error", detail)
			return local, nil
		}
		return digest.Unknown, &PullFailedError{ImageRef: baseImageRef, Detail: detail, Err: err}
	}

	return r.digests.Local(ctx, ref, baseRepository), nil
}

func (r *BaseRefresher) baseExists(ctx context.Context, ref container.ImageRef) bool {
	exists, err := r.engine.ImageExists(ctx, ref)
	if err != nil {
		r.logger.Debug("base image existence check failed", "image", ref, "error", err)
		return false
	}
	return exists
}
