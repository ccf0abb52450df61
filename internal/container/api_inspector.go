// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

type (
	// imageInspectAPI is the subset of the docker API client used by APIInspector.
	imageInspectAPI interface {
		ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	}

	// APIInspector answers local image queries through the daemon socket instead of
	// spawning the CLI. It is selected with docker.inspect_via = "api".
	APIInspector struct {
		api imageInspectAPI
	}
)

// NewAPIInspector connects to the daemon described by the DOCKER_* environment.
func NewAPIInspector() (*APIInspector, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &EngineNotAvailableError{Engine: string(EngineTypeDocker), Reason: err.Error()}
	}
	return &APIInspector{api: cli}, nil
}

// InspectImage returns local metadata for ref, or ErrImageNotFound.
func (i *APIInspector) InspectImage(ctx context.Context, ref ImageRef) (*ImageInfo, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	resp, err := i.api.ImageInspect(ctx, string(ref))
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%s: %w", ref, ErrImageNotFound)
		}
		return nil, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	return &ImageInfo{
		ID:          resp.ID,
		RepoTags:    resp.RepoTags,
		RepoDigests: resp.RepoDigests,
	}, nil
}

// ImageExists reports whether ref is present locally.
func (i *APIInspector) ImageExists(ctx context.Context, ref ImageRef) (bool, error) {
	_, err := i.InspectImage(ctx, ref)
	if err == nil {
		return true, nil
	}
	if cerrdefs.IsNotFound(err) || isImageNotFound(err) {
		return false, nil
	}
	return false, err
}
