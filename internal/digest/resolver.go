// SPDX-License-Identifier: MPL-2.0

package digest

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	godigest "github.com/opencontainers/go-digest"

	"aicage-cli/internal/container"
	"aicage-cli/internal/registry"
)

// Unknown is the zero Digest: nothing was observed.
const Unknown Digest = ""

type (
	// Digest is an opaque content address such as "sha256:<hex>". Registry
	// headers are taken verbatim, so a Digest is not required to validate.
	Digest = godigest.Digest

	// RemoteLookup fetches a registry-reported manifest digest.
	RemoteLookup interface {
		ManifestDigest(ctx context.Context, imageRef, repository string) Digest
	}

	// Resolver resolves local and remote content digests. Neither lookup fails:
	// every failure is reported as Unknown.
	Resolver struct {
		inspector container.Inspector
		remote    RemoteLookup
		logger    *slog.Logger
	}
)

// NewResolver creates a Resolver. remote may be nil, in which case every
// remote digest is Unknown.
func NewResolver(inspector container.Inspector, remote RemoteLookup, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{inspector: inspector, remote: remote, logger: logger}
}

// Local returns the digest under which the local image imageRef is known in
// repository, taken from its RepoDigests. Repository names are compared after
// normalization.
func (r *Resolver) Local(ctx context.Context, imageRef, repository string) Digest {
	info, err := r.inspector.InspectImage(ctx, container.ImageRef(imageRef))
	if err != nil {
		if !errors.Is(err, container.ErrImageNotFound) {
			r.logger.Debug("local image inspect failed", "image", imageRef, "error", err)
		}
		return Unknown
	}

	for _, entry := range info.RepoDigests {
		repo, d, found := strings.Cut(entry, "@")
		if !found || d == "" {
			continue
		}
		if registry.SameRepository(repo, repository) {
			return Digest(d)
		}
	}
	return Unknown
}

// Remote returns the registry-reported manifest digest of imageRef in repository.
func (r *Resolver) Remote(ctx context.Context, imageRef, repository string) Digest {
	if r.remote == nil {
		return Unknown
	}
	return r.remote.ManifestDigest(ctx, imageRef, repository)
}

// Same reports whether a and b are both known and equal. Unknown never equals
// anything, including another Unknown.
func Same(a, b Digest) bool {
	return a != Unknown && b != Unknown && a == b
}

// Contains reports whether the known digest d is a member of set.
func Contains(set []Digest, d Digest) bool {
	if d == Unknown {
		return false
	}
	for _, candidate := range set {
		if candidate == d {
			return true
		}
	}
	return false
}
