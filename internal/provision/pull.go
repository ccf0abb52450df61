// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"aicage-cli/internal/container"
	"aicage-cli/internal/digest"
	"aicage-cli/internal/metrics"
	"aicage-cli/internal/registry"
)

// Compile-time interface check
var _ Reconciler = (*PullReconciler)(nil)

type (
	// PullReconciler re-pulls a registry-distributed image only when its local
	// digest is not among the digests the registry currently serves for it.
	PullReconciler struct {
		engine  container.Engine
		digests *digest.Resolver
		cfg     *Config
		rt      Runtime
	}

	// lastLineWriter remembers the last non-empty line written to it.
	lastLineWriter struct {
		mu      sync.Mutex
		partial []byte
		last    string
	}
)

// NewPullReconciler creates a PullReconciler.
func NewPullReconciler(engine container.Engine, digests *digest.Resolver, cfg *Config, rt Runtime) *PullReconciler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &PullReconciler{engine: engine, digests: digests, cfg: cfg, rt: rt.withDefaults()}
}

// EnsureFresh pulls imageRef unless the local copy is current. Pull progress is
// echoed to the runtime output. A failed pull is tolerated when the image
// exists locally; otherwise it is a *PullFailedError.
func (r *PullReconciler) EnsureFresh(ctx context.Context, imageRef string) error {
	ref := container.ImageRef(imageRef)
	if err := ref.Validate(); err != nil {
		return err
	}

	if r.isCurrent(ctx, imageRef) {
		r.rt.Logger.Info("image pull not required", "image", imageRef)
		r.rt.Metrics.Pull(metrics.ResultSkipped)
		return nil
	}

	r.rt.Logger.Info("pulling image", "image", imageRef)
	tracker := &lastLineWriter{}
	out := io.MultiWriter(r.rt.Output, tracker)

	pullErr := container.RetryWithBackoff(ctx, r.cfg.PullAttempts, r.cfg.PullBackoff, func(attempt int) (bool, error) {
		if attempt > 0 {
			r.rt.Logger.Warn("retrying image pull", "image", imageRef, "attempt", attempt+1)
		}
		err := r.engine.PullImage(ctx, ref, out)
		if err == nil {
			return false, nil
		}
		if last := tracker.Last(); last != "" {
			err = fmt.Errorf("%w: %s", err, last)
		}
		return container.IsTransientError(err), err
	})
	if pullErr == nil {
		r.rt.Logger.Info("image pull succeeded", "image", imageRef)
		r.rt.Metrics.Pull(metrics.ResultSuccess)
		return nil
	}

	detail := tracker.Last()
	if detail == "" {
		detail = fmt.Sprintf("docker pull failed for %s", imageRef)
	}

	if exists, _ := r.engine.ImageExists(ctx, ref); exists { //nolint:errcheck // Error treated as "not found"
		r.rt.Logger.Warn("image pull failed; using local image", "image", imageRef, "error", detail)
		r.rt.Metrics.Pull(metrics.ResultStale)
		return nil
	}

	r.rt.Logger.Error("image pull failed", "image", imageRef, "error", detail)
	r.rt.Metrics.Pull(metrics.ResultFailure)
	return &PullFailedError{ImageRef: ref, Detail: detail, Err: pullErr}
}

// RemoteDigests returns every digest the registry serves for imageRef: the
// manifest and platform manifests reported by the engine plus, for images on
// the configured registry, the registry's manifest HEAD digest.
func (r *PullReconciler) RemoteDigests(ctx context.Context, imageRef string) []digest.Digest {
	remote, err := r.engine.ManifestDigests(ctx, container.ImageRef(imageRef))
	if err != nil {
		r.rt.Logger.Debug("manifest inspect failed", "image", imageRef, "error", err)
	}

	host, path := registry.SplitRepository(registry.RepositoryOf(imageRef))
	if host == r.cfg.RegistryHost {
		if d := r.digests.Remote(ctx, imageRef, path); d != digest.Unknown {
			remote = append(remote, d)
		}
	}
	return remote
}

// isCurrent reports whether the local copy of imageRef can be kept. A local
// digest with no remote digests to compare against is kept as is.
func (r *PullReconciler) isCurrent(ctx context.Context, imageRef string) bool {
	local := r.digests.Local(ctx, imageRef, registry.RepositoryOf(imageRef))
	if local == digest.Unknown {
		return false
	}
	remote := r.RemoteDigests(ctx, imageRef)
	if len(remote) == 0 {
		r.rt.Logger.Debug("remote digests unknown; keeping local image", "image", imageRef, "local", local)
		return true
	}
	return digest.Contains(remote, local)
}

// Write implements io.Writer. It never fails.
func (w *lastLineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexAny(w.partial, "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.partial[:i])); line != "" {
			w.last = line
		}
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// Last returns the last non-empty line, including an unterminated final line.
func (w *lastLineWriter) Last() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if line := strings.TrimSpace(string(w.partial)); line != "" {
		return line
	}
	return w.last
}
