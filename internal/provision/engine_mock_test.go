// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"aicage-cli/internal/container"
	"aicage-cli/internal/digest"
)

// mockEngine implements container.Engine in memory for testing provisioning
// logic without a Docker daemon.
type mockEngine struct {
	mu sync.Mutex

	// images maps a local image reference to its inspect data.
	images map[container.ImageRef]*container.ImageInfo
	// manifests maps a reference to the digests `manifest inspect` reports.
	manifests map[container.ImageRef][]digest.Digest

	// pullOutput is written to the pull output on every attempt.
	pullOutput string
	// pullErrs are returned by successive PullImage calls; nil once exhausted.
	pullErrs []error
	// pulledImages are installed into images after a successful pull.
	pulledImages map[container.ImageRef]*container.ImageInfo

	buildOutput string
	buildErr    error

	pullCalls  []container.ImageRef
	buildCalls []container.BuildOptions
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		images:       make(map[container.ImageRef]*container.ImageInfo),
		manifests:    make(map[container.ImageRef][]digest.Digest),
		pulledImages: make(map[container.ImageRef]*container.ImageInfo),
	}
}

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) InspectImage(_ context.Context, ref container.ImageRef) (*container.ImageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.images[ref]; ok {
		return info, nil
	}
	return nil, container.ErrImageNotFound
}

func (m *mockEngine) ImageExists(_ context.Context, ref container.ImageRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.images[ref]
	return ok, nil
}

func (m *mockEngine) PullImage(_ context.Context, ref container.ImageRef, out io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullCalls = append(m.pullCalls, ref)
	if out != nil && m.pullOutput != "" {
		_, _ = io.WriteString(out, m.pullOutput)
	}
	if len(m.pullErrs) > 0 {
		err := m.pullErrs[0]
		m.pullErrs = m.pullErrs[1:]
		if err != nil {
			return err
		}
	}
	if info, ok := m.pulledImages[ref]; ok {
		m.images[ref] = info
	}
	return nil
}

func (m *mockEngine) BuildImage(_ context.Context, opts container.BuildOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildCalls = append(m.buildCalls, opts)
	if opts.Output != nil && m.buildOutput != "" {
		_, _ = io.WriteString(opts.Output, m.buildOutput)
	}
	if m.buildErr != nil {
		return m.buildErr
	}
	m.images[opts.Tag] = &container.ImageInfo{ID: "sha256:built", RepoTags: []string{string(opts.Tag)}}
	return nil
}

func (m *mockEngine) ManifestDigests(_ context.Context, ref container.ImageRef) ([]digest.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds, ok := m.manifests[ref]; ok {
		return ds, nil
	}
	return nil, errors.New("no such manifest")
}

func (m *mockEngine) Run(context.Context, container.RunOptions) (*container.RunResult, error) {
	return &container.RunResult{}, nil
}

// withImage registers a local image whose RepoDigests name repoDigests.
func (m *mockEngine) withImage(ref string, repoDigests ...string) *mockEngine {
	m.images[container.ImageRef(ref)] = &container.ImageInfo{ID: "sha256:" + ref, RepoDigests: repoDigests}
	return m
}

// mockRemote implements digest.RemoteLookup keyed by registry repository path.
type mockRemote struct {
	mu      sync.Mutex
	digests map[string]digest.Digest
	calls   []string
}

func (r *mockRemote) ManifestDigest(_ context.Context, _ string, repository string) digest.Digest {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, repository)
	return r.digests[repository]
}

// mockVersions implements VersionResolver.
type mockVersions struct {
	version string
	err     error
	calls   int
}

func (v *mockVersions) Resolve(context.Context, string, string) (string, error) {
	v.calls++
	return v.version, v.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Apply(
		WithLogDir(t.TempDir()),
		WithBuildContext(t.TempDir(), "Dockerfile"),
		WithPullRetry(2, 0),
	)
	return cfg
}
