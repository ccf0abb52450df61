// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"aicage-cli/internal/container"
	"aicage-cli/internal/digest"
	"aicage-cli/internal/metrics"
)

const testAgentImage = "ghcr.io/aicage/aicage:claude-ubuntu-latest"

type pullFixture struct {
	engine *mockEngine
	remote *mockRemote
	out    *bytes.Buffer
	logs   *bytes.Buffer
	rec    *metrics.Recorder
}

func newPullFixture() *pullFixture {
	return &pullFixture{
		engine: newMockEngine(),
		remote: &mockRemote{digests: map[string]digest.Digest{}},
		out:    &bytes.Buffer{},
		logs:   &bytes.Buffer{},
		rec:    metrics.NewRecorder(),
	}
}

func (f *pullFixture) reconciler(t *testing.T) *PullReconciler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(f.logs, nil))
	return NewPullReconciler(f.engine, digest.NewResolver(f.engine, f.remote, logger), testConfig(t), Runtime{
		Logger:  logger,
		Metrics: f.rec,
		Output:  f.out,
	})
}

func TestPullReconciler_SkipsWhenLocalInManifestSet(t *testing.T) {
	t.Parallel()

	f := newPullFixture()
	f.engine.withImage(testAgentImage, "ghcr.io/aicage/aicage@sha256:arm64")
	f.engine.manifests[testAgentImage] = []digest.Digest{"sha256:index", "sha256:amd64", "sha256:arm64"}

	if err := f.reconciler(t).EnsureFresh(context.Background(), testAgentImage); err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if len(f.engine.pullCalls) != 0 {
		t.Errorf("expected no pull, got %v", f.engine.pullCalls)
	}
}

func TestPullReconciler_SkipsOnRegistryHeadDigest(t *testing.T) {
	t.Parallel()

	f := newPullFixture()
	f.engine.withImage(testAgentImage, "ghcr.io/aicage/aicage@sha256:ccc")
	f.remote.digests["aicage/aicage"] = "sha256:ccc"

	if err := f.reconciler(t).EnsureFresh(context.Background(), testAgentImage); err != nil {
		t.Fatal(err)
	}
	if len(f.engine.pullCalls) != 0 {
		t.Errorf("expected no pull, got %v", f.engine.pullCalls)
	}
}

func TestPullReconciler_HeadDigestOnlyForConfiguredRegistry(t *testing.T) {
	t.Parallel()

	const ref = "docker.io/library/ubuntu:24.04"
	f := newPullFixture()
	f.engine.withImage(ref, "ubuntu@sha256:ddd")
	f.engine.manifests[ref] = []digest.Digest{"sha256:eee"}
	f.remote.digests["library/ubuntu"] = "sha256:ddd"

	if err := f.reconciler(t).EnsureFresh(context.Background(), ref); err != nil {
		t.Fatal(err)
	}
	if len(f.remote.calls) != 0 {
		t.Errorf("registry HEAD used for a foreign registry: %v", f.remote.calls)
	}
	if len(f.engine.pullCalls) != 1 {
		t.Errorf("expected 1 pull, got %d", len(f.engine.pullCalls))
	}
}

func TestPullReconciler_PullsWhenStaleOrMissing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*pullFixture)
	}{
		{
			name: "missing locally",
			setup: func(f *pullFixture) {
				f.engine.manifests[testAgentImage] = []digest.Digest{"sha256:new"}
			},
		},
		{
			name: "local digest not served",
			setup: func(f *pullFixture) {
				f.engine.withImage(testAgentImage, "ghcr.io/aicage/aicage@sha256:old")
				f.engine.manifests[testAgentImage] = []digest.Digest{"sha256:new"}
			},
		},
		{
			name: "missing locally with remote unknown",
			setup: func(*pullFixture) {},
		},
		{
			name: "local image without repo digest",
			setup: func(f *pullFixture) {
				f.engine.withImage(testAgentImage)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newPullFixture()
			tt.setup(f)
			f.engine.pullOutput = "latest: Pulling from aicage/aicage\nStatus: Downloaded newer image\n"

			if err := f.reconciler(t).EnsureFresh(context.Background(), testAgentImage); err != nil {
				t.Fatalf("EnsureFresh() error = %v", err)
			}
			if len(f.engine.pullCalls) != 1 {
				t.Fatalf("expected 1 pull, got %d", len(f.engine.pullCalls))
			}
			if f.out.String() != f.engine.pullOutput {
				t.Errorf("pull output not echoed: %q", f.out.String())
			}
		})
	}
}

func TestPullReconciler_KeepsLocalWhenRemoteUnknown(t *testing.T) {
	t.Parallel()

	f := newPullFixture()
	f.engine.withImage(testAgentImage, "ghcr.io/aicage/aicage@sha256:local")

	if err := f.reconciler(t).EnsureFresh(context.Background(), testAgentImage); err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if len(f.engine.pullCalls) != 0 {
		t.Errorf("expected no pull, got %v", f.engine.pullCalls)
	}
	if len(f.remote.calls) != 1 {
		t.Errorf("expected one registry lookup, got %v", f.remote.calls)
	}
	if f.out.Len() != 0 {
		t.Errorf("nothing should be echoed, got %q", f.out.String())
	}
}

func TestPullReconciler_FailureWithLocalImage(t *testing.T) {
	t.Parallel()

	f := newPullFixture()
	f.engine.withImage(testAgentImage, "ghcr.io/aicage/aicage@sha256:old")
	f.engine.manifests[testAgentImage] = []digest.Digest{"sha256:new"}
	f.engine.pullOutput = "Error response from daemon: denied\n"
	f.engine.pullErrs = []error{errors.New("exit status 1")}

	if err := f.reconciler(t).EnsureFresh(context.Background(), testAgentImage); err != nil {
		t.Fatalf("EnsureFresh() error = %v, want stale fallback", err)
	}
	if !strings.Contains(f.logs.String(), "using local image") {
		t.Errorf("expected a stale-image warning, logs:\n%s", f.logs.String())
	}
}

func TestPullReconciler_FailureWithoutLocalImage(t *testing.T) {
	t.Parallel()

	f := newPullFixture()
	f.engine.pullOutput = "latest: Pulling from aicage/aicage\n\nError response from daemon: manifest unknown\n\n"
	f.engine.pullErrs = []error{errors.New("exit status 1")}

	err := f.reconciler(t).EnsureFresh(context.Background(), testAgentImage)
	var pullErr *PullFailedError
	if !errors.As(err, &pullErr) {
		t.Fatalf("expected *PullFailedError, got %v", err)
	}
	if err.Error() != "Error response from daemon: manifest unknown" {
		t.Errorf("Error() = %q, want the last non-empty output line", err.Error())
	}
}

func TestPullReconciler_FailureWithoutOutput(t *testing.T) {
	t.Parallel()

	f := newPullFixture()
	f.engine.pullErrs = []error{errors.New("exit status 1")}

	err := f.reconciler(t).EnsureFresh(context.Background(), testAgentImage)
	if err == nil || err.Error() != "docker pull failed for "+testAgentImage {
		t.Errorf("EnsureFresh() error = %v", err)
	}
}

func TestPullReconciler_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	f := newPullFixture()
	f.engine.pullOutput = "Error response from daemon: read tcp: connection reset by peer\n"
	f.engine.pullErrs = []error{errors.New("exit status 1"), nil}

	if err := f.reconciler(t).EnsureFresh(context.Background(), testAgentImage); err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if len(f.engine.pullCalls) != 2 {
		t.Errorf("expected 2 pull attempts, got %d", len(f.engine.pullCalls))
	}
}

func TestPullReconciler_DoesNotRetryPermanentFailure(t *testing.T) {
	t.Parallel()

	f := newPullFixture()
	f.engine.pullOutput = "Error response from daemon: manifest unknown\n"
	f.engine.pullErrs = []error{errors.New("exit status 1"), errors.New("exit status 1")}

	_ = f.reconciler(t).EnsureFresh(context.Background(), testAgentImage)
	if len(f.engine.pullCalls) != 1 {
		t.Errorf("expected 1 pull attempt, got %d", len(f.engine.pullCalls))
	}
}

func TestPullReconciler_InvalidRef(t *testing.T) {
	t.Parallel()

	err := newPullFixture().reconciler(t).EnsureFresh(context.Background(), "  ")
	if !errors.Is(err, container.ErrInvalidImageRef) {
		t.Errorf("expected ErrInvalidImageRef, got %v", err)
	}
}

func TestLastLineWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{name: "empty", want: ""},
		{name: "single line", chunks: []string{"done\n"}, want: "done"},
		{name: "trailing blank lines", chunks: []string{"a\n", "b\n\n  \n"}, want: "b"},
		{name: "split across writes", chunks: []string{"Error resp", "onse: denied\n"}, want: "Error response: denied"},
		{name: "unterminated last line", chunks: []string{"a\nb"}, want: "b"},
		{name: "carriage returns", chunks: []string{"50%\r100%\r\n"}, want: "100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := &lastLineWriter{}
			for _, c := range tt.chunks {
				if n, err := fmt.Fprint(w, c); err != nil || n != len(c) {
					t.Fatalf("Write() = %d, %v", n, err)
				}
			}
			if got := w.Last(); got != tt.want {
				t.Errorf("Last() = %q, want %q", got, tt.want)
			}
		})
	}
}
