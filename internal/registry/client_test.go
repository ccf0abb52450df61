// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeRegistry serves a token endpoint and a manifest endpoint for one repository.
type fakeRegistry struct {
	repository   string
	token        string
	status       int
	digest       string
	manifestHits atomic.Int32
	lastAuth     atomic.Value
	lastAccept   atomic.Value
	lastPath     atomic.Value
}

func (f *fakeRegistry) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		want := "repository:" + f.repository + ":pull"
		if got := r.URL.Query().Get("scope"); got != want {
			http.Error(w, "bad scope "+got, http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"token":%q}`, f.token)
	})
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, r *http.Request) {
		f.manifestHits.Add(1)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		f.lastAccept.Store(r.Header.Get("Accept"))
		f.lastPath.Store(r.URL.Path)
		if r.Method != http.MethodHead {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if f.digest != "" {
			w.Header().Set(HeaderContentDigest, f.digest)
		}
		w.WriteHeader(f.status)
	})
	return mux
}

func newTestClient(srv *httptest.Server, tokenPath string) *Client {
	tokenURL := ""
	if tokenPath != "" {
		tokenURL = srv.URL + tokenPath
	}
	return NewClient(Config{
		APIURL:   srv.URL + "/v2",
		TokenURL: tokenURL,
		Timeout:  5 * time.Second,
		RetryMax: 1,
	}, WithRetryWait(time.Millisecond, 5*time.Millisecond))
}

func TestClient_ManifestDigest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		digest string
		want   string
	}{
		{name: "ok", status: http.StatusOK, digest: "sha256:aaa", want: "sha256:aaa"},
		// Digest header on an auth failure is still honored.
		{name: "forbidden with digest", status: http.StatusForbidden, digest: "sha256:ccc", want: "sha256:ccc"},
		{name: "unauthorized with digest", status: http.StatusUnauthorized, digest: "sha256:ddd", want: "sha256:ddd"},
		{name: "not found", status: http.StatusNotFound, digest: "sha256:eee", want: ""},
		{name: "ok without header", status: http.StatusOK, want: ""},
		{name: "server error", status: http.StatusInternalServerError, digest: "sha256:fff", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg := &fakeRegistry{repository: "aicage/aicage-image-base", token: "tok", status: tt.status, digest: tt.digest}
			srv := httptest.NewServer(reg.handler(t))
			defer srv.Close()

			client := newTestClient(srv, "/token?service=test&scope=repository")
			got := client.ManifestDigest(context.Background(), "ghcr.io/aicage/aicage-image-base:ubuntu", "aicage/aicage-image-base")
			if string(got) != tt.want {
				t.Errorf("ManifestDigest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_ManifestDigest_RequestShape(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{repository: "aicage/aicage", token: "tok", status: http.StatusOK, digest: "sha256:aaa"}
	srv := httptest.NewServer(reg.handler(t))
	defer srv.Close()

	client := newTestClient(srv, "/token?service=test&scope=repository")
	client.ManifestDigest(context.Background(), "ghcr.io/aicage/aicage:claude-ubuntu-latest", "aicage/aicage")

	if got := reg.lastPath.Load(); got != "/v2/aicage/aicage/manifests/claude-ubuntu-latest" {
		t.Errorf("path = %v", got)
	}
	if got := reg.lastAuth.Load(); got != "Bearer tok" {
		t.Errorf("Authorization = %v", got)
	}
	accept, _ := reg.lastAccept.Load().(string)
	for _, mt := range []string{v1.MediaTypeImageIndex, v1.MediaTypeImageManifest, MediaTypeDockerManifestList, MediaTypeDockerManifest} {
		if !strings.Contains(accept, mt) {
			t.Errorf("Accept %q is missing %s", accept, mt)
		}
	}
}

func TestClient_ManifestDigest_TokenFailure(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{repository: "aicage/aicage", token: "tok", status: http.StatusOK, digest: "sha256:aaa"}
	srv := httptest.NewServer(reg.handler(t))
	defer srv.Close()

	// Wrong scope: the token endpoint answers 400.
	client := newTestClient(srv, "/token?service=test&scope=repository")
	got := client.ManifestDigest(context.Background(), "ghcr.io/other/repo:tag", "other/repo")
	if got != "" {
		t.Errorf("ManifestDigest() = %q, want unknown", got)
	}
	if hits := reg.manifestHits.Load(); hits != 0 {
		t.Errorf("manifest endpoint should not be called without a token, got %d hits", hits)
	}
}

func TestClient_ManifestDigest_Anonymous(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{repository: "aicage/aicage", status: http.StatusOK, digest: "sha256:aaa"}
	srv := httptest.NewServer(reg.handler(t))
	defer srv.Close()

	client := newTestClient(srv, "")
	if got := client.ManifestDigest(context.Background(), "x/aicage/aicage:t", "aicage/aicage"); got != "sha256:aaa" {
		t.Errorf("ManifestDigest() = %q", got)
	}
	if got := reg.lastAuth.Load(); got != "" {
		t.Errorf("anonymous request should carry no Authorization, got %v", got)
	}
}

func TestClient_ManifestDigest_NetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := newTestClient(srv, "")
	if got := client.ManifestDigest(context.Background(), "x/a:b", "a"); got != "" {
		t.Errorf("ManifestDigest() = %q, want unknown", got)
	}
}

func TestClient_PullToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		status  int
		want    string
		wantErr error
	}{
		{name: "token field", body: `{"token":"abc"}`, status: http.StatusOK, want: "abc"},
		{name: "access_token field", body: `{"access_token":"xyz"}`, status: http.StatusOK, want: "xyz"},
		{name: "missing token", body: `{}`, status: http.StatusOK, wantErr: ErrMissingToken},
		{name: "bad status", body: `nope`, status: http.StatusForbidden},
		{name: "bad json", body: `{`, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			client := newTestClient(srv, "/token?scope=repository")
			got, err := client.PullToken(context.Background(), "aicage/aicage")

			if tt.want != "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("PullToken() = %q, want %q", got, tt.want)
				}
				return
			}

			var discErr *DiscoveryError
			if !errors.As(err, &discErr) {
				t.Fatalf("expected *DiscoveryError, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}
		})
	}
}
