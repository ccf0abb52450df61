// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
)

func TestClient_DiscoverBaseAliases_Pagination(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"":     `{"name":"aicage/aicage","tags":["claude-ubuntu-latest","claude-ubuntu-1.0.0","codex-debian-latest"]}`,
		"p2":   `{"name":"aicage/aicage","tags":["claude-fedora-latest","claude--latest","claude-ubuntu-latest"]}`,
		"last": `{"name":"aicage/aicage","tags":["claude-alpine-latest"]}`,
	}
	next := map[string]string{
		"":   `</v2/aicage/aicage/tags/list?n=1000&last=p2>; rel="next"`,
		"p2": `</v2/aicage/aicage/tags/list?n=1000&last=last>; rel="next"`,
	}

	var (
		mu       sync.Mutex
		seenAuth []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			fmt.Fprint(w, `{"token":"tok"}`)
		case "/v2/aicage/aicage/tags/list":
			mu.Lock()
			seenAuth = append(seenAuth, r.Header.Get("Authorization"))
			mu.Unlock()
			if r.URL.Query().Get("n") != "1000" {
				http.Error(w, "page size", http.StatusBadRequest)
				return
			}
			last := r.URL.Query().Get("last")
			if link, ok := next[last]; ok {
				w.Header().Set("Link", link)
			}
			fmt.Fprint(w, pages[last])
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv, "/token?scope=repository")
	got, err := client.DiscoverBaseAliases(context.Background(), "aicage/aicage", "claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"alpine", "fedora", "ubuntu"}
	if !slices.Equal(got, want) {
		t.Errorf("DiscoverBaseAliases() = %v, want %v", got, want)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seenAuth) != 3 {
		t.Fatalf("expected 3 page requests, got %d", len(seenAuth))
	}
	for _, auth := range seenAuth {
		if auth != "Bearer tok" {
			t.Errorf("page request Authorization = %q", auth)
		}
	}
}

func TestClient_DiscoverBaseAliases_Failure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			fmt.Fprint(w, `{"token":"tok"}`)
			return
		}
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	client := newTestClient(srv, "/token?scope=repository")
	_, err := client.DiscoverBaseAliases(context.Background(), "aicage/aicage", "claude")
	var discErr *DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected *DiscoveryError, got %v", err)
	}
}

func TestParseNextLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{`</v2/r/tags/list?last=a>; rel="next"`, "/v2/r/tags/list?last=a"},
		{`<https://x/prev>; rel="prev", <https://x/next>; rel="next"`, "https://x/next"},
		{`<https://x/next>; REL="NEXT"`, "https://x/next"},
		{`<https://x/prev>; rel="prev"`, ""},
	}

	for _, tt := range tests {
		if got := parseNextLink(tt.header); got != tt.want {
			t.Errorf("parseNextLink(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestBaseAliasesFromTags(t *testing.T) {
	t.Parallel()

	refs := []string{
		"ghcr.io/aicage/aicage:claude-ubuntu-latest",
		"ghcr.io/aicage/aicage:claude-debian-latest",
		"ghcr.io/aicage/aicage:claude-debian-1.2.3",
		"ghcr.io/aicage/aicage:codex-ubuntu-latest",
		"ghcr.io/aicage/aicage",
	}
	got := BaseAliasesFromTags(refs, "claude")
	want := []string{"debian", "ubuntu"}
	if !slices.Equal(got, want) {
		t.Errorf("BaseAliasesFromTags() = %v, want %v", got, want)
	}
}
