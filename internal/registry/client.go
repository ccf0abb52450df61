// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	// MediaTypeDockerManifestList is the Docker schema 2 manifest list media type.
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
	// MediaTypeDockerManifest is the Docker schema 2 image manifest media type.
	MediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"

	// HeaderContentDigest carries the manifest digest on registry responses.
	HeaderContentDigest = "Docker-Content-Digest"

	maxTokenBody = 1 << 20
)

// ErrMissingToken is returned when the token endpoint answers without a token.
var ErrMissingToken = errors.New("registry returned no pull token")

// manifestAccept lists every manifest media type the HEAD request accepts.
var manifestAccept = strings.Join([]string{
	v1.MediaTypeImageIndex,
	MediaTypeDockerManifestList,
	v1.MediaTypeImageManifest,
	MediaTypeDockerManifest,
}, ",")

type (
	// Config describes how to reach the registry HTTP API.
	Config struct {
		// APIURL is the registry API root, e.g. "https://ghcr.io/v2".
		APIURL string
		// TokenURL is the anonymous token endpoint prefix; ":<repository>:pull" is
		// appended. Empty means the registry needs no token.
		TokenURL string
		// Timeout bounds each HTTP request.
		Timeout time.Duration
		// RetryMax is the number of retries for network errors and 5xx responses.
		RetryMax int
	}

	// ClientOption configures a Client.
	ClientOption func(*Client)

	// Client talks to an OCI distribution registry.
	Client struct {
		apiURL   string
		tokenURL string
		http     *retryablehttp.Client
		logger   *slog.Logger
	}

	// DiscoveryError reports a failed registry query.
	DiscoveryError struct {
		URL string
		Err error
	}

	tokenResponse struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
)

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to query registry endpoint %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error { return e.Err }

// WithLogger sets the logger used by the client and its retrying transport.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryWait sets the bounds of the retry backoff.
func WithRetryWait(minWait, maxWait time.Duration) ClientOption {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// NewClient creates a registry client for cfg.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = cfg.RetryMax
	if cfg.Timeout > 0 {
		httpClient.HTTPClient.Timeout = cfg.Timeout
	}

	c := &Client{
		apiURL:   strings.TrimSuffix(cfg.APIURL, "/"),
		tokenURL: cfg.TokenURL,
		http:     httpClient,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.http.Logger = c.logger
	return c
}

// PullToken fetches an anonymous pull token scoped to repository.
// It returns "" without a request when no token endpoint is configured.
func (c *Client) PullToken(ctx context.Context, repository string) (string, error) {
	if c.tokenURL == "" {
		return "", nil
	}
	url := c.tokenURL + ":" + repository + ":pull"

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &DiscoveryError{URL: url, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &DiscoveryError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &DiscoveryError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var body tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTokenBody)).Decode(&body); err != nil {
		return "", &DiscoveryError{URL: url, Err: fmt.Errorf("invalid token response: %w", err)}
	}
	token := body.Token
	if token == "" {
		token = body.AccessToken
	}
	if token == "" {
		return "", &DiscoveryError{URL: url, Err: ErrMissingToken}
	}
	return token, nil
}

// ManifestDigest returns the registry-reported digest of imageRef's manifest in
// repository, or "" when it cannot be determined. It never fails: token
// failures, network errors, non-2xx responses other than 401/403 and a missing
// header all yield "".
func (c *Client) ManifestDigest(ctx context.Context, imageRef, repository string) digest.Digest {
	token, err := c.PullToken(ctx, repository)
	if err != nil {
		c.logger.Debug("registry token unavailable", "repository", repository, "error", err)
		return ""
	}

	url := fmt.Sprintf("%s/%s/manifests/%s", c.apiURL, repository, ParseReference(imageRef))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		c.logger.Debug("invalid manifest request", "url", url, "error", err)
		return ""
	}
	req.Header.Set("Accept", manifestAccept)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("manifest lookup failed", "url", url, "error", err)
		return ""
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		// Some registries still report the digest alongside an auth failure.
	default:
		c.logger.Debug("manifest lookup rejected", "url", url, "status", resp.StatusCode)
		return ""
	}

	return digest.Digest(strings.TrimSpace(resp.Header.Get(HeaderContentDigest)))
}
