// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	tagsPageSize = 1000
	maxTagsBody  = 8 << 20
	latestSuffix = "-latest"
	maxTagsPages = 100
)

var nextLinkPattern = regexp.MustCompile(`(?i)<([^>]+)>\s*;\s*rel="next"`)

type tagsResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// DiscoverBaseAliases lists the base aliases published for agent in repository.
// A tag "<agent>-<base>-latest" contributes "<base>". Results are sorted and
// unique. Pagination follows the registry's Link rel="next" header.
func (c *Client) DiscoverBaseAliases(ctx context.Context, repository, agent string) ([]string, error) {
	token, err := c.PullToken(ctx, repository)
	if err != nil {
		return nil, err
	}

	prefix := agent + "-"
	aliases := make(map[string]struct{})

	pageURL := fmt.Sprintf("%s/%s/tags/list?n=%d", c.apiURL, repository, tagsPageSize)
	for page := 0; pageURL != "" && page < maxTagsPages; page++ {
		tags, link, err := c.fetchTags(ctx, pageURL, token)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			if alias, ok := aliasFromTag(tag, prefix); ok {
				aliases[alias] = struct{}{}
			}
		}
		pageURL, err = c.resolveLink(pageURL, link)
		if err != nil {
			return nil, err
		}
	}

	return sortedKeys(aliases), nil
}

func (c *Client) fetchTags(ctx context.Context, pageURL, token string) (tags []string, link string, err error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", &DiscoveryError{URL: pageURL, Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &DiscoveryError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &DiscoveryError{URL: pageURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var body tagsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTagsBody)).Decode(&body); err != nil {
		return nil, "", &DiscoveryError{URL: pageURL, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return body.Tags, resp.Header.Get("Link"), nil
}

// resolveLink extracts the rel="next" target from a Link header. Registries
// commonly return a path relative to the host, so it is resolved against the
// URL of the page that carried it.
func (c *Client) resolveLink(current, header string) (string, error) {
	next := parseNextLink(header)
	if next == "" {
		return "", nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", &DiscoveryError{URL: current, Err: err}
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", &DiscoveryError{URL: current, Err: fmt.Errorf("invalid Link header %q: %w", header, err)}
	}
	return base.ResolveReference(ref).String(), nil
}

func parseNextLink(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		if m := nextLinkPattern.FindStringSubmatch(strings.TrimSpace(part)); m != nil {
			return m[1]
		}
	}
	return ""
}

// BaseAliasesFromTags extracts base aliases for agent from local
// "<repository>:<tag>" references, using the same tag convention as
// DiscoverBaseAliases.
func BaseAliasesFromTags(refs []string, agent string) []string {
	prefix := agent + "-"
	seen := make(map[string]struct{})
	for _, ref := range refs {
		if alias, ok := aliasFromTag(ParseReference(ref), prefix); ok {
			seen[alias] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func aliasFromTag(tag, prefix string) (string, bool) {
	if !strings.HasPrefix(tag, prefix) || !strings.HasSuffix(tag, latestSuffix) {
		return "", false
	}
	if len(tag) <= len(prefix)+len(latestSuffix) {
		return "", false
	}
	return tag[len(prefix) : len(tag)-len(latestSuffix)], true
}

func sortedKeys(set map[string]struct{}) []string {
	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
