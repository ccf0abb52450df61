// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"strings"

	"github.com/distribution/reference"
)

// DefaultReference is the manifest reference used when an image ref names no tag.
const DefaultReference = "latest"

// ParseReference returns the manifest reference (tag or digest) of imageRef.
// A digest after "@" wins; otherwise the text after a ":" that follows the last
// "/" is the tag; anything else, including an empty result, is "latest".
func ParseReference(imageRef string) string {
	ref := DefaultReference
	if _, after, found := strings.Cut(imageRef, "@"); found {
		ref = after
	} else {
		lastColon := strings.LastIndex(imageRef, ":")
		if lastColon > strings.LastIndex(imageRef, "/") {
			ref = imageRef[lastColon+1:]
		}
	}
	if ref == "" {
		return DefaultReference
	}
	return ref
}

// RepositoryOf returns the repository part of imageRef, without tag or digest.
// The result keeps the caller's spelling (no docker.io expansion).
func RepositoryOf(imageRef string) string {
	name := imageRef
	if before, _, found := strings.Cut(name, "@"); found {
		name = before
	}
	lastColon := strings.LastIndex(name, ":")
	if lastColon > strings.LastIndex(name, "/") {
		name = name[:lastColon]
	}
	return name
}

// NormalizeRepository returns the fully qualified form of a repository name
// ("ubuntu" becomes "docker.io/library/ubuntu"). Names that do not parse are
// returned unchanged.
func NormalizeRepository(name string) string {
	named, err := reference.ParseNormalizedNamed(name)
	if err != nil {
		return name
	}
	return reference.TrimNamed(named).Name()
}

// SameRepository reports whether a and b name the same repository once normalized.
func SameRepository(a, b string) bool {
	if a == b {
		return true
	}
	return NormalizeRepository(a) == NormalizeRepository(b)
}

// SplitRepository splits a repository name into its registry host and the path
// within that registry. Names without an explicit host resolve to docker.io.
func SplitRepository(name string) (host, path string) {
	named, err := reference.ParseNormalizedNamed(name)
	if err != nil {
		if before, after, found := strings.Cut(name, "/"); found {
			return before, after
		}
		return "", name
	}
	return reference.Domain(named), reference.Path(named)
}

// JoinRepository returns "<host>/<path>", or path alone when host is empty.
func JoinRepository(host, path string) string {
	if host == "" {
		return path
	}
	return strings.TrimSuffix(host, "/") + "/" + strings.TrimPrefix(path, "/")
}
