// SPDX-License-Identifier: MPL-2.0

// Package registry is a small OCI distribution API client: anonymous pull tokens,
// manifest digest lookups through HEAD requests, and base alias discovery from
// tag listings. Requests go through go-retryablehttp so transient network errors
// and 5xx responses are retried while 4xx answers are returned as-is.
package registry
