// SPDX-License-Identifier: MPL-2.0

// Package metrics counts freshness decisions, builds, pulls and version checks
// on a private Prometheus registry. The counters can be written to a
// node-exporter textfile after each invocation; there is no HTTP endpoint.
package metrics
