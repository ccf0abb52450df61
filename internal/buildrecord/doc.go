// SPDX-License-Identifier: MPL-2.0

// Package buildrecord persists the fingerprint of each locally built image: the
// agent version and base image digest it was built from. One YAML document is
// kept per (agent, base) pair under <state_dir>/local-build, next to a lock
// file that serializes the read-decide-build-write sequence across processes.
package buildrecord
