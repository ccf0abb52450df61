// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by tests: a controllable clock, environment
// and file helpers that fail the test on error, agent definition fixtures, and a
// semaphore bounding concurrent container-backed tests.
package testutil
